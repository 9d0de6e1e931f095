package game

import "github.com/google/uuid"

type Faction string

const (
	FactionPlayer1 Faction = "player1"
	FactionPlayer2 Faction = "player2"
	FactionNeutral Faction = "neutral"
)

// PlayerFactions in seating order. Neutral is never a seat.
var PlayerFactions = []Faction{FactionPlayer1, FactionPlayer2}

func (f Faction) IsPlayer() bool {
	return f == FactionPlayer1 || f == FactionPlayer2
}

// Opponent returns the other player faction.
func (f Faction) Opponent() Faction {
	switch f {
	case FactionPlayer1:
		return FactionPlayer2
	case FactionPlayer2:
		return FactionPlayer1
	default:
		return FactionNeutral
	}
}

type GadgetKind string

const (
	GadgetHairdryer    GadgetKind = "hairdryer"
	GadgetMoledie      GadgetKind = "moledie"
	GadgetBowlerBlade  GadgetKind = "bowler_blade"
	GadgetPoisonPills  GadgetKind = "poison_pills"
	GadgetLaserCompact GadgetKind = "laser_compact"
	GadgetRocketPen    GadgetKind = "rocket_pen"
	GadgetGasGloss     GadgetKind = "gas_gloss"
	GadgetMothballs    GadgetKind = "mothball_pouch"
	GadgetFogTin       GadgetKind = "fog_tin"
	GadgetGrapple      GadgetKind = "grapple"
	GadgetJetpack      GadgetKind = "jetpack"
	GadgetWiretap      GadgetKind = "wiretap_with_earplugs"
)

// GadgetCatalog returns the fixed set of draftable gadget kinds.
func GadgetCatalog() []GadgetKind {
	return []GadgetKind{
		GadgetHairdryer, GadgetMoledie, GadgetBowlerBlade, GadgetPoisonPills,
		GadgetLaserCompact, GadgetRocketPen, GadgetGasGloss, GadgetMothballs,
		GadgetFogTin, GadgetGrapple, GadgetJetpack, GadgetWiretap,
	}
}

// Gadget is an equipped instance of a kind. The poison-pills kind is the one
// that equips as a covert variant, tracked per character.
type Gadget struct {
	Kind   GadgetKind `json:"kind"`
	Covert bool       `json:"covert,omitempty"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Adjacent reports Chebyshev distance <= 1 (excluding the cell itself).
func (p Position) Adjacent(q Position) bool {
	dx, dy := p.X-q.X, p.Y-q.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return (dx <= 1 && dy <= 1) && !(dx == 0 && dy == 0)
}

// CharacterTemplate is one roster entry as loaded from the roster document.
type CharacterTemplate struct {
	Name   string `json:"name"`
	HP     int    `json:"hp"`
	AP     int    `json:"ap"`
	Damage int    `json:"damage"`
}

// Character is a living piece on the board.
type Character struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Faction Faction   `json:"faction"`
	Pos     Position  `json:"pos"`
	HP      int       `json:"hp"`
	AP      int       `json:"ap"`
	Damage  int       `json:"damage"`
	Gadgets []Gadget  `json:"gadgets,omitempty"`
}

func (c *Character) Alive() bool { return c.HP > 0 }

func (c *Character) HasGadget(kind GadgetKind) bool {
	for _, g := range c.Gadgets {
		if g.Kind == kind {
			return true
		}
	}
	return false
}

// RemoveGadget drops one instance of kind, reporting whether it was held.
func (c *Character) RemoveGadget(kind GadgetKind) bool {
	for i, g := range c.Gadgets {
		if g.Kind == kind {
			c.Gadgets = append(c.Gadgets[:i], c.Gadgets[i+1:]...)
			return true
		}
	}
	return false
}
