package draft

import (
	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/pool"
)

// Per-player drafting caps. A player drafts until reaching SelectionsPerPlayer
// total, never holding more than CharacterCap characters or GadgetCap gadgets.
const (
	CharacterCap        = 4
	GadgetCap           = 6
	SelectionsPerPlayer = 8
)

// Choice is one selection out of a live offer: exactly one field set.
type Choice struct {
	CharacterID *uuid.UUID
	Gadget      *game.GadgetKind
}

// Selections accumulates one player's confirmed picks.
type Selections struct {
	Characters []uuid.UUID
	Gadgets    []game.GadgetKind
}

func (s Selections) Total() int { return len(s.Characters) + len(s.Gadgets) }

func (s Selections) hasCharacter(id uuid.UUID) bool {
	for _, c := range s.Characters {
		if c == id {
			return true
		}
	}
	return false
}

func (s Selections) hasGadget(kind game.GadgetKind) bool {
	for _, g := range s.Gadgets {
		if g == kind {
			return true
		}
	}
	return false
}

// Coordinator runs the choice and equip phases of one session's draft.
// It is driven from the session loop, so no locking of its own; only the
// pool underneath is shared.
type Coordinator struct {
	pool          *pool.Pool
	allCharacters []uuid.UUID
	offers        map[game.Faction]*pool.Offer
	chosen        map[game.Faction]*Selections
	submitted     map[game.Faction]bool
	equipment     map[uuid.UUID][]game.Gadget
}

// New seeds the selection pool with the full character roster and the fixed
// gadget catalog.
func New(p *pool.Pool, characterIDs []uuid.UUID) *Coordinator {
	p.AddCharacters(characterIDs...)
	p.AddGadgets(game.GadgetCatalog()...)
	return &Coordinator{
		pool:          p,
		allCharacters: characterIDs,
		offers:        make(map[game.Faction]*pool.Offer),
		chosen: map[game.Faction]*Selections{
			game.FactionPlayer1: {},
			game.FactionPlayer2: {},
		},
		submitted: make(map[game.Faction]bool),
		equipment: make(map[uuid.UUID][]game.Gadget),
	}
}

// OpenOffers issues the initial 3+3 offer to each player.
func (c *Coordinator) OpenOffers() (map[game.Faction]pool.Offer, error) {
	out := make(map[game.Faction]pool.Offer, len(game.PlayerFactions))
	for _, f := range game.PlayerFactions {
		offer, err := c.pool.RequestSelection()
		if err != nil {
			return nil, err
		}
		c.offers[f] = &offer
		out[f] = offer
	}
	return out, nil
}

// HandleChoice processes one selection from player. On acceptance the
// unconsumed remainder of the offer goes back to the pool and, if the player
// still needs selections, a fresh offer is returned for them. A nil next
// offer with an Accept verdict means that player is done drafting.
func (c *Coordinator) HandleChoice(player game.Faction, choice Choice) (*pool.Offer, game.Verdict, error) {
	offer := c.offers[player]
	if offer == nil {
		return nil, game.Disconnect("no outstanding offer"), nil
	}
	if (choice.CharacterID == nil) == (choice.Gadget == nil) {
		return nil, game.Disconnect("choice must name exactly one character or gadget"), nil
	}

	sel := c.chosen[player]
	remainder := *offer

	switch {
	case choice.CharacterID != nil:
		id := *choice.CharacterID
		if !offer.HasCharacter(id) {
			return nil, game.Disconnect("chosen character was not offered"), nil
		}
		if len(sel.Characters) >= CharacterCap {
			return nil, game.Disconnect("character cap exceeded"), nil
		}
		sel.Characters = append(sel.Characters, id)
		remainder.Characters = without(remainder.Characters, id)
	default:
		kind := *choice.Gadget
		if !offer.HasGadget(kind) {
			return nil, game.Disconnect("chosen gadget was not offered"), nil
		}
		if len(sel.Gadgets) >= GadgetCap {
			return nil, game.Disconnect("gadget cap exceeded"), nil
		}
		sel.Gadgets = append(sel.Gadgets, kind)
		remainder.Gadgets = withoutKind(remainder.Gadgets, kind)
	}

	c.pool.AddCharacters(remainder.Characters...)
	c.pool.AddGadgets(remainder.Gadgets...)
	delete(c.offers, player)

	if sel.Total() >= SelectionsPerPlayer {
		return nil, game.Accept(), nil
	}

	next, err := c.nextOffer(sel)
	if err != nil {
		return nil, game.Accept(), err
	}
	c.offers[player] = next
	return next, game.Accept(), nil
}

// nextOffer picks the offer shape for a player who still needs selections:
// mixed while both caps and sub-pools allow it, single-kind once one side
// runs out first.
func (c *Coordinator) nextOffer(sel *Selections) (*pool.Offer, error) {
	needChars := len(sel.Characters) < CharacterCap
	needGadgets := len(sel.Gadgets) < GadgetCap

	var (
		offer pool.Offer
		err   error
	)
	switch {
	case needChars && needGadgets && c.pool.OfferPossible():
		offer, err = c.pool.RequestSelection()
	case needGadgets && c.pool.GadgetOfferPossible():
		offer, err = c.pool.RequestGadgetSelection()
	case needChars && c.pool.CharacterOfferPossible():
		offer, err = c.pool.RequestCharacterSelection()
	default:
		return nil, pool.ErrInsufficientPool
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ChoiceComplete reports whether both players hold their full 8 selections.
// The phase deliberately runs all 16 slots to completion; see DESIGN.md.
func (c *Coordinator) ChoiceComplete() bool {
	for _, f := range game.PlayerFactions {
		if c.chosen[f].Total() < SelectionsPerPlayer {
			return false
		}
	}
	return true
}

// Selections returns a player's confirmed picks.
func (c *Coordinator) Selections(player game.Faction) Selections {
	if sel := c.chosen[player]; sel != nil {
		return *sel
	}
	return Selections{}
}

// FactionAssignment derives the final unit -> faction mapping: claimed
// characters go to their claiming player, every other rostered character
// ends up neutral. Written once, after the choice phase.
func (c *Coordinator) FactionAssignment() map[uuid.UUID]game.Faction {
	out := make(map[uuid.UUID]game.Faction, len(c.allCharacters))
	for _, id := range c.allCharacters {
		out[id] = game.FactionNeutral
	}
	for _, f := range game.PlayerFactions {
		for _, id := range c.chosen[f].Characters {
			out[id] = f
		}
	}
	return out
}

// HandleEquipment processes a player's full equipment assignment. Duplicate
// submissions and references outside the player's own drafted sets are
// protocol violations.
func (c *Coordinator) HandleEquipment(player game.Faction, mapping map[uuid.UUID][]game.GadgetKind) game.Verdict {
	if c.submitted[player] {
		return game.Disconnect("equipment already submitted")
	}
	sel := c.chosen[player]

	assigned := make(map[game.GadgetKind]bool)
	for id, kinds := range mapping {
		if !sel.hasCharacter(id) {
			return game.Disconnect("equipment references a character you did not draft")
		}
		for _, kind := range kinds {
			if !sel.hasGadget(kind) {
				return game.Disconnect("equipment references a gadget you did not draft")
			}
			if assigned[kind] {
				return game.Disconnect("gadget assigned twice")
			}
			assigned[kind] = true
		}
	}

	for id, kinds := range mapping {
		for _, kind := range kinds {
			c.equipment[id] = append(c.equipment[id], game.Gadget{
				Kind: kind,
				// Poison pills are carried concealed.
				Covert: kind == game.GadgetPoisonPills,
			})
		}
	}
	c.submitted[player] = true
	return game.Accept()
}

// EquipComplete reports whether both players have submitted.
func (c *Coordinator) EquipComplete() bool {
	return c.submitted[game.FactionPlayer1] && c.submitted[game.FactionPlayer2]
}

// Equipment returns the final unit -> gadget assignment.
func (c *Coordinator) Equipment() map[uuid.UUID][]game.Gadget {
	return c.equipment
}

// without and withoutKind build fresh slices: the issued offer's backing
// arrays are still referenced by the message already queued to the client.
func without(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func withoutKind(kinds []game.GadgetKind, drop game.GadgetKind) []game.GadgetKind {
	out := make([]game.GadgetKind, 0, len(kinds))
	for _, k := range kinds {
		if k != drop {
			out = append(out, k)
		}
	}
	return out
}
