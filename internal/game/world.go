package game

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// World is the shared mutable game state during the play phase. It is owned
// by the session and mutated only through the rules capability.
type World struct {
	Width      int
	Height     int
	Walls      map[Position]bool
	Characters map[uuid.UUID]*Character
	Round      int
}

// BuildWorld instantiates every rostered character with its assigned faction
// and equipment and places each on a random free cell.
func BuildWorld(sc ScenarioConfig, templates map[uuid.UUID]CharacterTemplate, factions map[uuid.UUID]Faction, equipment map[uuid.UUID][]Gadget, rng *rand.Rand) *World {
	w := &World{
		Width:      sc.Width,
		Height:     sc.Height,
		Walls:      make(map[Position]bool, len(sc.Walls)),
		Characters: make(map[uuid.UUID]*Character, len(templates)),
	}
	for _, p := range sc.Walls {
		w.Walls[p] = true
	}

	// Stable placement order so a seeded rng reproduces the same board.
	ids := make([]uuid.UUID, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	free := w.freeCells()
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	for i, id := range ids {
		tpl := templates[id]
		w.Characters[id] = &Character{
			ID:      id,
			Name:    tpl.Name,
			Faction: factions[id],
			Pos:     free[i],
			HP:      tpl.HP,
			AP:      tpl.AP,
			Damage:  tpl.Damage,
			Gadgets: equipment[id],
		}
	}
	return w
}

func (w *World) freeCells() []Position {
	cells := make([]Position, 0, w.Width*w.Height)
	for x := 0; x < w.Width; x++ {
		for y := 0; y < w.Height; y++ {
			p := Position{X: x, Y: y}
			if !w.Walls[p] && w.At(p) == nil {
				cells = append(cells, p)
			}
		}
	}
	return cells
}

func (w *World) InBounds(p Position) bool {
	return p.X >= 0 && p.X < w.Width && p.Y >= 0 && p.Y < w.Height
}

// At returns the living character occupying p, or nil.
func (w *World) At(p Position) *Character {
	for _, c := range w.Characters {
		if c.Alive() && c.Pos == p {
			return c
		}
	}
	return nil
}

// Living returns all living character ids in a stable order.
func (w *World) Living() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(w.Characters))
	for id, c := range w.Characters {
		if c.Alive() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// LivingCount counts living members of one faction.
func (w *World) LivingCount(f Faction) int {
	n := 0
	for _, c := range w.Characters {
		if c.Alive() && c.Faction == f {
			n++
		}
	}
	return n
}

// TotalHP sums remaining hit points across one faction, used for the
// round-limit tiebreak.
func (w *World) TotalHP(f Faction) int {
	hp := 0
	for _, c := range w.Characters {
		if c.Alive() && c.Faction == f {
			hp += c.HP
		}
	}
	return hp
}
