// Package rules is the validate/execute capability the round coordinator
// delegates to. The session core never mutates world state directly; it asks
// this package whether an action is legal and, if so, to apply it.
package rules

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
)

type Engine interface {
	// Validate reports whether action is legal against the current world
	// and match configuration. Must not mutate the world.
	Validate(w *game.World, a game.Action, m game.MatchConfig) bool
	// Execute applies a previously validated action, returning whether it
	// took effect (a gadget can fizzle without being illegal).
	Execute(w *game.World, a game.Action, m game.MatchConfig) bool
	// NPCAction produces the move a neutral character takes on its turn.
	NPCAction(w *game.World, id uuid.UUID, rng *rand.Rand) game.Action
}

// Standard is the built-in rule set: adjacent moves onto free cells,
// adjacent melee attacks, ranged gadget attacks that consume the gadget.
type Standard struct{}

func (Standard) Validate(w *game.World, a game.Action, m game.MatchConfig) bool {
	actor := w.Characters[a.CharacterID]
	if actor == nil || !actor.Alive() {
		return false
	}
	switch a.Kind {
	case game.ActionRetire:
		return true
	case game.ActionMove:
		return actor.Pos.Adjacent(a.Target) &&
			w.InBounds(a.Target) &&
			!w.Walls[a.Target] &&
			w.At(a.Target) == nil
	case game.ActionAttack:
		if !actor.Pos.Adjacent(a.Target) {
			return false
		}
		victim := w.At(a.Target)
		return victim != nil && victim.ID != actor.ID
	case game.ActionGadget:
		if !actor.HasGadget(a.Gadget) {
			return false
		}
		if !w.InBounds(a.Target) {
			return false
		}
		return chebyshev(actor.Pos, a.Target) <= m.GadgetRange
	default:
		return false
	}
}

func (Standard) Execute(w *game.World, a game.Action, m game.MatchConfig) bool {
	actor := w.Characters[a.CharacterID]
	switch a.Kind {
	case game.ActionRetire:
		return true
	case game.ActionMove:
		actor.Pos = a.Target
		return true
	case game.ActionAttack:
		victim := w.At(a.Target)
		if victim == nil {
			return false
		}
		victim.HP -= actor.Damage
		if victim.HP < 0 {
			victim.HP = 0
		}
		return true
	case game.ActionGadget:
		actor.RemoveGadget(a.Gadget)
		victim := w.At(a.Target)
		if victim == nil || victim.ID == actor.ID {
			// Spent on an empty cell: legal, no effect.
			return false
		}
		victim.HP -= m.GadgetDamage
		if victim.HP < 0 {
			victim.HP = 0
		}
		return true
	default:
		return false
	}
}

// NPCAction walks neutral characters one random free step, or retires when
// boxed in.
func (s Standard) NPCAction(w *game.World, id uuid.UUID, rng *rand.Rand) game.Action {
	actor := w.Characters[id]
	if actor == nil {
		return game.Action{CharacterID: id, Kind: game.ActionRetire}
	}
	offsets := rng.Perm(8)
	for _, i := range offsets {
		d := neighborOffsets[i]
		target := game.Position{X: actor.Pos.X + d.X, Y: actor.Pos.Y + d.Y}
		move := game.Action{CharacterID: id, Kind: game.ActionMove, Target: target}
		if s.Validate(w, move, game.MatchConfig{}) {
			return move
		}
	}
	return game.Action{CharacterID: id, Kind: game.ActionRetire}
}

var neighborOffsets = [8]game.Position{
	{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1},
	{X: 0, Y: -1}, {X: 0, Y: 1},
	{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
}

func chebyshev(a, b game.Position) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
