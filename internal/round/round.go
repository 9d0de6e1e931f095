package round

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/rules"
)

// Coordinator drives the play phase: it owns the turn scheduler, forwards
// validated actions to the rules engine, accumulates the pending broadcast
// log, and evaluates the game-over guard on every state change. Neutral
// units act automatically via the engine's NPC behavior; player units park
// the coordinator in a waiting state until their action arrives.
type Coordinator struct {
	sched  *Scheduler
	world  *game.World
	match  game.MatchConfig
	engine rules.Engine
	rng    *rand.Rand

	ops    []game.Operation
	over   bool
	winner game.Faction
	reason string
}

func New(world *game.World, match game.MatchConfig, engine rules.Engine, rng *rand.Rand) *Coordinator {
	return &Coordinator{
		sched:  NewScheduler(rng),
		world:  world,
		match:  match,
		engine: engine,
		rng:    rng,
	}
}

// BeginRound reshuffles the living roster into a fresh queue and advances
// until a player-controlled unit is awaiting its action (or the game ends).
func (c *Coordinator) BeginRound() {
	if c.over {
		return
	}
	if c.world.Round >= c.match.MaxRounds {
		c.finishByRoundLimit()
		return
	}
	c.world.Round++
	c.sched.StartRound(c.world.Living())
	c.advance()
}

// HandleAction processes the action for the currently active unit.
func (c *Coordinator) HandleAction(actor game.Faction, a game.Action) game.Verdict {
	if c.over {
		return game.Retry("game is over")
	}
	active, ok := c.sched.Active()
	if !ok {
		return game.Retry("no unit is awaiting an action")
	}
	if a.CharacterID != active {
		return game.Disconnect("action addressed to a unit that is not active")
	}
	if c.world.Characters[active].Faction != actor {
		return game.Disconnect("active unit is not controlled by sender")
	}
	if !c.engine.Validate(c.world, a, c.match) {
		// Refused without applying; the unit stays active and the same
		// player is re-prompted.
		return game.Retry("action failed rules validation")
	}

	success := c.engine.Execute(c.world, a, c.match)
	c.ops = append(c.ops, game.Operation{Action: a, Success: success})
	c.checkGameOver()
	if !c.over {
		c.advance()
	}
	return game.Accept()
}

// advance pulls units off the queue, auto-playing neutral ones, until a
// player unit is active, the round rolls over, or the game ends.
func (c *Coordinator) advance() {
	for {
		if c.over {
			return
		}
		id, ok := c.sched.Next()
		if !ok {
			c.BeginRound()
			return
		}
		ch := c.world.Characters[id]
		if ch == nil || !ch.Alive() {
			// Died while queued; skip.
			continue
		}
		if ch.Faction.IsPlayer() {
			return
		}
		npc := c.engine.NPCAction(c.world, id, c.rng)
		if c.engine.Validate(c.world, npc, c.match) {
			success := c.engine.Execute(c.world, npc, c.match)
			c.ops = append(c.ops, game.Operation{Action: npc, Success: success})
		}
		c.checkGameOver()
	}
}

func (c *Coordinator) checkGameOver() {
	if c.over {
		return
	}
	p1 := c.world.LivingCount(game.FactionPlayer1)
	p2 := c.world.LivingCount(game.FactionPlayer2)
	switch {
	case p1 == 0 && p2 == 0:
		c.over, c.winner, c.reason = true, game.FactionNeutral, "mutual elimination"
	case p1 == 0:
		c.over, c.winner, c.reason = true, game.FactionPlayer2, "opposing faction eliminated"
	case p2 == 0:
		c.over, c.winner, c.reason = true, game.FactionPlayer1, "opposing faction eliminated"
	}
}

func (c *Coordinator) finishByRoundLimit() {
	hp1 := c.world.TotalHP(game.FactionPlayer1)
	hp2 := c.world.TotalHP(game.FactionPlayer2)
	c.over = true
	c.reason = "round limit reached"
	switch {
	case hp1 > hp2:
		c.winner = game.FactionPlayer1
	case hp2 > hp1:
		c.winner = game.FactionPlayer2
	default:
		c.winner = game.FactionNeutral
	}
}

// ForceResult ends the game immediately, e.g. when the opponent leaves.
func (c *Coordinator) ForceResult(winner game.Faction, reason string) {
	c.over, c.winner, c.reason = true, winner, reason
}

// GameOver reports the outcome once the guard has fired.
func (c *Coordinator) GameOver() (winner game.Faction, reason string, over bool) {
	return c.winner, c.reason, c.over
}

// ActiveUnit returns the unit awaiting its action and its controlling
// faction.
func (c *Coordinator) ActiveUnit() (uuid.UUID, game.Faction, bool) {
	id, ok := c.sched.Active()
	if !ok {
		return uuid.UUID{}, game.FactionNeutral, false
	}
	return id, c.world.Characters[id].Faction, true
}

// DrainOperations returns and clears the pending broadcast log.
func (c *Coordinator) DrainOperations() []game.Operation {
	ops := c.ops
	c.ops = nil
	return ops
}

// Round is the current round number.
func (c *Coordinator) Round() int { return c.world.Round }
