package draft

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/pool"
)

func newDraft(t *testing.T, rosterSize int, seed int64) (*Coordinator, *pool.Pool, []uuid.UUID) {
	t.Helper()
	ids := make([]uuid.UUID, rosterSize)
	for i := range ids {
		ids[i] = uuid.New()
	}
	p := pool.New(rand.New(rand.NewSource(seed)))
	return New(p, ids), p, ids
}

// pickFromOffer takes the first still-needed item out of an offer, preferring
// characters until the character cap is reached.
func pickFromOffer(c *Coordinator, player game.Faction, offer pool.Offer) Choice {
	sel := c.Selections(player)
	if len(sel.Characters) < CharacterCap && len(offer.Characters) > 0 {
		id := offer.Characters[0]
		return Choice{CharacterID: &id}
	}
	kind := offer.Gadgets[0]
	return Choice{Gadget: &kind}
}

// Drafting termination: with a roster of 10 and the 12-kind catalog, valid
// choice/offer cycles finish with 8 confirmed selections per player, and
// every unclaimed character lands in the neutral faction.
func TestChoicePhaseRunsToCompletion(t *testing.T) {
	c, p, ids := newDraft(t, 10, 42)

	offers, err := c.OpenOffers()
	require.NoError(t, err)

	live := map[game.Faction]*pool.Offer{}
	for f, o := range offers {
		o := o
		live[f] = &o
	}

	steps := 0
	for !c.ChoiceComplete() {
		require.Less(t, steps, 2*SelectionsPerPlayer+1, "draft did not terminate")
		for _, f := range game.PlayerFactions {
			offer := live[f]
			if offer == nil {
				continue
			}
			next, verdict, err := c.HandleChoice(f, pickFromOffer(c, f, *offer))
			require.NoError(t, err)
			require.Equal(t, game.VerdictAccept, verdict.Kind)
			live[f] = next
		}
		steps++
	}

	for _, f := range game.PlayerFactions {
		sel := c.Selections(f)
		require.Equal(t, SelectionsPerPlayer, sel.Total())
		require.Len(t, sel.Characters, CharacterCap)
	}
	require.Nil(t, live[game.FactionPlayer1])
	require.Nil(t, live[game.FactionPlayer2])

	// 8 of 10 characters claimed, the remaining 2 back in the pool.
	chars, _ := p.Remaining()
	require.Equal(t, 2, chars)

	assignment := c.FactionAssignment()
	require.Len(t, assignment, len(ids))
	neutral := 0
	for _, f := range assignment {
		if f == game.FactionNeutral {
			neutral++
		}
	}
	require.Equal(t, 2, neutral)
	for _, f := range game.PlayerFactions {
		for _, id := range c.Selections(f).Characters {
			require.Equal(t, f, assignment[id])
		}
	}
}

// pickGadgetsFirst is the mirror strategy: gadgets until the gadget cap,
// characters only when forced.
func pickGadgetsFirst(c *Coordinator, player game.Faction, offer pool.Offer) Choice {
	sel := c.Selections(player)
	if len(sel.Gadgets) < GadgetCap && len(offer.Gadgets) > 0 {
		kind := offer.Gadgets[0]
		return Choice{Gadget: &kind}
	}
	id := offer.Characters[0]
	return Choice{CharacterID: &id}
}

// A gadget-heavy draft must terminate too: with one player hoarding gadgets
// the gadget sub-pool runs below a full offer while the stragglers sit in
// the opponent's confirmed set, and the coordinator has to keep issuing
// (shrunken) offers instead of reporting the pool exhausted.
func TestGadgetHeavyDraftRunsToCompletion(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		c, _, _ := newDraft(t, 10, seed)

		offers, err := c.OpenOffers()
		require.NoError(t, err, "seed %d", seed)

		live := map[game.Faction]*pool.Offer{}
		for f, o := range offers {
			o := o
			live[f] = &o
		}

		steps := 0
		for !c.ChoiceComplete() {
			require.Less(t, steps, 2*SelectionsPerPlayer+1, "seed %d: draft did not terminate", seed)
			for _, f := range game.PlayerFactions {
				offer := live[f]
				if offer == nil {
					continue
				}
				choice := pickFromOffer(c, f, *offer)
				if f == game.FactionPlayer2 {
					choice = pickGadgetsFirst(c, f, *offer)
				}
				next, verdict, err := c.HandleChoice(f, choice)
				require.NoError(t, err, "seed %d: p1=%d p2=%d confirmed", seed,
					c.Selections(game.FactionPlayer1).Total(),
					c.Selections(game.FactionPlayer2).Total())
				require.Equal(t, game.VerdictAccept, verdict.Kind)
				live[f] = next
			}
			steps++
		}

		for _, f := range game.PlayerFactions {
			require.Equal(t, SelectionsPerPlayer, c.Selections(f).Total(), "seed %d", seed)
		}
		require.Len(t, c.Selections(game.FactionPlayer2).Gadgets, GadgetCap, "seed %d", seed)
	}
}

// An issued offer must stay intact after the choice is handled: the slices
// inside it were already handed to the transport, which marshals them from
// another goroutine.
func TestChoiceDoesNotMutateIssuedOffer(t *testing.T) {
	c, _, _ := newDraft(t, 10, 11)

	offers, err := c.OpenOffers()
	require.NoError(t, err)
	p1 := offers[game.FactionPlayer1]
	p2 := offers[game.FactionPlayer2]

	wantChars := append([]uuid.UUID(nil), p1.Characters...)
	wantGadgets := append([]game.GadgetKind(nil), p2.Gadgets...)

	// Pick from the middle so a compacting implementation would shift the
	// retained slices in place.
	id := p1.Characters[1]
	_, verdict, err := c.HandleChoice(game.FactionPlayer1, Choice{CharacterID: &id})
	require.NoError(t, err)
	require.Equal(t, game.VerdictAccept, verdict.Kind)

	kind := p2.Gadgets[1]
	_, verdict, err = c.HandleChoice(game.FactionPlayer2, Choice{Gadget: &kind})
	require.NoError(t, err)
	require.Equal(t, game.VerdictAccept, verdict.Kind)

	require.Equal(t, wantChars, p1.Characters)
	require.Equal(t, wantGadgets, p2.Gadgets)
}

func TestChoiceOutsideOfferDisconnects(t *testing.T) {
	c, _, _ := newDraft(t, 10, 1)
	_, err := c.OpenOffers()
	require.NoError(t, err)

	stranger := uuid.New()
	_, verdict, err := c.HandleChoice(game.FactionPlayer1, Choice{CharacterID: &stranger})
	require.NoError(t, err)
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)
}

func TestChoiceWithoutOutstandingOfferDisconnects(t *testing.T) {
	c, _, _ := newDraft(t, 10, 1)
	kind := game.GadgetMoledie
	_, verdict, err := c.HandleChoice(game.FactionPlayer2, Choice{Gadget: &kind})
	require.NoError(t, err)
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)
}

func TestMalformedChoiceDisconnects(t *testing.T) {
	c, _, _ := newDraft(t, 10, 1)
	_, err := c.OpenOffers()
	require.NoError(t, err)

	_, verdict, err := c.HandleChoice(game.FactionPlayer1, Choice{})
	require.NoError(t, err)
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)
}

func completeDraft(t *testing.T, c *Coordinator) {
	t.Helper()
	offers, err := c.OpenOffers()
	require.NoError(t, err)
	live := map[game.Faction]*pool.Offer{}
	for f, o := range offers {
		o := o
		live[f] = &o
	}
	for !c.ChoiceComplete() {
		for _, f := range game.PlayerFactions {
			if live[f] == nil {
				continue
			}
			next, verdict, err := c.HandleChoice(f, pickFromOffer(c, f, *live[f]))
			require.NoError(t, err)
			require.Equal(t, game.VerdictAccept, verdict.Kind)
			live[f] = next
		}
	}
}

func TestEquipPhase(t *testing.T) {
	c, _, _ := newDraft(t, 10, 3)
	completeDraft(t, c)

	sel := c.Selections(game.FactionPlayer1)
	mapping := map[uuid.UUID][]game.GadgetKind{
		sel.Characters[0]: sel.Gadgets[:2],
		sel.Characters[1]: sel.Gadgets[2:3],
	}
	verdict := c.HandleEquipment(game.FactionPlayer1, mapping)
	require.Equal(t, game.VerdictAccept, verdict.Kind)
	require.False(t, c.EquipComplete(), "one submission must not complete the phase")

	// Second submission by the same player is a protocol violation.
	verdict = c.HandleEquipment(game.FactionPlayer1, mapping)
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)

	sel2 := c.Selections(game.FactionPlayer2)
	verdict = c.HandleEquipment(game.FactionPlayer2, map[uuid.UUID][]game.GadgetKind{
		sel2.Characters[0]: sel2.Gadgets,
	})
	require.Equal(t, game.VerdictAccept, verdict.Kind)
	require.True(t, c.EquipComplete())

	eq := c.Equipment()
	require.Len(t, eq[sel.Characters[0]], 2)
	require.Len(t, eq[sel2.Characters[0]], len(sel2.Gadgets))
}

func TestEquipRejectsForeignReferences(t *testing.T) {
	c, _, _ := newDraft(t, 10, 5)
	completeDraft(t, c)

	sel1 := c.Selections(game.FactionPlayer1)
	sel2 := c.Selections(game.FactionPlayer2)

	// Player two tries to equip player one's character.
	verdict := c.HandleEquipment(game.FactionPlayer2, map[uuid.UUID][]game.GadgetKind{
		sel1.Characters[0]: sel2.Gadgets[:1],
	})
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)

	// And a gadget they never drafted.
	verdict = c.HandleEquipment(game.FactionPlayer2, map[uuid.UUID][]game.GadgetKind{
		sel2.Characters[0]: sel1.Gadgets[:1],
	})
	require.Equal(t, game.VerdictDisconnect, verdict.Kind)
}

func TestPoisonPillsEquipCovert(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	p := pool.New(rand.New(rand.NewSource(9)))
	c := New(p, ids)
	c.chosen[game.FactionPlayer1] = &Selections{
		Characters: ids[:1],
		Gadgets:    []game.GadgetKind{game.GadgetPoisonPills, game.GadgetGrapple},
	}

	verdict := c.HandleEquipment(game.FactionPlayer1, map[uuid.UUID][]game.GadgetKind{
		ids[0]: {game.GadgetPoisonPills, game.GadgetGrapple},
	})
	require.Equal(t, game.VerdictAccept, verdict.Kind)

	covert := map[game.GadgetKind]bool{}
	for _, g := range c.Equipment()[ids[0]] {
		covert[g.Kind] = g.Covert
	}
	require.True(t, covert[game.GadgetPoisonPills])
	require.False(t, covert[game.GadgetGrapple])
}
