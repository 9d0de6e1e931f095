package pool

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/mkempf/covert-duel-backend/internal/game"
)

// ErrInsufficientPool means a draw found nothing left to offer. Callers are
// expected to consult the *OfferPossible checks first; hitting this is a
// roster/configuration mismatch, not a player-facing error.
var ErrInsufficientPool = errors.New("selection pool exhausted")

// OfferSize is how many of each kind a single offer extends. Single-kind
// offers shrink below this once a sub-pool runs short; the mixed offer never
// does.
const OfferSize = 3

// Offer is a batch temporarily reserved for one player. Items in an offer
// are absent from the pool until confirmed or returned.
type Offer struct {
	Characters []uuid.UUID
	Gadgets    []game.GadgetKind
}

func (o Offer) HasCharacter(id uuid.UUID) bool {
	for _, c := range o.Characters {
		if c == id {
			return true
		}
	}
	return false
}

func (o Offer) HasGadget(kind game.GadgetKind) bool {
	for _, g := range o.Gadgets {
		if g == kind {
			return true
		}
	}
	return false
}

// Pool holds the two drafting sub-pools. Both players' draft requests race
// on it, so every operation runs under one mutex; draws are atomic (no
// partial offers) and capacity checks are consistent with draws.
type Pool struct {
	mu         sync.Mutex
	rng        *rand.Rand
	characters []uuid.UUID
	gadgets    []game.GadgetKind
}

func New(rng *rand.Rand) *Pool {
	return &Pool{rng: rng}
}

// AddCharacters inserts character ids back into the pool. Always succeeds.
func (p *Pool) AddCharacters(ids ...uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.characters = append(p.characters, ids...)
}

// AddGadgets inserts gadget kinds back into the pool. Always succeeds.
func (p *Pool) AddGadgets(kinds ...game.GadgetKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gadgets = append(p.gadgets, kinds...)
}

// RequestSelection removes and returns OfferSize characters and OfferSize
// gadgets chosen uniformly without replacement. If either sub-pool is short
// the pool is left untouched.
func (p *Pool) RequestSelection() (Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.characters) < OfferSize || len(p.gadgets) < OfferSize {
		return Offer{}, ErrInsufficientPool
	}
	return Offer{
		Characters: p.drawCharacters(OfferSize),
		Gadgets:    p.drawGadgets(OfferSize),
	}, nil
}

// RequestCharacterSelection draws a characters-only offer, used once the
// gadget sub-pool (or the player's gadget cap) runs out first. Near the end
// of a draft the sub-pool may hold fewer than OfferSize entries, some of
// them parked in the opponent's confirmed set or live offer; the offer
// shrinks to whatever is left rather than failing.
func (p *Pool) RequestCharacterSelection() (Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.characters) == 0 {
		return Offer{}, ErrInsufficientPool
	}
	return Offer{Characters: p.drawCharacters(min(OfferSize, len(p.characters)))}, nil
}

// RequestGadgetSelection draws a gadgets-only offer, shrinking like
// RequestCharacterSelection when the sub-pool runs short.
func (p *Pool) RequestGadgetSelection() (Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.gadgets) == 0 {
		return Offer{}, ErrInsufficientPool
	}
	return Offer{Gadgets: p.drawGadgets(min(OfferSize, len(p.gadgets)))}, nil
}

func (p *Pool) OfferPossible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.characters) >= OfferSize && len(p.gadgets) >= OfferSize
}

func (p *Pool) CharacterOfferPossible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.characters) > 0
}

func (p *Pool) GadgetOfferPossible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gadgets) > 0
}

// Remaining reports current sub-pool sizes.
func (p *Pool) Remaining() (characters, gadgets int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.characters), len(p.gadgets)
}

// Contents snapshots both sub-pools, for invariant checks in tests.
func (p *Pool) Contents() ([]uuid.UUID, []game.GadgetKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chars := make([]uuid.UUID, len(p.characters))
	copy(chars, p.characters)
	kinds := make([]game.GadgetKind, len(p.gadgets))
	copy(kinds, p.gadgets)
	return chars, kinds
}

// swap-remove draw; callers hold p.mu.
func (p *Pool) drawCharacters(n int) []uuid.UUID {
	out := make([]uuid.UUID, 0, n)
	for len(out) < n {
		i := p.rng.Intn(len(p.characters))
		out = append(out, p.characters[i])
		p.characters[i] = p.characters[len(p.characters)-1]
		p.characters = p.characters[:len(p.characters)-1]
	}
	return out
}

func (p *Pool) drawGadgets(n int) []game.GadgetKind {
	out := make([]game.GadgetKind, 0, n)
	for len(out) < n {
		i := p.rng.Intn(len(p.gadgets))
		out = append(out, p.gadgets[i])
		p.gadgets[i] = p.gadgets[len(p.gadgets)-1]
		p.gadgets = p.gadgets[:len(p.gadgets)-1]
	}
	return out
}
