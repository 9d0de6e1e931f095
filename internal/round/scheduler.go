package round

import (
	"math/rand"

	"github.com/google/uuid"
)

// Scheduler tracks which units still have to act this round. Every unit id
// is in exactly one of {queue, active slot, acted} at any time. The queue is
// rebuilt with a fresh shuffle at the start of every round.
type Scheduler struct {
	rng       *rand.Rand
	queue     []uuid.UUID
	active    uuid.UUID
	hasActive bool
	acted     []uuid.UUID
}

func NewScheduler(rng *rand.Rand) *Scheduler {
	return &Scheduler{rng: rng}
}

// StartRound loads a uniformly random permutation of living into the queue
// and clears the active slot and acted list.
func (s *Scheduler) StartRound(living []uuid.UUID) {
	s.queue = make([]uuid.UUID, len(living))
	copy(s.queue, living)
	s.rng.Shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
	s.acted = s.acted[:0]
	s.hasActive = false
}

// Next retires the current active unit (if any) and pulls the next id from
// the queue. ok is false once the queue is exhausted.
func (s *Scheduler) Next() (id uuid.UUID, ok bool) {
	if s.hasActive {
		s.acted = append(s.acted, s.active)
		s.hasActive = false
	}
	if len(s.queue) == 0 {
		return uuid.UUID{}, false
	}
	s.active = s.queue[0]
	s.queue = s.queue[1:]
	s.hasActive = true
	return s.active, true
}

// Active returns the unit currently awaiting its action.
func (s *Scheduler) Active() (uuid.UUID, bool) {
	return s.active, s.hasActive
}

// Pending reports how many units have not yet been pulled this round.
func (s *Scheduler) Pending() int { return len(s.queue) }

// Acted returns the ids that finished their turn this round, in order.
func (s *Scheduler) Acted() []uuid.UUID { return s.acted }
