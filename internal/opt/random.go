package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrClosed is returned by optimizers used after Close.
var ErrClosed = errors.New("optimizer closed")

// RandomSampler proposes uniformly random assignments. Trial ids start at
// zero and increase by one per proposal.
type RandomSampler struct {
	mu      sync.Mutex
	space   *Space
	rng     *rand.Rand
	nextID  int
	pending map[int]bool
	closed  bool
}

// NewRandom creates a seeded random sampler over params.
func NewRandom(params []Parameter, seed int64) (*RandomSampler, error) {
	space, err := NewSpace(params)
	if err != nil {
		return nil, err
	}

	return &RandomSampler{
		space:   space,
		rng:     rand.New(rand.NewSource(seed)),
		pending: make(map[int]bool),
	}, nil
}

// Propose draws the next assignment.
func (r *RandomSampler) Propose(ctx context.Context) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Proposal{}, ErrClosed
	}

	id := r.nextID
	r.nextID++
	r.pending[id] = true

	return Proposal{TrialID: id, Parameters: r.space.Sample(r.rng)}, nil
}

// Record accepts feedback for a pending trial. The sampler ignores the
// value itself.
func (r *RandomSampler) Record(ctx context.Context, trialID int, feedback float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if !r.pending[trialID] {
		return fmt.Errorf("trial %d is not pending", trialID)
	}

	delete(r.pending, trialID)
	return nil
}

// Close marks the sampler unusable.
func (r *RandomSampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}
