package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest swarm the mayfly library accepts.
const MinPopulation = 20

// MayflyAdapter configures mayfly-backed optimizers.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// New initializes an ask/tell session for one experiment. It satisfies Factory.
func (m *MayflyAdapter) New(name string, params []Parameter) (Optimizer, error) {
	space, err := NewSpace(params)
	if err != nil {
		return nil, err
	}
	if m.maxIters <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", m.maxIters)
	}

	return &mayflySession{
		name:     name,
		adapter:  m,
		space:    space,
		rng:      rand.New(rand.NewSource(m.seed)),
		asks:     make(chan evaluation),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
		inflight: make(map[int]chan float64),
		pending:  make(map[int]bool),
	}, nil
}

// evaluation is a point the swarm wants scored.
type evaluation struct {
	x     []float64
	reply chan float64
}

// mayflySession turns the library's callback-driven Optimize loop into
// ask/tell calls. The swarm runs in its own goroutine and blocks inside
// the objective function until the matching trial is recorded. While the
// swarm waits on an outstanding trial, or once it has finished, further
// proposals come from a seeded random sampler over the same space.
type mayflySession struct {
	name    string
	adapter *MayflyAdapter
	space   *Space

	mu       sync.Mutex
	rng      *rand.Rand
	nextID   int
	started  bool
	inflight map[int]chan float64 // swarm trials awaiting feedback
	pending  map[int]bool

	asks      chan evaluation
	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

func (s *mayflySession) Propose(ctx context.Context) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.quit:
		return Proposal{}, ErrClosed
	default:
	}

	if s.space.Dim() > 0 && !s.started {
		s.start()
	}

	var params Assignment
	var reply chan float64

	switch {
	case s.space.Dim() == 0:
		params = s.space.Decode(nil)
	case len(s.inflight) == 0:
		// The swarm is not waiting on anyone, so its next point is coming.
		select {
		case ev := <-s.asks:
			params, reply = s.space.Decode(ev.x), ev.reply
		case <-s.done:
			params = s.space.Sample(s.rng)
		case <-s.quit:
			return Proposal{}, ErrClosed
		case <-ctx.Done():
			return Proposal{}, ctx.Err()
		}
	default:
		select {
		case ev := <-s.asks:
			params, reply = s.space.Decode(ev.x), ev.reply
		default:
			params = s.space.Sample(s.rng)
		}
	}

	id := s.nextID
	s.nextID++
	s.pending[id] = true
	if reply != nil {
		s.inflight[id] = reply
	}

	slog.Debug("Mayfly proposal", "experiment", s.name, "trial_id", id, "swarm", reply != nil)
	return Proposal{TrialID: id, Parameters: params}, nil
}

func (s *mayflySession) Record(ctx context.Context, trialID int, feedback float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.quit:
		return ErrClosed
	default:
	}

	if !s.pending[trialID] {
		return fmt.Errorf("trial %d is not pending", trialID)
	}
	delete(s.pending, trialID)

	if reply, ok := s.inflight[trialID]; ok {
		delete(s.inflight, trialID)
		// Mayfly minimizes cost; feedback is maximized.
		reply <- -feedback
	}
	return nil
}

func (s *mayflySession) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
	})

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
	return nil
}

// start launches the swarm. Callers hold s.mu.
func (s *mayflySession) start() {
	s.started = true

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = s.evaluate
	config.ProblemSize = s.space.Dim()
	config.MaxIterations = s.adapter.maxIters
	config.NPop = s.adapter.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(s.adapter.seed))

	go func() {
		defer close(s.done)

		result, err := mayfly.Optimize(config)
		if err != nil {
			slog.Warn("Mayfly swarm stopped", "experiment", s.name, "error", err)
			return
		}
		slog.Info("Mayfly swarm finished", "experiment", s.name, "best_feedback", -result.GlobalBest.Cost)
	}()
}

// evaluate is the swarm's objective function. After Close it returns the
// worst possible cost so the library drains quickly.
func (s *mayflySession) evaluate(x []float64) float64 {
	point := make([]float64, len(x))
	copy(point, x)
	reply := make(chan float64, 1)

	select {
	case s.asks <- evaluation{x: point, reply: reply}:
	case <-s.quit:
		return math.MaxFloat64
	}

	select {
	case cost := <-reply:
		return cost
	case <-s.quit:
		return math.MaxFloat64
	}
}
