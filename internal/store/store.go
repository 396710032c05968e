package store

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/google/uuid"
)

// Experiment is a live experiment. The exported fields are fixed at
// creation; trials and the optimizer handle are guarded by the
// experiment's own lock.
type Experiment struct {
	ID             string
	Spec           ExperimentSpec
	Objectives     []ObjectiveSpec
	Primary        ObjectiveSpec
	MultiObjective bool
	CreatedAt      time.Time

	mu        sync.Mutex
	optimizer opt.Optimizer
	trials    map[int]*Trial
	order     []int // trial ids in proposal order
	trace     *TraceWriter
	closed    bool
}

func newExperiment(id string, spec ExperimentSpec, optimizer opt.Optimizer) *Experiment {
	spec.Parameters = append([]ParameterSpec(nil), spec.Parameters...)
	spec.Objectives = append([]ObjectiveSpec(nil), spec.Objectives...)

	primary := spec.Objectives[0]
	for _, o := range spec.Objectives {
		if o.Name == spec.PrimaryObjective {
			primary = o
			break
		}
	}

	return &Experiment{
		ID:             id,
		Spec:           spec,
		Objectives:     spec.Objectives,
		Primary:        primary,
		MultiObjective: len(spec.Objectives) > 1,
		CreatedAt:      time.Now(),
		optimizer:      optimizer,
		trials:         make(map[int]*Trial),
	}
}

// release closes the optimizer and the trace.
func (e *Experiment) release() {
	if err := e.optimizer.Close(); err != nil {
		slog.Warn("Failed to close optimizer", "experiment_id", e.ID, "error", err)
	}
	if e.trace != nil {
		if err := e.trace.Close(); err != nil {
			slog.Warn("Failed to close trial trace", "experiment_id", e.ID, "error", err)
		}
	}
}

// Trials returns copies of all trials in the order they were proposed.
func (e *Experiment) Trials() []Trial {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Trial, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.trials[id].snapshot())
	}
	return out
}

// CompletedTrials returns copies of the completed trials that carry
// objective values, in the order they were proposed.
func (e *Experiment) CompletedTrials() []Trial {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Trial, 0, len(e.order))
	for _, id := range e.order {
		t := e.trials[id]
		if t.Status == TrialCompleted && t.Objectives != nil {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// Summary returns a listing view of the experiment.
func (e *Experiment) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	completed := 0
	for _, t := range e.trials {
		if t.Status == TrialCompleted {
			completed++
		}
	}

	return Summary{
		ID:               e.ID,
		Name:             e.Spec.Name,
		Objectives:       e.Objectives,
		PrimaryObjective: e.Primary.Name,
		MultiObjective:   e.MultiObjective,
		Trials:           len(e.trials),
		Completed:        completed,
		CreatedAt:        e.CreatedAt,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithStrictObjectives makes CompleteTrial reject named objective values
// that lack the primary objective instead of reporting 0.0 feedback.
func WithStrictObjectives(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// WithTraceDir appends every completed trial to
// <dir>/experiments/<id>/trials.jsonl. An empty dir disables tracing.
func WithTraceDir(dir string) Option {
	return func(s *Store) {
		s.traceDir = dir
	}
}

// Store owns all experiments of the process. It is safe for concurrent use;
// operations on one experiment are serialized by that experiment's lock.
type Store struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	factory     opt.Factory
	strict      bool
	traceDir    string
}

// New creates a store that initializes optimizers through factory.
func New(factory opt.Factory, opts ...Option) *Store {
	s := &Store{
		experiments: make(map[string]*Experiment),
		factory:     factory,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates spec, initializes its optimizer and registers the
// experiment under id. An empty id is replaced by a generated UUID. On any
// failure nothing is registered.
func (s *Store) Create(id string, spec ExperimentSpec) (*Experiment, error) {
	const op = "create"

	if err := spec.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidConfiguration, Op: op, Err: err}
	}

	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.lookup(id); exists {
		return nil, newError(KindInvalidConfiguration, op, "experiment %s already exists", id)
	}

	params := make([]opt.Parameter, len(spec.Parameters))
	for i := range spec.Parameters {
		params[i] = spec.Parameters[i].normalize()
	}

	slog.Info("Creating experiment", "experiment_id", id, "name", spec.Name,
		"parameters", len(params), "objectives", len(spec.Objectives))

	// Objectives stay here; the optimizer only ever sees a scalar.
	optimizer, err := s.factory(spec.Name, params)
	if err != nil {
		slog.Error("Optimizer rejected experiment", "experiment_id", id, "name", spec.Name, "error", err)
		return nil, &Error{Kind: KindOptimizerFailure, Op: op, Msg: "initialize optimizer", Err: err}
	}

	exp := newExperiment(id, spec, optimizer)
	if s.traceDir != "" {
		// The trace is best effort; an experiment runs fine without one.
		if exp.trace, err = NewTraceWriter(s.traceDir, id); err != nil {
			slog.Warn("Failed to open trial trace", "experiment_id", id, "error", err)
		}
	}

	s.mu.Lock()
	if _, exists := s.experiments[id]; exists {
		s.mu.Unlock()
		exp.release()
		return nil, newError(KindInvalidConfiguration, op, "experiment %s already exists", id)
	}
	s.experiments[id] = exp
	s.mu.Unlock()

	slog.Info("Created experiment", "experiment_id", id, "multi_objective", exp.MultiObjective,
		"primary_objective", exp.Primary.Name)
	return exp, nil
}

// Get returns the experiment registered under id.
func (s *Store) Get(id string) (*Experiment, error) {
	exp, ok := s.lookup(id)
	if !ok {
		return nil, newError(KindNotFound, "get", "experiment %s not found", id)
	}
	return exp, nil
}

// List returns summaries of all experiments, oldest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	exps := make([]*Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		exps = append(exps, exp)
	}
	s.mu.RUnlock()

	sort.Slice(exps, func(i, j int) bool {
		if exps[i].CreatedAt.Equal(exps[j].CreatedAt) {
			return exps[i].ID < exps[j].ID
		}
		return exps[i].CreatedAt.Before(exps[j].CreatedAt)
	})

	out := make([]Summary, len(exps))
	for i, exp := range exps {
		out[i] = exp.Summary()
	}
	return out
}

// Delete removes the experiment and closes its optimizer.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	exp, ok := s.experiments[id]
	delete(s.experiments, id)
	s.mu.Unlock()

	if !ok {
		return newError(KindNotFound, "delete", "experiment %s not found", id)
	}

	exp.mu.Lock()
	exp.closed = true
	exp.mu.Unlock()

	// Close may wait for the optimizer to wind down; do it unlocked.
	exp.release()

	slog.Info("Deleted experiment", "experiment_id", id)
	return nil
}

// NextTrial asks the experiment's optimizer for the next assignment and
// records it as a pending trial.
func (s *Store) NextTrial(ctx context.Context, id string) (Trial, error) {
	const op = "next_trial"

	exp, ok := s.lookup(id)
	if !ok {
		slog.Error("Experiment not found", "experiment_id", id)
		return Trial{}, newError(KindNotFound, op, "experiment %s not found", id)
	}

	exp.mu.Lock()
	defer exp.mu.Unlock()

	if exp.closed {
		return Trial{}, newError(KindNotFound, op, "experiment %s not found", id)
	}

	proposal, err := exp.optimizer.Propose(ctx)
	if err != nil {
		slog.Error("Failed to get next trial", "experiment_id", id, "error", err)
		return Trial{}, &Error{Kind: KindOptimizerFailure, Op: op, Msg: "propose", Err: err}
	}
	if _, exists := exp.trials[proposal.TrialID]; exists {
		slog.Error("Optimizer reused trial id", "experiment_id", id, "trial_id", proposal.TrialID)
		return Trial{}, newError(KindOptimizerFailure, op, "optimizer reused trial id %d", proposal.TrialID)
	}

	trial := &Trial{
		ID:         proposal.TrialID,
		Parameters: proposal.Parameters,
		Status:     TrialPending,
		CreatedAt:  time.Now(),
	}
	exp.trials[trial.ID] = trial
	exp.order = append(exp.order, trial.ID)

	slog.Info("Got trial", "experiment_id", id, "trial_id", trial.ID, "parameters", trial.Parameters)
	return trial.snapshot(), nil
}

// CompleteTrial records the outcome of a pending trial and reports its
// scalar feedback to the optimizer. A trial completes at most once.
func (s *Store) CompleteTrial(ctx context.Context, id string, c Completion) (Trial, error) {
	const op = "complete_trial"

	exp, ok := s.lookup(id)
	if !ok {
		slog.Error("Experiment not found", "experiment_id", id)
		return Trial{}, newError(KindNotFound, op, "experiment %s not found", id)
	}

	exp.mu.Lock()
	defer exp.mu.Unlock()

	if exp.closed {
		return Trial{}, newError(KindNotFound, op, "experiment %s not found", id)
	}

	trial, ok := exp.trials[c.TrialID]
	if !ok {
		slog.Error("Trial not found", "experiment_id", id, "trial_id", c.TrialID)
		return Trial{}, newError(KindNotFound, op, "trial %d not found in experiment %s", c.TrialID, id)
	}
	if trial.Status != TrialPending {
		slog.Error("Trial already completed", "experiment_id", id, "trial_id", c.TrialID)
		return Trial{}, newError(KindNotFound, op, "trial %d is not pending", c.TrialID)
	}

	if c.Values.IsZero() {
		return Trial{}, newError(KindInvalidConfiguration, op, "objective values are required")
	}
	values := c.Values.Map(exp.Primary.Name)
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Trial{}, newError(KindInvalidConfiguration, op, "objective %s is not finite", name)
		}
	}

	feedback, found := ScalarFeedback(exp.Primary, c.Values)
	if !found {
		if s.strict {
			return Trial{}, newError(KindInvalidConfiguration, op,
				"objective values lack primary objective %s", exp.Primary.Name)
		}
		slog.Warn("Primary objective missing, reporting default feedback",
			"experiment_id", id, "trial_id", c.TrialID, "primary_objective", exp.Primary.Name, "feedback", feedback)
	}

	slog.Info("Completing trial", "experiment_id", id, "trial_id", c.TrialID, "feedback", feedback)
	if err := exp.optimizer.Record(ctx, trial.ID, feedback); err != nil {
		slog.Error("Failed to complete trial", "experiment_id", id, "trial_id", c.TrialID, "error", err)
		return Trial{}, &Error{Kind: KindOptimizerFailure, Op: op, Msg: "record", Err: err}
	}

	now := time.Now()
	trial.Status = TrialCompleted
	trial.Objectives = values
	trial.Feedback = feedback
	trial.Metadata = c.Metadata
	trial.CompletedAt = &now

	if exp.trace != nil {
		if err := exp.writeTrace(trial); err != nil {
			slog.Warn("Failed to trace trial", "experiment_id", id, "trial_id", trial.ID, "error", err)
		}
	}

	return trial.snapshot(), nil
}

func (e *Experiment) writeTrace(t *Trial) error {
	err := e.trace.Write(TraceEntry{
		ExperimentID: e.ID,
		TrialID:      t.ID,
		Parameters:   t.Parameters,
		Objectives:   t.Objectives,
		Feedback:     t.Feedback,
		Metadata:     t.Metadata,
		CompletedAt:  *t.CompletedAt,
	})
	if err != nil {
		return err
	}
	return e.trace.Flush()
}

func (s *Store) lookup(id string) (*Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	return exp, ok
}
