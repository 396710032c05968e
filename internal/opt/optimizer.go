package opt

import (
	"context"
	"fmt"
)

// Kind identifies how a parameter's values are drawn.
type Kind string

const (
	Range  Kind = "range"
	Choice Kind = "choice"
	Fixed  Kind = "fixed"
)

// ValueType narrows the values produced for a range parameter.
type ValueType string

const (
	Float ValueType = "float"
	Int   ValueType = "int"
)

// Parameter is the shape an optimizer backend is configured with.
// Only the payload matching Type is consulted.
type Parameter struct {
	Name      string
	Type      Kind
	Bounds    []float64
	Values    []any
	Value     any
	ValueType ValueType
	IsOrdered bool
}

// Assignment maps parameter names to the concrete values proposed for a trial.
type Assignment map[string]any

// Proposal is a single trial handed out by an optimizer.
type Proposal struct {
	TrialID    int
	Parameters Assignment
}

// Optimizer defines the ask/tell contract of a stateful, per-experiment
// optimization backend. Implementations always maximize the recorded
// feedback and never hand out the same trial id twice.
type Optimizer interface {
	// Propose returns the next parameter assignment to evaluate together
	// with the trial id the optimizer assigned to it.
	Propose(ctx context.Context) (Proposal, error)

	// Record reports the scalar outcome of a previously proposed trial.
	Record(ctx context.Context, trialID int, feedback float64) error

	// Close releases any resources held by the optimizer.
	Close() error
}

// Factory initializes a new optimizer for an experiment.
type Factory func(name string, params []Parameter) (Optimizer, error)

// Backend names accepted by NewFactory.
const (
	BackendRandom = "random"
	BackendMayfly = "mayfly"
)

// NewFactory returns the Factory for the named backend.
func NewFactory(backend string, seed int64, maxIters, popSize int) (Factory, error) {
	switch backend {
	case BackendRandom, "":
		return func(name string, params []Parameter) (Optimizer, error) {
			return NewRandom(params, seed)
		}, nil
	case BackendMayfly:
		return NewMayfly(maxIters, popSize, seed).New, nil
	default:
		return nil, fmt.Errorf("unknown optimizer backend: %s", backend)
	}
}
