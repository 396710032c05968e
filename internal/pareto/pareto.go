// Package pareto computes the non-dominated trials of multi-objective
// experiments.
package pareto

import (
	"log/slog"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/cwbudde/adaptivexp/internal/store"
)

// Solution is a trial on the Pareto front.
type Solution struct {
	TrialID    int                `json:"trial_id"`
	Parameters opt.Assignment     `json:"parameters"`
	Objectives map[string]float64 `json:"objectives"`
}

// Dominates reports whether b dominates a: b is no worse than a on every
// objective and strictly better on at least one. A value missing on either
// side means b does not dominate a.
func Dominates(objectives []store.ObjectiveSpec, b, a map[string]float64) bool {
	better := false

	for _, o := range objectives {
		vb, okB := b[o.Name]
		va, okA := a[o.Name]
		if !okA || !okB {
			return false
		}

		if o.Minimize {
			if vb > va {
				return false
			}
			if vb < va {
				better = true
			}
		} else {
			if vb < va {
				return false
			}
			if vb > va {
				better = true
			}
		}
	}

	return better
}

// Front returns the candidates no other candidate dominates, in input order.
// Candidates with identical objective vectors are all kept.
func Front(objectives []store.ObjectiveSpec, candidates []Solution) []Solution {
	front := make([]Solution, 0, len(candidates))

	for i, a := range candidates {
		dominated := false
		for j, b := range candidates {
			if i == j {
				continue
			}
			if Dominates(objectives, b.Objectives, a.Objectives) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, a)
		}
	}

	return front
}

// Engine computes fronts for experiments held in a store.
type Engine struct {
	store *store.Store
}

// NewEngine creates an engine reading from s.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Front returns the Pareto-optimal completed trials of the experiment.
// Single-objective experiments have no front and fail with
// store.ErrUnsupportedOperation. No completed trials yields an empty front.
func (e *Engine) Front(experimentID string) ([]Solution, error) {
	const op = "pareto_front"

	exp, err := e.store.Get(experimentID)
	if err != nil {
		return nil, err
	}
	if !exp.MultiObjective {
		return nil, &store.Error{
			Kind: store.KindUnsupportedOperation,
			Op:   op,
			Msg:  "Pareto front only available for multi-objective experiments",
		}
	}

	trials := exp.CompletedTrials()
	if len(trials) == 0 {
		slog.Info("No completed trials", "experiment_id", experimentID)
		return []Solution{}, nil
	}

	candidates := make([]Solution, len(trials))
	for i, t := range trials {
		candidates[i] = Solution{TrialID: t.ID, Parameters: t.Parameters, Objectives: t.Objectives}
	}

	slog.Debug("Calculating Pareto front", "experiment_id", experimentID, "trials", len(candidates))
	front := Front(exp.Objectives, candidates)
	slog.Info("Found Pareto-optimal solutions", "experiment_id", experimentID, "count", len(front))

	return front, nil
}
