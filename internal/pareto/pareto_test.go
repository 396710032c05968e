package pareto

import (
	"context"
	"math/rand"
	"testing"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var costAccuracy = []store.ObjectiveSpec{
	{Name: "cost", Minimize: true},
	{Name: "accuracy"},
}

func solution(id int, cost, accuracy float64) Solution {
	return Solution{TrialID: id, Objectives: map[string]float64{"cost": cost, "accuracy": accuracy}}
}

func ids(front []Solution) []int {
	out := make([]int, len(front))
	for i, s := range front {
		out[i] = s.TrialID
	}
	return out
}

func TestDominates(t *testing.T) {
	tests := []struct {
		name string
		b, a map[string]float64
		want bool
	}{
		{"better on both", map[string]float64{"cost": 1, "accuracy": 0.9}, map[string]float64{"cost": 2, "accuracy": 0.8}, true},
		{"equal cost, better accuracy", map[string]float64{"cost": 1, "accuracy": 0.95}, map[string]float64{"cost": 1, "accuracy": 0.9}, true},
		{"trade-off", map[string]float64{"cost": 1, "accuracy": 0.5}, map[string]float64{"cost": 2, "accuracy": 0.8}, false},
		{"identical", map[string]float64{"cost": 1, "accuracy": 0.5}, map[string]float64{"cost": 1, "accuracy": 0.5}, false},
		{"worse", map[string]float64{"cost": 3, "accuracy": 0.5}, map[string]float64{"cost": 1, "accuracy": 0.9}, false},
		{"b missing value", map[string]float64{"cost": 0}, map[string]float64{"cost": 1, "accuracy": 0.5}, false},
		{"a missing value", map[string]float64{"cost": 0, "accuracy": 1}, map[string]float64{"cost": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dominates(costAccuracy, tt.b, tt.a))
		})
	}
}

func TestDominates_MinimizeSingleObjective(t *testing.T) {
	objectives := []store.ObjectiveSpec{{Name: "o", Minimize: true}, {Name: "p"}}
	low := map[string]float64{"o": 1.0, "p": 5}
	high := map[string]float64{"o": 2.0, "p": 5}

	assert.True(t, Dominates(objectives, low, high))
	assert.False(t, Dominates(objectives, high, low))
	assert.Equal(t, []int{1}, ids(Front(objectives, []Solution{
		{TrialID: 1, Objectives: low},
		{TrialID: 2, Objectives: high},
	})))
}

func TestFront_CostAccuracyScenario(t *testing.T) {
	a := solution(0, 1, 0.9)
	b := solution(1, 2, 0.8)
	c := solution(2, 1, 0.95)

	front := Front(costAccuracy, []Solution{a, b, c})
	assert.Equal(t, []int{2}, ids(front))
}

func TestFront_KeepsTiesAndOrder(t *testing.T) {
	candidates := []Solution{
		solution(5, 2, 0.9),
		solution(3, 1, 0.5),
		solution(8, 2, 0.9),
		solution(1, 3, 0.4), // dominated by 3
	}

	assert.Equal(t, []int{5, 3, 8}, ids(Front(costAccuracy, candidates)))
}

func TestFront_MissingValuesStayOnFront(t *testing.T) {
	candidates := []Solution{
		solution(0, 1, 0.9),
		{TrialID: 1, Objectives: map[string]float64{"cost": 5}},
	}

	assert.Equal(t, []int{0, 1}, ids(Front(costAccuracy, candidates)))
}

func TestFront_Empty(t *testing.T) {
	assert.Empty(t, Front(costAccuracy, nil))
}

func TestFront_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	objectives := []store.ObjectiveSpec{{Name: "a", Minimize: true}, {Name: "b"}, {Name: "c", Minimize: true}}

	for round := 0; round < 20; round++ {
		candidates := make([]Solution, 40)
		for i := range candidates {
			candidates[i] = Solution{TrialID: i, Objectives: map[string]float64{
				"a": float64(rng.Intn(5)),
				"b": float64(rng.Intn(5)),
				"c": float64(rng.Intn(5)),
			}}
		}

		front := Front(objectives, candidates)
		onFront := make(map[int]bool, len(front))
		for _, s := range front {
			onFront[s.TrialID] = true
		}

		for _, a := range candidates {
			dominated := false
			for _, b := range candidates {
				if a.TrialID != b.TrialID && Dominates(objectives, b.Objectives, a.Objectives) {
					dominated = true
					break
				}
			}
			require.Equal(t, !dominated, onFront[a.TrialID], "trial %d", a.TrialID)
		}
	}
}

func newTestStore() *store.Store {
	return store.New(func(name string, params []opt.Parameter) (opt.Optimizer, error) {
		return opt.NewRandom(params, 1)
	})
}

func complete(t *testing.T, s *store.Store, id string, values map[string]float64) {
	t.Helper()
	ctx := context.Background()

	trial, err := s.NextTrial(ctx, id)
	require.NoError(t, err)
	_, err = s.CompleteTrial(ctx, id, store.Completion{TrialID: trial.ID, Values: store.Named(values)})
	require.NoError(t, err)
}

func TestEngine_Front(t *testing.T) {
	s := newTestStore()
	engine := NewEngine(s)

	_, err := engine.Front("missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	exp, err := s.Create("exp", store.ExperimentSpec{
		Name:       "tradeoff",
		Parameters: []store.ParameterSpec{{Name: "x", Type: opt.Range, Bounds: []float64{0, 1}}},
		Objectives: costAccuracy,
	})
	require.NoError(t, err)

	front, err := engine.Front(exp.ID)
	require.NoError(t, err)
	assert.NotNil(t, front)
	assert.Empty(t, front)

	complete(t, s, exp.ID, map[string]float64{"cost": 1, "accuracy": 0.9})
	complete(t, s, exp.ID, map[string]float64{"cost": 2, "accuracy": 0.8})
	complete(t, s, exp.ID, map[string]float64{"cost": 1, "accuracy": 0.95})
	complete(t, s, exp.ID, map[string]float64{"cost": 0.5, "accuracy": 0.7})

	// Pending trials never appear
	_, err = s.NextTrial(context.Background(), exp.ID)
	require.NoError(t, err)

	front, err = engine.Front(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ids(front))
	assert.Contains(t, front[0].Parameters, "x")

	again, err := engine.Front(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, front, again)
}

func TestEngine_SingleObjectiveUnsupported(t *testing.T) {
	s := newTestStore()
	engine := NewEngine(s)

	exp, err := s.Create("single", store.ExperimentSpec{
		Name:       "single",
		Objectives: []store.ObjectiveSpec{{Name: "loss", Minimize: true}},
	})
	require.NoError(t, err)

	_, err = engine.Front(exp.ID)
	assert.ErrorIs(t, err, store.ErrUnsupportedOperation)

	complete(t, s, exp.ID, map[string]float64{"loss": 1})
	_, err = engine.Front(exp.ID)
	assert.ErrorIs(t, err, store.ErrUnsupportedOperation)
}
