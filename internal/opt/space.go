package opt

import (
	"fmt"
	"math"
	"math/rand"
)

// Space maps points of the unit hypercube onto parameter assignments.
// Every range and choice parameter contributes one dimension; fixed
// parameters contribute none.
type Space struct {
	params []Parameter
	free   []int // indexes into params that own a dimension
}

// NewSpace validates the parameters and builds their search space.
func NewSpace(params []Parameter) (*Space, error) {
	s := &Space{params: params}
	seen := make(map[string]bool, len(params))

	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter %d: name is required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter: %s", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case Range:
			if len(p.Bounds) != 2 {
				return nil, fmt.Errorf("parameter %s: range needs exactly two bounds, got %d", p.Name, len(p.Bounds))
			}
			lo, hi := p.Bounds[0], p.Bounds[1]
			if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
				return nil, fmt.Errorf("parameter %s: bounds must be finite", p.Name)
			}
			if lo > hi {
				return nil, fmt.Errorf("parameter %s: lower bound %g exceeds upper bound %g", p.Name, lo, hi)
			}
			if p.ValueType != "" && p.ValueType != Float && p.ValueType != Int {
				return nil, fmt.Errorf("parameter %s: unknown value type %q", p.Name, p.ValueType)
			}
			if p.ValueType == Int && math.Ceil(lo) > math.Floor(hi) {
				return nil, fmt.Errorf("parameter %s: no integer between %g and %g", p.Name, lo, hi)
			}
			s.free = append(s.free, i)
		case Choice:
			if len(p.Values) == 0 {
				return nil, fmt.Errorf("parameter %s: choice needs at least one value", p.Name)
			}
			s.free = append(s.free, i)
		case Fixed:
			if p.Value == nil {
				return nil, fmt.Errorf("parameter %s: fixed needs a value", p.Name)
			}
		default:
			return nil, fmt.Errorf("parameter %s: unknown type %q", p.Name, p.Type)
		}
	}

	return s, nil
}

// Dim returns the number of free dimensions.
func (s *Space) Dim() int {
	return len(s.free)
}

// Decode converts a point of the unit hypercube into an assignment.
// Coordinates outside [0, 1] are clamped.
func (s *Space) Decode(x []float64) Assignment {
	out := make(Assignment, len(s.params))
	for _, p := range s.params {
		if p.Type == Fixed {
			out[p.Name] = p.Value
		}
	}

	for d, idx := range s.free {
		p := s.params[idx]
		u := 0.0
		if d < len(x) {
			u = clamp01(x[d])
		}

		switch p.Type {
		case Range:
			lo, hi := p.Bounds[0], p.Bounds[1]
			v := lo + u*(hi-lo)
			if p.ValueType == Int {
				out[p.Name] = int(math.Max(math.Ceil(lo), math.Min(math.Floor(hi), math.Round(v))))
			} else {
				out[p.Name] = v
			}
		case Choice:
			n := len(p.Values)
			i := int(u * float64(n))
			if i >= n {
				i = n - 1
			}
			out[p.Name] = p.Values[i]
		}
	}

	return out
}

// Sample draws a uniformly random assignment.
func (s *Space) Sample(rng *rand.Rand) Assignment {
	x := make([]float64, s.Dim())
	for i := range x {
		x[i] = rng.Float64()
	}
	return s.Decode(x)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
