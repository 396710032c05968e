package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/adaptivexp/internal/opt"
)

// ParameterSpec declares one tunable parameter of an experiment.
type ParameterSpec struct {
	Name string   `json:"name" yaml:"name"`
	Type opt.Kind `json:"type" yaml:"type"` // range, choice, fixed

	Bounds    []float64     `json:"bounds,omitempty" yaml:"bounds,omitempty"`         // range
	ValueType opt.ValueType `json:"value_type,omitempty" yaml:"value_type,omitempty"` // range
	Values    []any         `json:"values,omitempty" yaml:"values,omitempty"`         // choice
	IsOrdered bool          `json:"is_ordered,omitempty" yaml:"is_ordered,omitempty"` // choice
	Value     any           `json:"value,omitempty" yaml:"value,omitempty"`           // fixed
}

// ObjectiveSpec declares one measured outcome and its direction.
type ObjectiveSpec struct {
	Name     string `json:"name" yaml:"name"`
	Minimize bool   `json:"minimize" yaml:"minimize"`
}

// ExperimentSpec is an experiment creation request.
type ExperimentSpec struct {
	Name       string          `json:"name" yaml:"name"`
	Parameters []ParameterSpec `json:"parameters" yaml:"parameters"`
	Objectives []ObjectiveSpec `json:"objectives" yaml:"objectives"`

	// PrimaryObjective optionally names the objective that drives the
	// optimizer. Defaults to the first declared objective.
	PrimaryObjective string `json:"primary_objective,omitempty" yaml:"primary_objective,omitempty"`
}

// Validate checks the request before anything is created.
// Objectives are checked first so a request without any always fails on them.
func (s *ExperimentSpec) Validate() error {
	if len(s.Objectives) == 0 {
		return &ValidationError{Field: "objectives", Reason: "must define at least one objective"}
	}
	objectives := make(map[string]bool, len(s.Objectives))
	for i, o := range s.Objectives {
		field := fmt.Sprintf("objectives[%d].name", i)
		if o.Name == "" {
			return &ValidationError{Field: field, Reason: "cannot be empty"}
		}
		if objectives[o.Name] {
			return &ValidationError{Field: field, Reason: "duplicates " + o.Name}
		}
		objectives[o.Name] = true
	}
	if s.PrimaryObjective != "" && !objectives[s.PrimaryObjective] {
		return &ValidationError{Field: "primary_objective", Reason: "must name a declared objective"}
	}

	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}

	params := make(map[string]bool, len(s.Parameters))
	for i, p := range s.Parameters {
		if err := p.validate(fmt.Sprintf("parameters[%d]", i)); err != nil {
			return err
		}
		if params[p.Name] {
			return &ValidationError{Field: fmt.Sprintf("parameters[%d].name", i), Reason: "duplicates " + p.Name}
		}
		params[p.Name] = true
	}
	return nil
}

func (p *ParameterSpec) validate(field string) error {
	if p.Name == "" {
		return &ValidationError{Field: field + ".name", Reason: "cannot be empty"}
	}

	switch p.Type {
	case opt.Range:
		if len(p.Bounds) != 2 {
			return &ValidationError{Field: field + ".bounds", Reason: "must have exactly two values"}
		}
		for _, b := range p.Bounds {
			if math.IsNaN(b) || math.IsInf(b, 0) {
				return &ValidationError{Field: field + ".bounds", Reason: "must be finite"}
			}
		}
		if p.Bounds[0] > p.Bounds[1] {
			return &ValidationError{Field: field + ".bounds", Reason: "lower bound exceeds upper bound"}
		}
		if p.ValueType != "" && p.ValueType != opt.Float && p.ValueType != opt.Int {
			return &ValidationError{Field: field + ".value_type", Reason: "must be float or int"}
		}
		if p.ValueType == opt.Int && math.Ceil(p.Bounds[0]) > math.Floor(p.Bounds[1]) {
			return &ValidationError{Field: field + ".bounds", Reason: "contain no integer"}
		}
	case opt.Choice:
		if len(p.Values) == 0 {
			return &ValidationError{Field: field + ".values", Reason: "cannot be empty"}
		}
	case opt.Fixed:
		if p.Value == nil {
			return &ValidationError{Field: field + ".value", Reason: "is required"}
		}
	default:
		return &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown type %q", p.Type)}
	}
	return nil
}

// normalize converts the spec into the optimizer's shape. Payloads pass
// through untouched; only the field matching the type is carried.
func (p *ParameterSpec) normalize() opt.Parameter {
	out := opt.Parameter{Name: p.Name, Type: p.Type}
	switch p.Type {
	case opt.Range:
		out.Bounds = append([]float64(nil), p.Bounds...)
		out.ValueType = p.ValueType
	case opt.Choice:
		out.Values = append([]any(nil), p.Values...)
		out.IsOrdered = p.IsOrdered
	case opt.Fixed:
		out.Value = p.Value
	}
	return out
}

// ObjectiveValues is the observed outcome of a trial: either a bare
// number, or values keyed by objective name.
type ObjectiveValues struct {
	scalar   float64
	named    map[string]float64
	isScalar bool
}

// Scalar wraps a single value meant for the primary objective.
func Scalar(v float64) ObjectiveValues {
	return ObjectiveValues{scalar: v, isScalar: true}
}

// Named wraps values keyed by objective name.
func Named(values map[string]float64) ObjectiveValues {
	return ObjectiveValues{named: values}
}

// IsScalar reports whether the values were given as a bare number.
func (v ObjectiveValues) IsScalar() bool {
	return v.isScalar
}

// IsZero reports whether no values were supplied at all.
func (v ObjectiveValues) IsZero() bool {
	return !v.isScalar && v.named == nil
}

// Map returns the values keyed by objective name. A scalar is keyed by primary.
func (v ObjectiveValues) Map(primary string) map[string]float64 {
	if v.isScalar {
		return map[string]float64{primary: v.scalar}
	}
	out := make(map[string]float64, len(v.named))
	for k, val := range v.named {
		out[k] = val
	}
	return out
}

func (v ObjectiveValues) MarshalJSON() ([]byte, error) {
	if v.isScalar {
		return json.Marshal(v.scalar)
	}
	return json.Marshal(v.named)
}

func (v *ObjectiveValues) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ObjectiveValues{}
		return nil
	}

	if data[0] == '{' {
		var raw map[string]*float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("objective values: %w", err)
		}
		// A null value counts as not reported.
		named := make(map[string]float64, len(raw))
		for name, val := range raw {
			if val != nil {
				named[name] = *val
			}
		}
		*v = Named(named)
		return nil
	}

	var scalar float64
	if err := json.Unmarshal(data, &scalar); err != nil {
		return fmt.Errorf("objective values must be a number or an object: %w", err)
	}
	*v = Scalar(scalar)
	return nil
}

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	TrialPending   TrialStatus = "pending"
	TrialCompleted TrialStatus = "completed"
)

// Trial is one proposed parameter assignment and, once completed, its outcome.
type Trial struct {
	ID          int                `json:"trial_id"`
	Parameters  opt.Assignment     `json:"parameters"`
	Status      TrialStatus        `json:"status"`
	Objectives  map[string]float64 `json:"objective_values,omitempty"`
	Feedback    float64            `json:"feedback"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

func (t *Trial) snapshot() Trial {
	out := *t
	out.Parameters = make(opt.Assignment, len(t.Parameters))
	for k, v := range t.Parameters {
		out.Parameters[k] = v
	}
	if t.Objectives != nil {
		out.Objectives = make(map[string]float64, len(t.Objectives))
		for k, v := range t.Objectives {
			out.Objectives[k] = v
		}
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Completion reports the outcome of a pending trial.
type Completion struct {
	TrialID  int             `json:"trial_id"`
	Values   ObjectiveValues `json:"objective_values"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Summary is a lightweight view of an experiment for listings.
type Summary struct {
	ID               string          `json:"experiment_id"`
	Name             string          `json:"name"`
	Objectives       []ObjectiveSpec `json:"objectives"`
	PrimaryObjective string          `json:"primary_objective"`
	MultiObjective   bool            `json:"multi_objective"`
	Trials           int             `json:"trials"`
	Completed        int             `json:"completed"`
	CreatedAt        time.Time       `json:"created_at"`
}
