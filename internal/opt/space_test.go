package opt

import (
	"math/rand"
	"testing"
)

func TestNewSpace_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  []Parameter
		wantErr bool
	}{
		{"range ok", []Parameter{{Name: "x", Type: Range, Bounds: []float64{0, 1}}}, false},
		{"degenerate range ok", []Parameter{{Name: "x", Type: Range, Bounds: []float64{2, 2}}}, false},
		{"range one bound", []Parameter{{Name: "x", Type: Range, Bounds: []float64{0}}}, true},
		{"range inverted", []Parameter{{Name: "x", Type: Range, Bounds: []float64{1, 0}}}, true},
		{"int range without integer", []Parameter{{Name: "x", Type: Range, Bounds: []float64{0.2, 0.8}, ValueType: Int}}, true},
		{"choice empty", []Parameter{{Name: "c", Type: Choice}}, true},
		{"fixed without value", []Parameter{{Name: "f", Type: Fixed}}, true},
		{"unknown type", []Parameter{{Name: "u", Type: "log"}}, true},
		{"missing name", []Parameter{{Type: Fixed, Value: 1}}, true},
		{"duplicate", []Parameter{{Name: "a", Type: Fixed, Value: 1}, {Name: "a", Type: Fixed, Value: 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpace(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSpace() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpace_Decode(t *testing.T) {
	space, err := NewSpace([]Parameter{
		{Name: "lr", Type: Range, Bounds: []float64{0, 10}},
		{Name: "layers", Type: Range, Bounds: []float64{1, 4}, ValueType: Int},
		{Name: "opt", Type: Choice, Values: []any{"sgd", "adam"}},
		{Name: "seed", Type: Fixed, Value: 7},
	})
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}

	if space.Dim() != 3 {
		t.Fatalf("Expected 3 free dimensions, got %d", space.Dim())
	}

	got := space.Decode([]float64{0.5, 1.0, 1.0})
	if got["lr"] != 5.0 {
		t.Errorf("lr = %v, want 5", got["lr"])
	}
	if got["layers"] != 4 {
		t.Errorf("layers = %v, want 4", got["layers"])
	}
	if got["opt"] != "adam" {
		t.Errorf("opt = %v, want adam", got["opt"])
	}
	if got["seed"] != 7 {
		t.Errorf("seed = %v, want 7", got["seed"])
	}

	// Out-of-range coordinates are clamped
	got = space.Decode([]float64{-3, 2, -1})
	if got["lr"] != 0.0 || got["layers"] != 4 || got["opt"] != "sgd" {
		t.Errorf("Clamping failed: %v", got)
	}
}

func TestSpace_SampleWithinBounds(t *testing.T) {
	space, err := NewSpace([]Parameter{
		{Name: "x", Type: Range, Bounds: []float64{-2, 3}},
		{Name: "n", Type: Range, Bounds: []float64{0, 5}, ValueType: Int},
		{Name: "c", Type: Choice, Values: []any{1.0, 2.0, 3.0}},
	})
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		a := space.Sample(rng)
		x := a["x"].(float64)
		if x < -2 || x > 3 {
			t.Fatalf("x = %f out of bounds", x)
		}
		n := a["n"].(int)
		if n < 0 || n > 5 {
			t.Fatalf("n = %d out of bounds", n)
		}
		c := a["c"].(float64)
		if c != 1 && c != 2 && c != 3 {
			t.Fatalf("c = %v not a declared choice", c)
		}
	}
}
