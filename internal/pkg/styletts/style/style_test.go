package style

import (
	"math"
	"testing"
)

func makeVector(t *testing.T, fill float32) Vector {
	t.Helper()
	half := make([]float32, Half)
	for i := range half {
		half[i] = fill
	}
	v, err := NewVector(half, half)
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	return v
}

func TestNewVectorRejectsWrongHalves(t *testing.T) {
	if _, err := NewVector(make([]float32, Half-1), make([]float32, Half)); err == nil {
		t.Error("short timbre half accepted")
	}
	if _, err := NewVector(make([]float32, Half), make([]float32, Half+1)); err == nil {
		t.Error("long prosody half accepted")
	}
}

func TestVectorHalves(t *testing.T) {
	timbre := make([]float32, Half)
	prosody := make([]float32, Half)
	for i := range timbre {
		timbre[i] = 1
		prosody[i] = 2
	}
	v, err := NewVector(timbre, prosody)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != Dim {
		t.Fatalf("vector dim = %d, want %d", len(v), Dim)
	}
	if v.Timbre()[0] != 1 || v.Timbre()[Half-1] != 1 {
		t.Error("timbre half not first")
	}
	if v.Prosody()[0] != 2 || v.Prosody()[Half-1] != 2 {
		t.Error("prosody half not last")
	}
}

func TestBlendBoundaryAlpha(t *testing.T) {
	sampled := makeVector(t, 3)
	reference := makeVector(t, 7)

	// alpha=0 keeps the reference timbre exactly.
	out := Blend(sampled, reference, 0, 0.5)
	for i := 0; i < Half; i++ {
		if out[i] != reference[i] {
			t.Fatalf("alpha=0: timbre dim %d = %v, want reference %v", i, out[i], reference[i])
		}
	}

	// alpha=1 keeps the sampled timbre exactly.
	out = Blend(sampled, reference, 1, 0.5)
	for i := 0; i < Half; i++ {
		if out[i] != sampled[i] {
			t.Fatalf("alpha=1: timbre dim %d = %v, want sampled %v", i, out[i], sampled[i])
		}
	}
}

func TestBlendBoundaryBeta(t *testing.T) {
	sampled := makeVector(t, -2)
	reference := makeVector(t, 4)

	out := Blend(sampled, reference, 0.5, 0)
	for i := Half; i < Dim; i++ {
		if out[i] != reference[i] {
			t.Fatalf("beta=0: prosody dim %d = %v, want reference %v", i, out[i], reference[i])
		}
	}

	out = Blend(sampled, reference, 0.5, 1)
	for i := Half; i < Dim; i++ {
		if out[i] != sampled[i] {
			t.Fatalf("beta=1: prosody dim %d = %v, want sampled %v", i, out[i], sampled[i])
		}
	}
}

func TestBlendInterpolates(t *testing.T) {
	sampled := makeVector(t, 0)
	reference := makeVector(t, 1)

	out := Blend(sampled, reference, 0.25, 0.75)
	for i := 0; i < Half; i++ {
		if math.Abs(float64(out[i])-0.75) > 1e-6 {
			t.Fatalf("timbre dim %d = %v, want 0.75", i, out[i])
		}
	}
	for i := Half; i < Dim; i++ {
		if math.Abs(float64(out[i])-0.25) > 1e-6 {
			t.Fatalf("prosody dim %d = %v, want 0.25", i, out[i])
		}
	}
}

func TestBlendHalvesAreIndependent(t *testing.T) {
	sampled := makeVector(t, 1)
	reference := makeVector(t, 0)

	out := Blend(sampled, reference, 1, 0)
	for i := 0; i < Half; i++ {
		if out[i] != 1 {
			t.Fatalf("alpha must not touch dims past the split: dim %d = %v", i, out[i])
		}
	}
	for i := Half; i < Dim; i++ {
		if out[i] != 0 {
			t.Fatalf("beta must not touch dims before the split: dim %d = %v", i, out[i])
		}
	}
}
