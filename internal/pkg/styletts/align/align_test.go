package align

import (
	"math"
	"testing"
)

func TestDurationsSigmoidSum(t *testing.T) {
	// Three bins at zero: sigmoid sum = 1.5, rounds to 2.
	scores := [][]float32{{0, 0, 0}}
	if got := Durations(scores); got[0] != 2 {
		t.Errorf("Durations = %v, want [2]", got)
	}
}

func TestDurationsMinimumOneFrame(t *testing.T) {
	scores := [][]float32{{-100, -100, -100}}
	if got := Durations(scores); got[0] != 1 {
		t.Errorf("near-zero duration clamped to %d, want 1", got[0])
	}
}

func TestDurationsPerToken(t *testing.T) {
	scores := [][]float32{
		{100, 100},       // sigmoids saturate at 1 each -> 2
		{100, 100, 100},  // -> 3
		{-100, -100},     // -> 0, clamped to 1
	}
	got := Durations(scores)
	want := []int{2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Durations = %v, want %v", got, want)
		}
	}
}

func TestMatrixContiguousAndGapless(t *testing.T) {
	durations := []int{2, 3, 1}
	m := Matrix(durations)

	if len(m) != 3 {
		t.Fatalf("rows = %d, want 3", len(m))
	}
	frames := TotalFrames(durations)
	if frames != 6 {
		t.Fatalf("TotalFrames = %d, want 6", frames)
	}

	// Token i occupies exactly [start, start+durations[i]).
	wantSpans := [][2]int{{0, 2}, {2, 5}, {5, 6}}
	for i, row := range m {
		if len(row) != frames {
			t.Fatalf("row %d length = %d, want %d", i, len(row), frames)
		}
		for f, v := range row {
			inSpan := f >= wantSpans[i][0] && f < wantSpans[i][1]
			if inSpan && v != 1 {
				t.Fatalf("token %d frame %d = %v, want 1", i, f, v)
			}
			if !inSpan && v != 0 {
				t.Fatalf("token %d frame %d = %v, want 0", i, f, v)
			}
		}
	}
}

func TestMatrixEveryFrameCoveredOnce(t *testing.T) {
	durations := []int{1, 4, 2, 1, 3}
	m := Matrix(durations)
	frames := TotalFrames(durations)

	for f := 0; f < frames; f++ {
		var covered float32
		for _, row := range m {
			covered += row[f]
		}
		if covered != 1 {
			t.Fatalf("frame %d covered by %v tokens, want exactly 1", f, covered)
		}
	}
}

func TestMatrixMonotonic(t *testing.T) {
	durations := []int{3, 1, 2}
	m := Matrix(durations)

	prevEnd := 0
	for i, row := range m {
		start, end := -1, -1
		for f, v := range row {
			if v != 0 {
				if start == -1 {
					start = f
				}
				end = f + 1
			}
		}
		if start != prevEnd {
			t.Fatalf("token %d starts at %d, want %d", i, start, prevEnd)
		}
		prevEnd = end
	}
}

func TestExpand(t *testing.T) {
	durations := []int{2, 1}
	m := Matrix(durations)

	features := [][]float32{
		{10, 20},
		{1, 2},
	}
	out := Expand(features, m)

	want := [][]float32{
		{10, 10, 20},
		{1, 1, 2},
	}
	for c := range want {
		for f := range want[c] {
			if math.Abs(float64(out[c][f]-want[c][f])) > 1e-6 {
				t.Fatalf("channel %d frame %d = %v, want %v", c, f, out[c][f], want[c][f])
			}
		}
	}
}

func TestExpandEmpty(t *testing.T) {
	if out := Expand([][]float32{{1}}, nil); out != nil {
		t.Errorf("expand with empty alignment = %v, want nil", out)
	}
}
