// Package align turns per-token duration predictions into a hard
// token-to-frame alignment.
package align

import "math"

// Durations collapses raw duration scores [tokens][bins] into integer frame
// counts: sigmoid per bin, summed, rounded to nearest, minimum one frame per
// token.
func Durations(scores [][]float32) []int {
	out := make([]int, len(scores))
	for i, row := range scores {
		var sum float64
		for _, v := range row {
			sum += 1 / (1 + math.Exp(-float64(v)))
		}
		d := int(math.Round(sum))
		if d < 1 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// TotalFrames is the frame count the durations expand to.
func TotalFrames(durations []int) int {
	total := 0
	for _, d := range durations {
		total += d
	}
	return total
}

// Matrix builds the binary [tokens][frames] alignment: token i occupies
// durations[i] contiguous frames starting where token i-1 ended. Every frame
// is covered by exactly one token.
func Matrix(durations []int) [][]float32 {
	frames := TotalFrames(durations)
	m := make([][]float32, len(durations))
	cursor := 0
	for i, d := range durations {
		row := make([]float32, frames)
		for f := cursor; f < cursor+d; f++ {
			row[f] = 1
		}
		m[i] = row
		cursor += d
	}
	return m
}

// Expand maps token-level features [channels][tokens] to frame level via the
// alignment matrix, i.e. features · m.
func Expand(features [][]float32, m [][]float32) [][]float32 {
	if len(m) == 0 {
		return nil
	}
	frames := len(m[0])
	out := make([][]float32, len(features))
	for c, row := range features {
		expanded := make([]float32, frames)
		for t, w := range m {
			if t >= len(row) {
				break
			}
			v := row[t]
			for f, on := range w {
				if on != 0 {
					expanded[f] += v * on
				}
			}
		}
		out[c] = expanded
	}
	return out
}
