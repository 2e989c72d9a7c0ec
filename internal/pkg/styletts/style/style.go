// Package style holds the reference style embedding and the blending law
// that mixes it with diffusion-sampled style.
package style

import "fmt"

const (
	// Dim is the full style dimension: timbre half followed by prosody half.
	Dim  = 256
	Half = Dim / 2
)

// Vector is a fixed 256-dim style embedding. The first 128 dims come from
// the style (timbre) encoder, the last 128 from the prosody encoder. The
// split point and ordering are load-bearing: the sampled halves blend
// against the matching reference halves and feed different sub-models.
type Vector []float32

func NewVector(timbre, prosody []float32) (Vector, error) {
	if len(timbre) != Half || len(prosody) != Half {
		return nil, fmt.Errorf("style halves must be %d dims, got %d and %d", Half, len(timbre), len(prosody))
	}
	v := make(Vector, 0, Dim)
	v = append(v, timbre...)
	v = append(v, prosody...)
	return v, nil
}

func (v Vector) Timbre() []float32 {
	return v[:Half]
}

func (v Vector) Prosody() []float32 {
	return v[Half:]
}

// Blend linearly interpolates a sampled style with the reference:
//
//	timbre[i]  = alpha*sampled[i] + (1-alpha)*reference[i]
//	prosody[i] = beta*sampled[i]  + (1-beta)*reference[i]
//
// alpha=0 keeps pure reference timbre, alpha=1 pure sampled; same for beta
// and prosody.
func Blend(sampled, reference Vector, alpha, beta float32) Vector {
	out := make(Vector, Dim)
	for i := 0; i < Half; i++ {
		out[i] = alpha*sampled[i] + (1-alpha)*reference[i]
	}
	for i := Half; i < Dim; i++ {
		out[i] = beta*sampled[i] + (1-beta)*reference[i]
	}
	return out
}
