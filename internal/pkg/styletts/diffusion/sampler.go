// Package diffusion drives the iterative denoising that samples a style
// vector conditioned on text and reference style. The denoiser network is an
// opaque oracle; only the schedule, the stepping loop, and the noise source
// live here.
package diffusion

import (
	"fmt"
	"math"

	"styletts2go/internal/pkg/styletts/style"
)

// Karras schedule constants from the pretrained sampler configuration.
const (
	sigmaMin = 0.0001
	sigmaMax = 3.0
	rho      = 9.0
)

// Denoiser is one conditioned denoising step: given the current sample at
// noise level sigma, the text embedding (guidance signal, scaled), and the
// reference style as a conditioning feature, it predicts the denoised sample.
type Denoiser interface {
	DenoiseStep(x []float32, sigma float32, embedding []float32, refStyle style.Vector, guidance float32) ([]float32, error)
}

// Sampler owns its random state. The seed is explicit configuration so that
// several engines in one process keep independent, reproducible noise
// streams; there is no process-global seeding.
type Sampler struct {
	rng rng
}

func NewSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = 1
	}
	return &Sampler{rng: rng{state: seed}}
}

// Sample draws standard-normal noise and runs `steps` denoising iterations.
// The RNG advances across calls, so repeated sampling with identical inputs
// yields different draws unless the sampler is recreated with the same seed.
func (s *Sampler) Sample(d Denoiser, embedding []float32, refStyle style.Vector, steps int, guidance float32) (style.Vector, error) {
	if steps < 1 {
		return nil, fmt.Errorf("diffusion steps must be positive, got %d", steps)
	}

	sigmas := karrasSigmas(steps)

	x := make([]float32, style.Dim)
	for i := range x {
		x[i] = float32(s.rng.normal()) * sigmas[0]
	}

	for i := 0; i < steps; i++ {
		denoised, err := d.DenoiseStep(x, sigmas[i], embedding, refStyle, guidance)
		if err != nil {
			return nil, fmt.Errorf("denoise step %d: %w", i, err)
		}
		if len(denoised) != style.Dim {
			return nil, fmt.Errorf("denoiser returned %d dims, want %d", len(denoised), style.Dim)
		}

		// Euler step toward the next noise level.
		ratio := sigmas[i+1] / sigmas[i]
		for j := range x {
			x[j] = denoised[j] + (x[j]-denoised[j])*ratio
		}
	}

	return style.Vector(x), nil
}

// karrasSigmas returns steps+1 decreasing noise levels ending at zero.
func karrasSigmas(steps int) []float32 {
	out := make([]float32, steps+1)
	if steps == 1 {
		out[0] = sigmaMax
		return out
	}

	minRho := math.Pow(sigmaMin, 1/rho)
	maxRho := math.Pow(sigmaMax, 1/rho)
	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps-1)
		out[i] = float32(math.Pow(maxRho+frac*(minRho-maxRho), rho))
	}
	return out
}

// rng is a xorshift generator with Box-Muller normal sampling, kept as
// instance state rather than a package variable.
type rng struct {
	state uint64
}

func (r *rng) next() uint64 {
	r.state ^= r.state << 13
	r.state ^= r.state >> 7
	r.state ^= r.state << 17
	return r.state
}

func (r *rng) normal() float64 {
	u1 := float64(r.next()) / float64(^uint64(0))
	u2 := float64(r.next()) / float64(^uint64(0))
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
