// Package dsp computes the fixed log-mel front end used for reference-style
// extraction: 80 mel bands, FFT size 2048, window 1200, hop 300.
package dsp

import "math"

const (
	NumMels   = 80
	FFTSize   = 2048
	WinLength = 1200
	HopLength = 300

	logFloor = 1e-5
	MelMean  = -4.0
	MelStd   = 4.0
)

// LogMelSpectrogram returns the log-mel spectrogram of the samples as
// [NumMels][frames], normalized by the fixed affine transform
// (log(1e-5 + m) - MelMean) / MelStd.
func LogMelSpectrogram(samples []float32, sampleRate int) [][]float32 {
	power := spectrogram(samples)
	fb := melFilterbank(sampleRate)

	frames := len(power)
	mel := make([][]float32, NumMels)
	for m := 0; m < NumMels; m++ {
		mel[m] = make([]float32, frames)
		for t := 0; t < frames; t++ {
			var sum float64
			for _, w := range fb[m] {
				sum += w.weight * power[t][w.bin]
			}
			mel[m][t] = float32((math.Log(logFloor+sum) - MelMean) / MelStd)
		}
	}
	return mel
}

// NumFrames reports how many spectrogram frames a clip of the given length
// produces with center padding.
func NumFrames(sampleCount int) int {
	return 1 + sampleCount/HopLength
}

// spectrogram computes the centered power spectrogram, one row per frame,
// FFTSize/2+1 bins per row.
func spectrogram(samples []float32) [][]float64 {
	pad := FFTSize / 2
	padded := reflectPad(samples, pad)
	window := hannWindow(WinLength)

	frames := NumFrames(len(samples))
	bins := FFTSize/2 + 1
	out := make([][]float64, frames)

	re := make([]float64, FFTSize)
	im := make([]float64, FFTSize)
	// The analysis window is shorter than the FFT frame and sits centered
	// inside it, matching the reference mel transform.
	offset := (FFTSize - WinLength) / 2

	for t := 0; t < frames; t++ {
		for i := range re {
			re[i] = 0
			im[i] = 0
		}
		start := t * HopLength
		for i := 0; i < WinLength; i++ {
			pos := start + i
			if pos < len(padded) {
				re[offset+i] = float64(padded[pos]) * window[i]
			}
		}
		fft(re, im)

		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			row[k] = re[k]*re[k] + im[k]*im[k]
		}
		out[t] = row
	}
	return out
}

func reflectPad(samples []float32, pad int) []float32 {
	n := len(samples)
	if n == 0 {
		return make([]float32, 2*pad)
	}
	out := make([]float32, n+2*pad)
	for i := 0; i < pad; i++ {
		src := pad - i
		if src >= n {
			src = n - 1
		}
		out[i] = samples[src]
	}
	copy(out[pad:], samples)
	for i := 0; i < pad; i++ {
		src := n - 2 - i
		if src < 0 {
			src = 0
		}
		out[pad+n+i] = samples[src]
	}
	return out
}

func hannWindow(length int) []float64 {
	w := make([]float64, length)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(length)))
	}
	return w
}

// fft performs an in-place iterative radix-2 FFT. len(re) must be a power of
// two.
func fft(re, im []float64) {
	n := len(re)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		angle := -2 * math.Pi / float64(size)
		wr, wi := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += size {
			cr, ci := 1.0, 0.0
			half := size / 2
			for k := 0; k < half; k++ {
				i0 := start + k
				i1 := start + k + half
				tr := re[i1]*cr - im[i1]*ci
				ti := re[i1]*ci + im[i1]*cr
				re[i1] = re[i0] - tr
				im[i1] = im[i0] - ti
				re[i0] += tr
				im[i0] += ti
				cr, ci = cr*wr-ci*wi, cr*wi+ci*wr
			}
		}
	}
}

type filterWeight struct {
	bin    int
	weight float64
}

// melFilterbank builds NumMels triangular filters on the HTK mel scale from
// 0 Hz to Nyquist, stored sparsely.
func melFilterbank(sampleRate int) [][]filterWeight {
	bins := FFTSize/2 + 1
	nyquist := float64(sampleRate) / 2

	melLow := hzToMel(0)
	melHigh := hzToMel(nyquist)

	points := make([]float64, NumMels+2)
	for i := range points {
		mel := melLow + (melHigh-melLow)*float64(i)/float64(NumMels+1)
		points[i] = melToHz(mel)
	}

	freqPerBin := float64(sampleRate) / FFTSize
	fb := make([][]filterWeight, NumMels)
	for m := 0; m < NumMels; m++ {
		lo, center, hi := points[m], points[m+1], points[m+2]
		for k := 0; k < bins; k++ {
			f := float64(k) * freqPerBin
			var w float64
			switch {
			case f > lo && f < center:
				w = (f - lo) / (center - lo)
			case f >= center && f < hi:
				w = (hi - f) / (hi - center)
			}
			if w > 0 {
				fb[m] = append(fb[m], filterWeight{bin: k, weight: w})
			}
		}
	}
	return fb
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
