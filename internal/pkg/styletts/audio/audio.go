package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

const (
	SampleRate    = 24000
	NumChannels   = 1
	BitsPerSample = 16
)

type Audio struct {
	Samples    []float32
	SampleRate int
}

func New(samples []float32, sampleRate int) *Audio {
	return &Audio{
		Samples:    samples,
		SampleRate: sampleRate,
	}
}

func (a *Audio) Duration() float64 {
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// LoadWAV decodes a WAV file into float32 samples. Multi-channel input is
// downmixed to mono; the source sample rate is kept as-is.
func LoadWAV(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	floats := buf.AsFloat32Buffer().Data
	if channels == 1 {
		return New(floats, buf.Format.SampleRate), nil
	}

	mono := make([]float32, len(floats)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += floats[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return New(mono, buf.Format.SampleRate), nil
}

// ResampleTo converts the audio to the target sample rate using linear
// interpolation. Returns the receiver unchanged if the rate already matches.
func (a *Audio) ResampleTo(rate int) *Audio {
	if a.SampleRate == rate || len(a.Samples) == 0 {
		return New(a.Samples, rate)
	}

	ratio := float64(a.SampleRate) / float64(rate)
	outLen := int(float64(len(a.Samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 < len(a.Samples) {
			out[i] = a.Samples[idx]*(1-frac) + a.Samples[idx+1]*frac
		} else {
			out[i] = a.Samples[len(a.Samples)-1]
		}
	}
	return New(out, rate)
}

// TrimSilence removes leading and trailing samples quieter than topDB below
// the peak amplitude. Silence in the middle of the clip is left alone.
func (a *Audio) TrimSilence(topDB float64) *Audio {
	if len(a.Samples) == 0 {
		return a
	}

	var peak float32
	for _, s := range a.Samples {
		if v := float32(math.Abs(float64(s))); v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return New(a.Samples[:0], a.SampleRate)
	}

	threshold := peak * float32(math.Pow(10, -topDB/20))

	start := 0
	for start < len(a.Samples) && abs32(a.Samples[start]) < threshold {
		start++
	}
	end := len(a.Samples)
	for end > start && abs32(a.Samples[end-1]) < threshold {
		end--
	}
	return New(a.Samples[start:end], a.SampleRate)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// PCM16LE converts float samples in [-1, 1] to signed 16-bit little-endian
// PCM bytes. Out-of-range samples are clamped.
func PCM16LE(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, sample := range samples {
		clamped := sample
		if clamped > 1.0 {
			clamped = 1.0
		} else if clamped < -1.0 {
			clamped = -1.0
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamped*math.MaxInt16)))
	}
	return out
}

// SavePCM16WAV writes raw 16-bit LE PCM bytes into a mono WAV container at
// the engine sample rate.
func SavePCM16WAV(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	dataSize := len(data)
	fileSize := 36 + dataSize

	if _, err := f.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(fileSize)); err != nil {
		return err
	}
	if _, err := f.Write([]byte("WAVE")); err != nil {
		return err
	}

	if _, err := f.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint16(1)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint16(NumChannels)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(SampleRate)); err != nil {
		return err
	}
	byteRate := SampleRate * NumChannels * (BitsPerSample / 8)
	if err := binary.Write(f, binary.LittleEndian, uint32(byteRate)); err != nil {
		return err
	}
	blockAlign := NumChannels * (BitsPerSample / 8)
	if err := binary.Write(f, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return err
	}

	if _, err := f.Write([]byte("data")); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(dataSize)); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}

	return nil
}
