package style

import (
	"fmt"

	"styletts2go/internal/pkg/styletts/audio"
	"styletts2go/internal/pkg/styletts/dsp"
)

const trimTopDB = 30

// Encoder runs the two fixed reference encoders on a normalized log-mel
// spectrogram.
type Encoder interface {
	EncodeStyle(mel [][]float32) ([]float32, error)
	EncodeProsody(mel [][]float32) ([]float32, error)
}

// ComputeReference derives the fixed style vector from one reference clip:
// decode, resample to the engine rate, trim 30 dB edge silence, log-mel,
// then the two encoders concatenated. Any decode failure is returned as-is;
// there is no retry.
func ComputeReference(enc Encoder, path string) (Vector, error) {
	clip, err := audio.LoadWAV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference audio: %w", err)
	}

	clip = clip.ResampleTo(audio.SampleRate).TrimSilence(trimTopDB)
	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("reference audio %s is silent", path)
	}

	mel := dsp.LogMelSpectrogram(clip.Samples, audio.SampleRate)

	timbre, err := enc.EncodeStyle(mel)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reference timbre: %w", err)
	}
	prosody, err := enc.EncodeProsody(mel)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reference prosody: %w", err)
	}

	return NewVector(timbre, prosody)
}
