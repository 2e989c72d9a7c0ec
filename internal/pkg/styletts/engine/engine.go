// Package engine defines the streaming synthesis contract: an engine turns
// text into PCM chunks on its output queue, one whole utterance per call.
package engine

import "styletts2go/internal/pkg/styletts/audio"

// SampleFormat identifies the PCM encoding of queued chunks.
type SampleFormat int

const (
	// FormatS16LE is signed 16-bit little-endian PCM, the only format this
	// layer produces.
	FormatS16LE SampleFormat = iota
)

// StreamInfo describes the fixed output audio format.
type StreamInfo struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
}

// DefaultStreamInfo is the format every backend emits: 16-bit mono 24 kHz.
func DefaultStreamInfo() StreamInfo {
	return StreamInfo{
		Format:     FormatS16LE,
		Channels:   audio.NumChannels,
		SampleRate: audio.SampleRate,
	}
}

// Engine is a loaded synthesis backend. Synthesize blocks on the calling
// goroutine for the whole pipeline and reports whether a waveform was
// produced and enqueued; false means nothing was queued, not a fatal error.
type Engine interface {
	Synthesize(text string) bool
	StreamInfo() StreamInfo
	Queue() *Queue
	Close() error
}

// EngineConfig carries the construction parameters recognized by backends.
type EngineConfig struct {
	StyleRoot       string
	ModelConfigPath string
	CheckpointPath  string
	RefAudioPath    string
	Device          string
	Alpha           float32
	Beta            float32
	DiffusionSteps  int
	EmbeddingScale  float32
	Seed            uint64
	Backend         string
}
