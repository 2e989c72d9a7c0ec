// Package styletts is the diffusion TTS backend: it loads the pretrained
// sub-model bundle, derives one style vector from reference audio, and
// serves whole-utterance synthesis onto the engine's output queue.
package styletts

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"styletts2go/internal/pkg/styletts/audio"
	"styletts2go/internal/pkg/styletts/diffusion"
	"styletts2go/internal/pkg/styletts/engine"
	"styletts2go/internal/pkg/styletts/model"
	"styletts2go/internal/pkg/styletts/phonemizer"
	"styletts2go/internal/pkg/styletts/preprocess"
	"styletts2go/internal/pkg/styletts/style"
	"styletts2go/internal/pkg/styletts/tokenizer"
)

func init() {
	engine.Register("styletts", NewEngine)
}

// Models is everything the per-call pipeline needs from the loaded bundle.
type Models interface {
	diffusion.Denoiser
	TextEncoding(tokens []int64) ([][]float32, error)
	ProsodyEncoding(tokens []int64) ([]float32, [][]float32, error)
	ProsodyFeatures(encoding [][]float32, prosody []float32) ([][]float32, error)
	DurationScores(features [][]float32) [][]float32
	PitchEnergy(features [][]float32, prosody []float32) ([]float32, []float32, error)
	Decode(features [][]float32, f0, energy, timbre []float32) ([]float32, error)
	DecoderType() string
	Close() error
}

// Engine goes through Uninitialized -> ModelLoaded -> StyleReady during
// construction and never transitions again; a constructed Engine is Ready.
type Engine struct {
	cfg      engine.EngineConfig
	models   Models
	refStyle style.Vector
	sampler  *diffusion.Sampler

	pre  *preprocess.Preprocessor
	phon *phonemizer.Phonemizer
	tok  *tokenizer.Tokenizer

	queue *engine.Queue
}

// NewEngine loads the model bundle, applies the checkpoint, and computes the
// reference style. Any failure here is fatal for the engine; there are no
// retries and no partially-constructed state.
func NewEngine(cfg engine.EngineConfig) (engine.Engine, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	modelCfg, err := model.LoadConfig(cfg.ModelConfigPath)
	if err != nil {
		return nil, err
	}

	bundle, err := model.Open(cfg.StyleRoot, modelCfg, cfg.Device)
	if err != nil {
		return nil, err
	}

	if err := bundle.ApplyCheckpoint(cfg.CheckpointPath); err != nil {
		bundle.Close()
		return nil, err
	}

	refStyle, err := style.ComputeReference(bundle, cfg.RefAudioPath)
	if err != nil {
		bundle.Close()
		return nil, err
	}
	log.Debug().Int("style_dim", len(refStyle)).Str("ref_audio", cfg.RefAudioPath).Msg("Reference style computed")

	return &Engine{
		cfg:      cfg,
		models:   bundle,
		refStyle: refStyle,
		sampler:  diffusion.NewSampler(cfg.Seed),
		pre:      preprocess.NewPreprocessor(),
		phon:     phonemizer.NewPhonemizer(),
		tok:      tokenizer.NewTokenizer(),
		queue:    engine.NewQueue(),
	}, nil
}

func validate(cfg engine.EngineConfig) error {
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1], got %v", cfg.Alpha)
	}
	if cfg.Beta < 0 || cfg.Beta > 1 {
		return fmt.Errorf("beta must be in [0,1], got %v", cfg.Beta)
	}
	if cfg.DiffusionSteps < 1 {
		return fmt.Errorf("diffusion_steps must be positive, got %d", cfg.DiffusionSteps)
	}
	if cfg.EmbeddingScale <= 0 {
		return fmt.Errorf("embedding_scale must be positive, got %v", cfg.EmbeddingScale)
	}
	return nil
}

// Synthesize runs the whole pipeline on the calling goroutine and enqueues
// one PCM chunk. It returns false, with nothing queued, when no waveform was
// produced; per-call failures are logged, not raised.
func (e *Engine) Synthesize(text string) bool {
	wave, err := e.inference(text)
	if err != nil {
		log.Error().Err(err).Msg("Synthesis failed")
		return false
	}
	if len(wave) == 0 {
		return false
	}

	e.queue.Push(audio.PCM16LE(wave))
	return true
}

func (e *Engine) StreamInfo() engine.StreamInfo {
	return engine.DefaultStreamInfo()
}

func (e *Engine) Queue() *engine.Queue {
	return e.queue
}

func (e *Engine) Close() error {
	e.queue.Close()
	return e.models.Close()
}
