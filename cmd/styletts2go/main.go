package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"styletts2go/internal/pkg/styletts/audio"
	"styletts2go/internal/pkg/styletts/config"
	"styletts2go/internal/pkg/styletts/engine"

	_ "styletts2go/internal/pkg/styletts/backends/styletts"
)

func main() {
	fmt.Fprintf(os.Stderr, "styletts2go %s\n", Version)

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadAndParse()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse configuration")
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup logging")
	}

	if cfg.ListBackends {
		backends := engine.ListBackends()
		sort.Strings(backends)
		fmt.Fprintf(os.Stderr, "Registered backends (%d):\n", len(backends))
		for _, b := range backends {
			fmt.Fprintf(os.Stderr, "  %s\n", b)
		}
		return
	}

	log.Debug().
		Str("style_root", cfg.StyleRoot).
		Str("model_config", cfg.ModelConfig).
		Str("checkpoint", cfg.Checkpoint).
		Str("ref_audio", cfg.RefAudio).
		Str("device", cfg.Device).
		Float32("alpha", cfg.Alpha).
		Float32("beta", cfg.Beta).
		Int("diffusion_steps", cfg.DiffusionSteps).
		Float32("embedding_scale", cfg.EmbeddingScale).
		Msg("Configuration loaded")

	engineCfg := engine.EngineConfig{
		StyleRoot:       cfg.StyleRoot,
		ModelConfigPath: cfg.ModelConfig,
		CheckpointPath:  cfg.Checkpoint,
		RefAudioPath:    cfg.RefAudio,
		Device:          cfg.Device,
		Alpha:           cfg.Alpha,
		Beta:            cfg.Beta,
		DiffusionSteps:  cfg.DiffusionSteps,
		EmbeddingScale:  cfg.EmbeddingScale,
		Seed:            cfg.Seed,
	}

	log.Info().Msg("Loading TTS engine...")
	eng, err := engine.New("styletts", engineCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load engine")
	}
	defer eng.Close()

	info := eng.StreamInfo()
	log.Debug().
		Int("sample_rate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("Engine ready")

	log.Info().Str("text", truncateText(cfg.Text, 50)).Msg("Generating speech...")
	startTime := time.Now()

	if ok := eng.Synthesize(cfg.Text); !ok {
		log.Fatal().Msg("No audio produced")
	}

	var pcm []byte
	for {
		chunk, ok := eng.Queue().TryPop()
		if !ok {
			break
		}
		pcm = append(pcm, chunk...)
	}

	elapsed := time.Since(startTime)
	duration := float64(len(pcm)) / float64(2*info.SampleRate)
	log.Info().
		Dur("elapsed", elapsed).
		Float64("duration_sec", duration).
		Msg("Audio generated")

	if err := audio.SavePCM16WAV(cfg.Output, pcm); err != nil {
		log.Fatal().Err(err).Msg("Failed to save audio")
	}

	log.Info().Str("output", cfg.Output).Msg("Audio saved successfully")
}

func setupLogging(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	return nil
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
