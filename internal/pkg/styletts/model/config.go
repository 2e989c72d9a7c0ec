package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphNames is the fixed, enumerated set of sub-models the engine loads.
var GraphNames = []string{
	"text_encoder",
	"bert",
	"bert_encoder",
	"predictor",
	"prosody_predictor",
	"style_encoder",
	"predictor_encoder",
	"diffusion",
	"decoder",
}

// DecoderHifigan marks the decoder family that needs the one-frame feature
// shift before decoding.
const DecoderHifigan = "hifigan"

type Dims struct {
	Style        int `yaml:"style"`
	NMels        int `yaml:"n_mels"`
	Bert         int `yaml:"bert"`
	Hidden       int `yaml:"hidden"`
	DurationBins int `yaml:"duration_bins"`
}

type DecoderConfig struct {
	Type string `yaml:"type"`
}

// Config is the structured model description: decoder family, dimensions,
// and the ONNX graph file per sub-model, relative to the model root.
type Config struct {
	Decoder DecoderConfig     `yaml:"decoder"`
	Dims    Dims              `yaml:"dims"`
	Graphs  map[string]string `yaml:"graphs"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}

	cfg := &Config{
		Dims: Dims{
			Style:        256,
			NMels:        80,
			Bert:         768,
			Hidden:       512,
			DurationBins: 50,
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	if cfg.Decoder.Type == "" {
		cfg.Decoder.Type = DecoderHifigan
	}
	if cfg.Graphs == nil {
		cfg.Graphs = make(map[string]string)
	}
	for _, name := range GraphNames {
		if cfg.Graphs[name] == "" {
			cfg.Graphs[name] = name + ".onnx"
		}
	}

	if cfg.Dims.Style%2 != 0 || cfg.Dims.Style <= 0 {
		return nil, fmt.Errorf("style dimension must be a positive even number, got %d", cfg.Dims.Style)
	}
	return cfg, nil
}
