package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	StyleRoot      string  `mapstructure:"style_root"`
	ModelConfig    string  `mapstructure:"model_config"`
	Checkpoint     string  `mapstructure:"checkpoint"`
	RefAudio       string  `mapstructure:"ref_audio"`
	Device         string  `mapstructure:"device"`
	Alpha          float32 `mapstructure:"alpha"`
	Beta           float32 `mapstructure:"beta"`
	DiffusionSteps int     `mapstructure:"diffusion_steps"`
	EmbeddingScale float32 `mapstructure:"embedding_scale"`
	Seed           uint64  `mapstructure:"seed"`
	Text           string  `mapstructure:"text"`
	Output         string  `mapstructure:"output"`
	LogLevel       string  `mapstructure:"log_level"`
	LogFile        string  `mapstructure:"log_file"`
	ListBackends   bool    `mapstructure:"list_backends"`
}

func LoadAndParse() (*Config, error) {
	viper.SetDefault("style_root", "models/styletts")
	viper.SetDefault("model_config", "models/styletts/config.yml")
	viper.SetDefault("checkpoint", "models/styletts/checkpoint.npz")
	viper.SetDefault("ref_audio", "")
	viper.SetDefault("device", "cuda")
	viper.SetDefault("alpha", 0.3)
	viper.SetDefault("beta", 0.7)
	viper.SetDefault("diffusion_steps", 5)
	viper.SetDefault("embedding_scale", 1.0)
	viper.SetDefault("seed", 0)
	viper.SetDefault("output", "output.wav")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")

	flagSet := pflag.NewFlagSet("styletts2go", pflag.ContinueOnError)
	configFile := flagSet.StringP("config", "c", "", "Path to config file")
	flagSet.StringP("text", "t", "", "Text to synthesize")
	flagSet.StringP("output", "o", "", "Output WAV file")
	flagSet.String("style-root", "", "Path to the model repository root")
	flagSet.String("model-config", "", "Path to the model config YAML")
	flagSet.String("checkpoint", "", "Path to the model checkpoint archive")
	flagSet.StringP("ref-audio", "r", "", "Reference audio file for style extraction")
	flagSet.String("device", "", "Inference device (cuda or cpu)")
	flagSet.Float32("alpha", 0.3, "Timbre blend factor (0=reference, 1=sampled)")
	flagSet.Float32("beta", 0.7, "Prosody blend factor (0=reference, 1=sampled)")
	flagSet.Int("diffusion-steps", 5, "Number of diffusion denoising steps")
	flagSet.Float32("embedding-scale", 1.0, "Classifier-free guidance scale")
	flagSet.Uint64("seed", 0, "Sampling seed (0 picks the default)")
	flagSet.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flagSet.String("log-file", "", "Log file path")
	flagSet.Bool("list-backends", false, "List registered backends and exit")
	helpFlag := flagSet.BoolP("help", "h", false, "Show help message")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *helpFlag {
		fmt.Fprintf(os.Stderr, "Usage: styletts2go [options] [text]\n\nOptions:\n")
		flagSet.PrintDefaults()
		os.Exit(0)
	}

	bindings := map[string]string{
		"text":            "text",
		"output":          "output",
		"style_root":      "style-root",
		"model_config":    "model-config",
		"checkpoint":      "checkpoint",
		"ref_audio":       "ref-audio",
		"device":          "device",
		"alpha":           "alpha",
		"beta":            "beta",
		"diffusion_steps": "diffusion-steps",
		"embedding_scale": "embedding-scale",
		"seed":            "seed",
		"log_level":       "log-level",
		"log_file":        "log-file",
		"list_backends":   "list-backends",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if *configFile != "" {
		viper.SetConfigFile(*configFile)
	} else {
		viper.SetConfigName("styletts2go.cfg")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "styletts2go"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	viper.SetEnvPrefix("STYLETTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Text == "" {
		args := flagSet.Args()
		if len(args) > 0 {
			cfg.Text = strings.Join(args, " ")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ListBackends {
		return nil
	}
	if c.Text == "" {
		return fmt.Errorf("text is required (use -t flag or provide as argument)")
	}
	if c.RefAudio == "" {
		return fmt.Errorf("ref_audio is required (use -r flag)")
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be between 0 and 1")
	}
	if c.Beta < 0 || c.Beta > 1 {
		return fmt.Errorf("beta must be between 0 and 1")
	}
	if c.DiffusionSteps < 1 {
		return fmt.Errorf("diffusion_steps must be at least 1")
	}
	if c.EmbeddingScale <= 0 {
		return fmt.Errorf("embedding_scale must be positive")
	}
	if c.Device != "cuda" && c.Device != "cpu" {
		return fmt.Errorf("device must be cuda or cpu, got %q", c.Device)
	}
	return nil
}
