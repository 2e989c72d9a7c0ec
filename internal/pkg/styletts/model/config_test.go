package model

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Decoder.Type != DecoderHifigan {
		t.Errorf("decoder type = %q, want %q", cfg.Decoder.Type, DecoderHifigan)
	}
	if cfg.Dims.Style != 256 || cfg.Dims.NMels != 80 || cfg.Dims.Bert != 768 {
		t.Errorf("default dims = %+v", cfg.Dims)
	}
	for _, name := range GraphNames {
		if cfg.Graphs[name] != name+".onnx" {
			t.Errorf("graph %s defaulted to %q", name, cfg.Graphs[name])
		}
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	body := `
decoder:
  type: istftnet
dims:
  hidden: 256
graphs:
  decoder: dec_v2.onnx
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Decoder.Type != "istftnet" {
		t.Errorf("decoder type = %q", cfg.Decoder.Type)
	}
	if cfg.Dims.Hidden != 256 {
		t.Errorf("hidden = %d, want 256", cfg.Dims.Hidden)
	}
	if cfg.Graphs["decoder"] != "dec_v2.onnx" {
		t.Errorf("decoder graph = %q", cfg.Graphs["decoder"])
	}
	// Untouched graphs still default.
	if cfg.Graphs["bert"] != "bert.onnx" {
		t.Errorf("bert graph = %q", cfg.Graphs["bert"])
	}
}

func TestLoadConfigRejectsOddStyleDim(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "dims:\n  style: 255\n")); err == nil {
		t.Error("odd style dim accepted")
	}
	if _, err := LoadConfig(writeConfig(t, "dims:\n  style: -2\n")); err == nil {
		t.Error("negative style dim accepted")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("missing config accepted")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "decoder: [unclosed\n")); err == nil {
		t.Error("malformed YAML accepted")
	}
}
