package checkpoint

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeNPY(t *testing.T, w *zip.Writer, name string, shape []int, data []float32) {
	t.Helper()

	shapeStr := ""
	for _, d := range shape {
		shapeStr += fmt.Sprintf("%d, ", d)
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shapeStr)
	pad := 64 - (10+len(header)+1)%64
	header += string(bytes.Repeat([]byte{' '}, pad)) + "\n"

	f, err := w.Create(name)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	f.Write([]byte("\x93NUMPY\x01\x00"))
	binary.Write(f, binary.LittleEndian, uint16(len(header)))
	f.Write([]byte(header))
	binary.Write(f, binary.LittleEndian, data)
}

func writeCheckpoint(t *testing.T, entries map[string]Tensor) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.npz")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	for name, tensor := range entries {
		writeNPY(t, zw, name, tensor.Shape, tensor.Data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()
	return path
}

func TestLoad(t *testing.T) {
	path := writeCheckpoint(t, map[string]Tensor{
		"net/predictor/lstm/weight_ih.npy": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"net/predictor/lstm/bias.npy":      {Shape: []int{2}, Data: []float32{0.5, -0.5}},
		"net/decoder/conv/weight.npy":      {Shape: []int{4}, Data: []float32{1, 1, 1, 1}},
		"unrelated.txt":                    {Shape: []int{1}, Data: []float32{0}},
	})

	dicts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(dicts) != 2 {
		t.Fatalf("sub-models = %d, want 2", len(dicts))
	}

	pred := dicts["predictor"]
	if pred == nil {
		t.Fatal("missing predictor dict")
	}
	w, ok := pred["lstm.weight_ih"]
	if !ok {
		t.Fatalf("missing lstm.weight_ih, have %v", keys(pred))
	}
	if len(w.Shape) != 2 || w.Shape[0] != 2 || w.Shape[1] != 3 {
		t.Errorf("shape = %v, want [2 3]", w.Shape)
	}
	if w.Data[0] != 1 || w.Data[5] != 6 {
		t.Errorf("data = %v", w.Data)
	}
	if _, ok := dicts["decoder"]["conv.weight"]; !ok {
		t.Error("nested parameter path not flattened to dotted key")
	}
}

func TestLoadEmptyArchive(t *testing.T) {
	path := writeCheckpoint(t, map[string]Tensor{
		"readme.txt": {Shape: []int{1}, Data: []float32{0}},
	})
	if _, err := Load(path); err == nil {
		t.Error("archive without weights accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.npz")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestStripWrapperPrefix(t *testing.T) {
	sd := StateDict{
		WrapperPrefix + "lstm.bias": {Shape: []int{1}, Data: []float32{1}},
		"duration_proj.weight":      {Shape: []int{1}, Data: []float32{2}},
	}
	got := StripWrapperPrefix(sd)

	if len(got) != 2 {
		t.Fatalf("stripped dict has %d keys, want 2", len(got))
	}
	if _, ok := got["lstm.bias"]; !ok {
		t.Error("prefixed key not stripped")
	}
	if _, ok := got["duration_proj.weight"]; !ok {
		t.Error("unprefixed key changed")
	}
	// Values ride along unchanged.
	if got["lstm.bias"].Data[0] != 1 {
		t.Error("tensor lost during strip")
	}
}

// fakeModule counts what a strict and a partial load see.
type fakeModule struct {
	want       []string
	strictErr  error
	gotPartial []string
}

func (m *fakeModule) LoadState(sd StateDict) error {
	if m.strictErr != nil {
		return m.strictErr
	}
	for _, k := range m.want {
		if _, ok := sd[k]; !ok {
			return fmt.Errorf("missing parameter %q", k)
		}
	}
	return nil
}

func (m *fakeModule) LoadPartial(sd StateDict) int {
	n := 0
	for _, k := range m.want {
		if _, ok := sd[k]; ok {
			m.gotPartial = append(m.gotPartial, k)
			n++
		}
	}
	return n
}

func TestApplyStrictSuccess(t *testing.T) {
	m := &fakeModule{want: []string{"a"}}
	sd := StateDict{"a": {Shape: []int{1}, Data: []float32{1}}}
	if err := Apply("test", m, sd); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m.gotPartial != nil {
		t.Error("partial load ran despite strict success")
	}
}

func TestApplyFallsBackToStrippedPartial(t *testing.T) {
	m := &fakeModule{want: []string{"a", "b"}}
	sd := StateDict{
		WrapperPrefix + "a": {Shape: []int{1}, Data: []float32{1}},
		WrapperPrefix + "b": {Shape: []int{1}, Data: []float32{2}},
	}
	if err := Apply("test", m, sd); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(m.gotPartial) != 2 {
		t.Errorf("partial load saw %v, want both keys", m.gotPartial)
	}
}

func TestApplyFailsWhenNothingMatches(t *testing.T) {
	m := &fakeModule{want: []string{"a"}}
	sd := StateDict{"other": {Shape: []int{1}, Data: []float32{1}}}
	if err := Apply("test", m, sd); err == nil {
		t.Error("zero matched weights accepted")
	}
}

func TestFloat16ToFloat32(t *testing.T) {
	cases := []struct {
		in   uint16
		want float32
	}{
		{0x3C00, 1},
		{0xBC00, -1},
		{0x0000, 0},
		{0x4000, 2},
		{0x3800, 0.5},
	}
	for _, c := range cases {
		if got := float16ToFloat32(c.in); math.Abs(float64(got-c.want)) > 1e-6 {
			t.Errorf("float16ToFloat32(%#x) = %v, want %v", c.in, got, c.want)
		}
	}
}

func keys(sd StateDict) []string {
	out := make([]string, 0, len(sd))
	for k := range sd {
		out = append(out, k)
	}
	return out
}
