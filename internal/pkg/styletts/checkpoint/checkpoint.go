// Package checkpoint loads serialized model weights: a ZIP archive of NPY
// entries named net/<submodel>/<param>.npy, one weight dictionary per named
// sub-model.
package checkpoint

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// WrapperPrefix is the distributed-training wrapper prefix that some
// exported checkpoints carry on every parameter key.
const WrapperPrefix = "module."

type Tensor struct {
	Shape []int
	Data  []float32
}

func (t Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// StateDict maps parameter names to tensors for one sub-model.
type StateDict map[string]Tensor

// Module is anything that can accept a weight dictionary. LoadState must
// reject unknown or missing keys; LoadPartial applies what matches and
// reports how many parameters were taken.
type Module interface {
	LoadState(sd StateDict) error
	LoadPartial(sd StateDict) int
}

// Load reads a checkpoint archive and returns one StateDict per sub-model.
func Load(path string) (map[string]StateDict, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer r.Close()

	out := make(map[string]StateDict)
	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, "net/")
		if name == f.Name || !strings.HasSuffix(name, ".npy") {
			continue
		}
		name = strings.TrimSuffix(name, ".npy")

		slash := strings.Index(name, "/")
		if slash <= 0 || slash == len(name)-1 {
			continue
		}
		submodel := name[:slash]
		param := strings.ReplaceAll(name[slash+1:], "/", ".")

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		tensor, err := readNPY(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}

		sd, ok := out[submodel]
		if !ok {
			sd = make(StateDict)
			out[submodel] = sd
		}
		sd[param] = tensor
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("checkpoint contains no sub-model weights")
	}
	return out, nil
}

// StripWrapperPrefix returns a copy of the StateDict with the wrapper prefix
// removed from every key that carries it.
func StripWrapperPrefix(sd StateDict) StateDict {
	out := make(StateDict, len(sd))
	for k, v := range sd {
		out[strings.TrimPrefix(k, WrapperPrefix)] = v
	}
	return out
}

// Apply loads a StateDict into a module. If the strict load fails on a key
// mismatch, the wrapper prefix is stripped from every key and the load is
// retried with partial-match tolerance; parameters still missing after the
// retry keep their initialized values. The retry is logged, never silent.
func Apply(name string, m Module, sd StateDict) error {
	err := m.LoadState(sd)
	if err == nil {
		return nil
	}

	stripped := StripWrapperPrefix(sd)
	loaded := m.LoadPartial(stripped)
	log.Warn().
		Str("submodel", name).
		Int("loaded", loaded).
		AnErr("strict_error", err).
		Msg("Strict weight load failed, retried with wrapper prefix stripped")
	if loaded == 0 {
		return fmt.Errorf("no weights matched for %s: %w", name, err)
	}
	return nil
}

func readNPY(r io.Reader) (Tensor, error) {
	magic := make([]byte, 6)
	if _, err := io.ReadFull(r, magic); err != nil {
		return Tensor{}, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic) != "\x93NUMPY" {
		return Tensor{}, fmt.Errorf("invalid NPY magic number")
	}

	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return Tensor{}, fmt.Errorf("failed to read version: %w", err)
	}

	var headerLen uint32
	if version[0] == 1 {
		var hl uint16
		if err := binary.Read(r, binary.LittleEndian, &hl); err != nil {
			return Tensor{}, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = uint32(hl)
	} else {
		if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
			return Tensor{}, fmt.Errorf("failed to read header length: %w", err)
		}
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Tensor{}, fmt.Errorf("failed to read header: %w", err)
	}

	headerStr := string(header)
	shape, err := parseShape(headerStr)
	if err != nil {
		return Tensor{}, err
	}

	total := 1
	for _, dim := range shape {
		total *= dim
	}

	isFloat16 := strings.Contains(headerStr, "'<f2'") || strings.Contains(headerStr, "descr': '<f2")
	isFloat32 := strings.Contains(headerStr, "'<f4'") || strings.Contains(headerStr, "descr': '<f4")

	switch {
	case isFloat16:
		raw := make([]uint16, total)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return Tensor{}, fmt.Errorf("failed to read float16 data: %w", err)
		}
		data := make([]float32, total)
		for i, v := range raw {
			data[i] = float16ToFloat32(v)
		}
		return Tensor{Shape: shape, Data: data}, nil
	case isFloat32:
		data := make([]float32, total)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return Tensor{}, fmt.Errorf("failed to read float32 data: %w", err)
		}
		return Tensor{Shape: shape, Data: data}, nil
	}

	return Tensor{}, fmt.Errorf("unsupported dtype in header: %s", headerStr)
}

func parseShape(header string) ([]int, error) {
	start := strings.Index(header, "'shape': (")
	if start == -1 {
		start = strings.Index(header, "\"shape\": (")
	}
	if start == -1 {
		return nil, fmt.Errorf("shape not found in header")
	}

	start += 10
	end := strings.Index(header[start:], ")")
	if end == -1 {
		return nil, fmt.Errorf("invalid shape format")
	}

	shapeStr := strings.TrimSpace(header[start : start+end])
	if shapeStr == "" {
		return []int{1}, nil
	}

	shapeStr = strings.TrimSuffix(shapeStr, ",")
	parts := strings.Split(shapeStr, ",")

	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var dim int
		if _, err := fmt.Sscanf(p, "%d", &dim); err != nil {
			return nil, fmt.Errorf("invalid dimension: %s", p)
		}
		shape = append(shape, dim)
	}

	if len(shape) == 0 {
		return []int{1}, nil
	}
	return shape, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32((h >> 15) & 1)
	exp := uint32((h >> 10) & 0x1F)
	mant := uint32(h & 0x3FF)

	var f uint32
	if exp == 0 {
		if mant == 0 {
			f = sign << 31
		} else {
			for (mant & 0x400) == 0 {
				mant <<= 1
				exp--
			}
			exp++
			mant &= 0x3FF
			f = (sign << 31) | ((exp + 127 - 15) << 23) | (mant << 13)
		}
	} else if exp == 31 {
		if mant == 0 {
			f = (sign << 31) | 0x7F800000
		} else {
			f = (sign << 31) | 0x7FC00000 | (mant << 13)
		}
	} else {
		f = (sign << 31) | ((exp + 127 - 15) << 23) | (mant << 13)
	}

	return math.Float32frombits(f)
}
