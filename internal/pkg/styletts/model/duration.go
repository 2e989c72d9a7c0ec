package model

import (
	"fmt"
	"math"

	"styletts2go/internal/pkg/styletts/checkpoint"
)

// durationHeadKeys are the parameters the head takes from the predictor
// weight dictionary. The rest of the predictor runs inside its ONNX graph.
var durationHeadKeys = []string{
	"lstm.weight_ih",
	"lstm.weight_hh",
	"lstm.bias",
	"duration_proj.weight",
	"duration_proj.bias",
}

// DurationHead is the recurrent duration projection kept native so the
// alignment logic stays in Go: a single LSTM pass over the prosody features
// followed by a linear projection to per-token duration score bins.
type DurationHead struct {
	inputDim  int
	hiddenDim int
	bins      int

	weightIH []float32 // [4*hidden][input]
	weightHH []float32 // [4*hidden][hidden]
	bias     []float32 // [4*hidden]
	projW    []float32 // [bins][hidden]
	projB    []float32 // [bins]
}

// NewDurationHead builds a head with uniformly initialized parameters. Until
// a checkpoint is applied the predictions are random, which mirrors how an
// unloaded sub-model behaves.
func NewDurationHead(inputDim, hiddenDim, bins int, seed uint64) *DurationHead {
	h := &DurationHead{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		bins:      bins,
		weightIH:  make([]float32, 4*hiddenDim*inputDim),
		weightHH:  make([]float32, 4*hiddenDim*hiddenDim),
		bias:      make([]float32, 4*hiddenDim),
		projW:     make([]float32, bins*hiddenDim),
		projB:     make([]float32, bins),
	}

	if seed == 0 {
		seed = 1
	}
	scale := float32(1 / math.Sqrt(float64(hiddenDim)))
	state := seed
	uniform := func() float32 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return (float32(state)/float32(^uint64(0))*2 - 1) * scale
	}
	for i := range h.weightIH {
		h.weightIH[i] = uniform()
	}
	for i := range h.weightHH {
		h.weightHH[i] = uniform()
	}
	for i := range h.projW {
		h.projW[i] = uniform()
	}
	return h
}

// Forward maps prosody features [channels][tokens] to raw duration scores
// [tokens][bins]. Gate layout follows the i, f, g, o convention of the
// exported weights.
func (h *DurationHead) Forward(features [][]float32) [][]float32 {
	tokens := 0
	if len(features) > 0 {
		tokens = len(features[0])
	}

	scores := make([][]float32, tokens)
	hidden := make([]float32, h.hiddenDim)
	cell := make([]float32, h.hiddenDim)
	gates := make([]float32, 4*h.hiddenDim)

	for t := 0; t < tokens; t++ {
		for g := range gates {
			gates[g] = h.bias[g]
		}
		for c := 0; c < h.inputDim && c < len(features); c++ {
			x := features[c][t]
			if x == 0 {
				continue
			}
			for g := 0; g < 4*h.hiddenDim; g++ {
				gates[g] += h.weightIH[g*h.inputDim+c] * x
			}
		}
		for j := 0; j < h.hiddenDim; j++ {
			v := hidden[j]
			if v == 0 {
				continue
			}
			for g := 0; g < 4*h.hiddenDim; g++ {
				gates[g] += h.weightHH[g*h.hiddenDim+j] * v
			}
		}

		for j := 0; j < h.hiddenDim; j++ {
			i := sigmoid(gates[j])
			f := sigmoid(gates[h.hiddenDim+j])
			g := tanh(gates[2*h.hiddenDim+j])
			o := sigmoid(gates[3*h.hiddenDim+j])
			cell[j] = f*cell[j] + i*g
			hidden[j] = o * tanh(cell[j])
		}

		row := make([]float32, h.bins)
		for b := 0; b < h.bins; b++ {
			acc := h.projB[b]
			for j := 0; j < h.hiddenDim; j++ {
				acc += h.projW[b*h.hiddenDim+j] * hidden[j]
			}
			row[b] = acc
		}
		scores[t] = row
	}
	return scores
}

// LoadState applies a weight dictionary strictly: every head parameter must
// be present with a matching element count. Extra keys belonging to the
// graph-resident parts of the predictor are ignored.
func (h *DurationHead) LoadState(sd checkpoint.StateDict) error {
	for _, key := range durationHeadKeys {
		tensor, ok := sd[key]
		if !ok {
			return fmt.Errorf("missing parameter %q", key)
		}
		if err := h.setParam(key, tensor); err != nil {
			return err
		}
	}
	return nil
}

// LoadPartial applies whatever matches and reports the count.
func (h *DurationHead) LoadPartial(sd checkpoint.StateDict) int {
	loaded := 0
	for _, key := range durationHeadKeys {
		tensor, ok := sd[key]
		if !ok {
			continue
		}
		if err := h.setParam(key, tensor); err == nil {
			loaded++
		}
	}
	return loaded
}

func (h *DurationHead) setParam(key string, t checkpoint.Tensor) error {
	var dst []float32
	switch key {
	case "lstm.weight_ih":
		dst = h.weightIH
	case "lstm.weight_hh":
		dst = h.weightHH
	case "lstm.bias":
		dst = h.bias
	case "duration_proj.weight":
		dst = h.projW
	case "duration_proj.bias":
		dst = h.projB
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	if t.Elements() != len(dst) {
		return fmt.Errorf("parameter %q has %d elements, want %d", key, t.Elements(), len(dst))
	}
	copy(dst, t.Data)
	return nil
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

func tanh(v float32) float32 {
	return float32(math.Tanh(float64(v)))
}
