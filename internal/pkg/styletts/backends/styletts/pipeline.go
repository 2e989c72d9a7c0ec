package styletts

import (
	"fmt"
	"strings"

	"styletts2go/internal/pkg/styletts/align"
	"styletts2go/internal/pkg/styletts/model"
	"styletts2go/internal/pkg/styletts/style"
)

// tailTrim is the number of trailing synthesis-artifact samples dropped from
// every sufficiently long waveform.
const tailTrim = 50

// inference is the per-call pipeline: text -> tokens -> encodings ->
// diffusion sample -> blend -> duration/align -> pitch & energy -> decode.
func (e *Engine) inference(text string) ([]float32, error) {
	processed := e.pre.Process(strings.TrimSpace(text))
	phonemes := e.phon.Phonemize(processed)
	tokens := e.tok.Encode(phonemes)

	tEn, err := e.models.TextEncoding(tokens)
	if err != nil {
		return nil, err
	}

	embedding, dEn, err := e.models.ProsodyEncoding(tokens)
	if err != nil {
		return nil, err
	}

	sampled, err := e.sampler.Sample(e.models, embedding, e.refStyle, e.cfg.DiffusionSteps, e.cfg.EmbeddingScale)
	if err != nil {
		return nil, err
	}
	blended := style.Blend(sampled, e.refStyle, e.cfg.Alpha, e.cfg.Beta)

	features, err := e.models.ProsodyFeatures(dEn, blended.Prosody())
	if err != nil {
		return nil, err
	}

	durations := align.Durations(e.models.DurationScores(features))
	if len(durations) != len(tokens) {
		return nil, fmt.Errorf("predicted %d durations for %d tokens", len(durations), len(tokens))
	}
	alignment := align.Matrix(durations)

	shift := e.models.DecoderType() == model.DecoderHifigan

	expanded := align.Expand(features, alignment)
	if shift {
		expanded = shiftFrames(expanded)
	}
	f0, energy, err := e.models.PitchEnergy(expanded, blended.Prosody())
	if err != nil {
		return nil, err
	}

	asr := align.Expand(tEn, alignment)
	if shift {
		asr = shiftFrames(asr)
	}

	wave, err := e.models.Decode(asr, f0, energy, blended.Timbre())
	if err != nil {
		return nil, err
	}
	return trimTail(wave), nil
}

// shiftFrames applies the hifigan alignment-offset correction: every frame
// moves one position right and the first frame is duplicated. Other decoder
// families take the features untouched.
func shiftFrames(features [][]float32) [][]float32 {
	out := make([][]float32, len(features))
	for c, row := range features {
		shifted := make([]float32, len(row))
		if len(row) > 0 {
			shifted[0] = row[0]
			copy(shifted[1:], row[:len(row)-1])
		}
		out[c] = shifted
	}
	return out
}

// trimTail drops the last tailTrim samples, but only when the waveform is
// longer than that; shorter output passes through unmodified.
func trimTail(wave []float32) []float32 {
	if len(wave) > tailTrim {
		return wave[:len(wave)-tailTrim]
	}
	return wave
}
