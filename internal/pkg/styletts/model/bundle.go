package model

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"

	"styletts2go/internal/pkg/styletts/checkpoint"
	"styletts2go/internal/pkg/styletts/style"
)

func getOnnxRuntimeLibPath() string {
	envPath := os.Getenv("ONNXRUNTIME_LIB_PATH")
	if envPath != "" {
		return envPath
	}

	switch runtime.GOOS {
	case "linux":
		paths := []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"./libonnxruntime.so",
			"./lib/libonnxruntime.so",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "libonnxruntime.so"
	case "windows":
		paths := []string{
			"onnxruntime.dll",
			"./onnxruntime.dll",
			"./lib/onnxruntime.dll",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "onnxruntime.dll"
	case "darwin":
		paths := []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"./libonnxruntime.dylib",
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Bundle is the fixed set of loaded sub-models. Every heavyweight network
// runs as its own ONNX session; only the duration head is native. All fields
// are immutable after Open, so concurrent reads need no locking.
type Bundle struct {
	cfg *Config

	textEncoder      *ort.DynamicAdvancedSession
	bert             *ort.DynamicAdvancedSession
	bertEncoder      *ort.DynamicAdvancedSession
	predictor        *ort.DynamicAdvancedSession
	prosodyPredictor *ort.DynamicAdvancedSession
	styleEncoder     *ort.DynamicAdvancedSession
	predictorEncoder *ort.DynamicAdvancedSession
	diffusion        *ort.DynamicAdvancedSession
	decoder          *ort.DynamicAdvancedSession

	durationHead *DurationHead

	opts        *ort.SessionOptions
	initialized bool
}

// Open loads every sub-model graph from root. device "cuda" requests the
// CUDA execution provider and falls back to CPU when unavailable.
func Open(root string, cfg *Config, device string) (*Bundle, error) {
	ort.SetSharedLibraryPath(getOnnxRuntimeLibPath())

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	b := &Bundle{
		cfg:          cfg,
		durationHead: NewDurationHead(cfg.Dims.Hidden, cfg.Dims.Hidden, cfg.Dims.DurationBins, 1),
		initialized:  true,
	}

	if device == "cuda" {
		opts, err := cudaSessionOptions()
		if err != nil {
			log.Warn().Err(err).Msg("CUDA unavailable, falling back to CPU")
		} else {
			b.opts = opts
		}
	}

	type graphSpec struct {
		name    string
		target  **ort.DynamicAdvancedSession
		inputs  []string
		outputs []string
	}
	specs := []graphSpec{
		{"text_encoder", &b.textEncoder, []string{"tokens"}, []string{"features"}},
		{"bert", &b.bert, []string{"tokens", "attention_mask"}, []string{"hidden"}},
		{"bert_encoder", &b.bertEncoder, []string{"hidden"}, []string{"encoding"}},
		{"predictor", &b.predictor, []string{"encoding", "style"}, []string{"features"}},
		{"prosody_predictor", &b.prosodyPredictor, []string{"features", "style"}, []string{"f0", "energy"}},
		{"style_encoder", &b.styleEncoder, []string{"mel"}, []string{"style"}},
		{"predictor_encoder", &b.predictorEncoder, []string{"mel"}, []string{"style"}},
		{"diffusion", &b.diffusion, []string{"noise", "sigma", "embedding", "style", "guidance"}, []string{"denoised"}},
		{"decoder", &b.decoder, []string{"features", "f0", "energy", "style"}, []string{"waveform"}},
	}

	for _, spec := range specs {
		path := filepath.Join(root, cfg.Graphs[spec.name])
		session, err := ort.NewDynamicAdvancedSession(path, spec.inputs, spec.outputs, b.opts)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to load %s: %w", spec.name, err)
		}
		*spec.target = session
	}

	return b, nil
}

func cudaSessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cuda.Destroy()
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to append CUDA provider: %w", err)
	}
	return opts, nil
}

// ApplyCheckpoint loads the serialized weight mapping and applies the
// predictor dictionary to the native duration head. Sub-models without a
// dictionary entry are reported; their graph weights are whatever the export
// baked in.
func (b *Bundle) ApplyCheckpoint(path string) error {
	dicts, err := checkpoint.Load(path)
	if err != nil {
		return err
	}

	for _, name := range GraphNames {
		if _, ok := dicts[name]; ok {
			log.Debug().Str("submodel", name).Msg("Checkpoint weights present")
		} else {
			log.Warn().Str("submodel", name).Msg("No checkpoint weights for sub-model")
		}
	}

	predictorDict, ok := dicts["predictor"]
	if !ok {
		return fmt.Errorf("checkpoint has no predictor weights")
	}
	return checkpoint.Apply("predictor", b.durationHead, predictorDict)
}

func (b *Bundle) DecoderType() string {
	return b.cfg.Decoder.Type
}

// TextEncoding runs the text encoder on a token sequence, returning
// features as [channels][tokens].
func (b *Bundle) TextEncoding(tokens []int64) ([][]float32, error) {
	tokensTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens tensor: %w", err)
	}

	outs, err := runSession(b.textEncoder, []ort.Value{tokensTensor}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to run text_encoder: %w", err)
	}
	return outs[0].as2D()
}

// ProsodyEncoding runs BERT over the tokens and projects the hidden states
// through the bert_encoder. It returns both the raw hidden states (flat
// [tokens*bertDim], the diffusion guidance signal) and the projected
// encoding [channels][tokens].
func (b *Bundle) ProsodyEncoding(tokens []int64) ([]float32, [][]float32, error) {
	tokensTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tokens tensor: %w", err)
	}

	mask := make([]int64, len(tokens))
	for i := range mask {
		mask[i] = 1
	}
	maskTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), mask)
	if err != nil {
		tokensTensor.Destroy()
		return nil, nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}

	outs, err := runSession(b.bert, []ort.Value{tokensTensor, maskTensor}, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run bert: %w", err)
	}
	hidden := outs[0]

	hiddenTensor, err := ort.NewTensor(ort.NewShape(hidden.shape...), hidden.data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hidden tensor: %w", err)
	}
	encOuts, err := runSession(b.bertEncoder, []ort.Value{hiddenTensor}, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run bert_encoder: %w", err)
	}
	encoding, err := encOuts[0].as2D()
	if err != nil {
		return nil, nil, err
	}
	return hidden.data, encoding, nil
}

// DenoiseStep implements diffusion.Denoiser through the denoiser graph.
func (b *Bundle) DenoiseStep(x []float32, sigma float32, embedding []float32, refStyle style.Vector, guidance float32) ([]float32, error) {
	bertDim := int64(b.cfg.Dims.Bert)
	embLen := int64(len(embedding)) / bertDim

	noiseTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(x))), x)
	if err != nil {
		return nil, fmt.Errorf("failed to create noise tensor: %w", err)
	}
	sigmaTensor, err := ort.NewTensor(ort.NewShape(1), []float32{sigma})
	if err != nil {
		noiseTensor.Destroy()
		return nil, fmt.Errorf("failed to create sigma tensor: %w", err)
	}
	embeddingTensor, err := ort.NewTensor(ort.NewShape(1, embLen, bertDim), embedding)
	if err != nil {
		destroyAll([]ort.Value{noiseTensor, sigmaTensor})
		return nil, fmt.Errorf("failed to create embedding tensor: %w", err)
	}
	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(refStyle))), []float32(refStyle))
	if err != nil {
		destroyAll([]ort.Value{noiseTensor, sigmaTensor, embeddingTensor})
		return nil, fmt.Errorf("failed to create style tensor: %w", err)
	}
	guidanceTensor, err := ort.NewTensor(ort.NewShape(1), []float32{guidance})
	if err != nil {
		destroyAll([]ort.Value{noiseTensor, sigmaTensor, embeddingTensor, styleTensor})
		return nil, fmt.Errorf("failed to create guidance tensor: %w", err)
	}

	inputs := []ort.Value{noiseTensor, sigmaTensor, embeddingTensor, styleTensor, guidanceTensor}
	outs, err := runSession(b.diffusion, inputs, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to run diffusion: %w", err)
	}
	return outs[0].data, nil
}

// ProsodyFeatures conditions the projected text encoding on the blended
// prosody style half.
func (b *Bundle) ProsodyFeatures(encoding [][]float32, prosody []float32) ([][]float32, error) {
	encTensor, err := newFeatureTensor(encoding)
	if err != nil {
		return nil, err
	}
	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(prosody))), prosody)
	if err != nil {
		encTensor.Destroy()
		return nil, fmt.Errorf("failed to create style tensor: %w", err)
	}

	outs, err := runSession(b.predictor, []ort.Value{encTensor, styleTensor}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to run predictor: %w", err)
	}
	return outs[0].as2D()
}

// DurationScores runs the native duration head.
func (b *Bundle) DurationScores(features [][]float32) [][]float32 {
	return b.durationHead.Forward(features)
}

// PitchEnergy predicts frame-level F0 and energy from expanded prosody
// features and the blended prosody style half.
func (b *Bundle) PitchEnergy(features [][]float32, prosody []float32) ([]float32, []float32, error) {
	featTensor, err := newFeatureTensor(features)
	if err != nil {
		return nil, nil, err
	}
	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(prosody))), prosody)
	if err != nil {
		featTensor.Destroy()
		return nil, nil, fmt.Errorf("failed to create style tensor: %w", err)
	}

	outs, err := runSession(b.prosodyPredictor, []ort.Value{featTensor, styleTensor}, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run prosody_predictor: %w", err)
	}
	return outs[0].data, outs[1].data, nil
}

// Decode synthesizes the waveform from expanded text encodings, pitch,
// energy, and the blended timbre style half.
func (b *Bundle) Decode(features [][]float32, f0, energy, timbre []float32) ([]float32, error) {
	featTensor, err := newFeatureTensor(features)
	if err != nil {
		return nil, err
	}
	f0Tensor, err := ort.NewTensor(ort.NewShape(1, int64(len(f0))), f0)
	if err != nil {
		featTensor.Destroy()
		return nil, fmt.Errorf("failed to create f0 tensor: %w", err)
	}
	energyTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(energy))), energy)
	if err != nil {
		destroyAll([]ort.Value{featTensor, f0Tensor})
		return nil, fmt.Errorf("failed to create energy tensor: %w", err)
	}
	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(timbre))), timbre)
	if err != nil {
		destroyAll([]ort.Value{featTensor, f0Tensor, energyTensor})
		return nil, fmt.Errorf("failed to create style tensor: %w", err)
	}

	inputs := []ort.Value{featTensor, f0Tensor, energyTensor, styleTensor}
	outs, err := runSession(b.decoder, inputs, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to run decoder: %w", err)
	}
	return outs[0].data, nil
}

// EncodeStyle runs the timbre encoder on a log-mel spectrogram [mels][frames].
func (b *Bundle) EncodeStyle(mel [][]float32) ([]float32, error) {
	return b.runMelEncoder(b.styleEncoder, "style_encoder", mel)
}

// EncodeProsody runs the prosody encoder on a log-mel spectrogram.
func (b *Bundle) EncodeProsody(mel [][]float32) ([]float32, error) {
	return b.runMelEncoder(b.predictorEncoder, "predictor_encoder", mel)
}

func (b *Bundle) runMelEncoder(sess *ort.DynamicAdvancedSession, name string, mel [][]float32) ([]float32, error) {
	if len(mel) == 0 || len(mel[0]) == 0 {
		return nil, fmt.Errorf("empty mel spectrogram")
	}
	mels := int64(len(mel))
	frames := int64(len(mel[0]))
	flat := make([]float32, 0, mels*frames)
	for _, row := range mel {
		flat = append(flat, row...)
	}

	melTensor, err := ort.NewTensor(ort.NewShape(1, 1, mels, frames), flat)
	if err != nil {
		return nil, fmt.Errorf("failed to create mel tensor: %w", err)
	}

	outs, err := runSession(sess, []ort.Value{melTensor}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return outs[0].data, nil
}

func (b *Bundle) Close() error {
	var lastErr error
	sessions := []*ort.DynamicAdvancedSession{
		b.textEncoder, b.bert, b.bertEncoder, b.predictor, b.prosodyPredictor,
		b.styleEncoder, b.predictorEncoder, b.diffusion, b.decoder,
	}
	for _, s := range sessions {
		if s != nil {
			if err := s.Destroy(); err != nil {
				lastErr = err
			}
		}
	}
	if b.opts != nil {
		if err := b.opts.Destroy(); err != nil {
			lastErr = err
		}
	}
	if b.initialized {
		b.initialized = false
		if err := ort.DestroyEnvironment(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

type tensorData struct {
	shape []int64
	data  []float32
}

// as2D interprets a [1,C,T] (or [C,T]) tensor as [channels][time].
func (t tensorData) as2D() ([][]float32, error) {
	shape := t.shape
	if len(shape) == 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected 2D feature tensor, got shape %v", t.shape)
	}
	rows, cols := int(shape[0]), int(shape[1])
	out := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		out[r] = t.data[r*cols : (r+1)*cols]
	}
	return out, nil
}

func newFeatureTensor(features [][]float32) (ort.Value, error) {
	if len(features) == 0 || len(features[0]) == 0 {
		return nil, fmt.Errorf("empty feature matrix")
	}
	rows := int64(len(features))
	cols := int64(len(features[0]))
	flat := make([]float32, 0, rows*cols)
	for _, row := range features {
		flat = append(flat, row...)
	}
	tensor, err := ort.NewTensor(ort.NewShape(1, rows, cols), flat)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature tensor: %w", err)
	}
	return tensor, nil
}

// runSession executes a session, destroys the inputs, and copies the
// float32 outputs out of runtime-owned memory.
func runSession(sess *ort.DynamicAdvancedSession, inputs []ort.Value, numOutputs int) ([]tensorData, error) {
	defer destroyAll(inputs)

	outputs := make([]ort.Value, numOutputs)
	if err := sess.Run(inputs, outputs); err != nil {
		return nil, err
	}
	defer destroyAll(outputs)

	res := make([]tensorData, numOutputs)
	for i, out := range outputs {
		if out == nil {
			return nil, fmt.Errorf("missing output %d", i)
		}
		tensor, ok := out.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("unexpected output tensor type at %d", i)
		}
		shape := tensor.GetShape()
		res[i] = tensorData{
			shape: append([]int64(nil), shape...),
			data:  append([]float32(nil), tensor.GetData()...),
		}
	}
	return res, nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
