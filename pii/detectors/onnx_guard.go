//go:build onnx

package pii

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"
)

const maxSeqLen = 512

func init() {
	registerGuardFactory(ProviderONNX, func(opts Options) (Guard, error) { return NewONNXGuard(opts) })
}

// ONNXGuard runs a local token-classification model. Inference reuses one set of tensors,
// so Detect calls are serialized.
type ONNXGuard struct {
	mu           sync.Mutex
	tokenizer    *tokenizers.Tokenizer
	session      *onnxruntime.AdvancedSession
	inputTensor  *onnxruntime.Tensor[int64]
	maskTensor   *onnxruntime.Tensor[int64]
	outputTensor *onnxruntime.Tensor[float32]
	labels       labelSet
}

// NewONNXGuard requires model_path, tokenizer_path and labels_path. shared_library_path
// (default env ONNXRUNTIME_SHARED_LIBRARY_PATH) locates the runtime library.
func NewONNXGuard(opts Options) (*ONNXGuard, error) {
	modelPath := opts.String("model_path", "")
	tokenizerPath := opts.String("tokenizer_path", "")
	labelsPath := opts.String("labels_path", "")
	for _, required := range [][2]string{
		{"model_path", modelPath}, {"tokenizer_path", tokenizerPath}, {"labels_path", labelsPath},
	} {
		if required[1] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingOption, required[0])
		}
	}

	labels, err := loadLabelSet(labelsPath)
	if err != nil {
		return nil, err
	}

	if lib := opts.String("shared_library_path", os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); lib != "" {
		onnxruntime.SetSharedLibraryPath(lib)
	}
	if !onnxruntime.IsInitialized() {
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}

	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	g := &ONNXGuard{tokenizer: tk, labels: labels}
	if err := g.initializeSession(modelPath); err != nil {
		_ = tk.Close()
		return nil, err
	}
	return g, nil
}

// loadLabelSet reads id2label either at the top level or under "pii".
func loadLabelSet(path string) (labelSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return labelSet{}, fmt.Errorf("failed to read label mappings: %w", err)
	}
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
		PII      struct {
			ID2Label map[string]string `json:"id2label"`
		} `json:"pii"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return labelSet{}, fmt.Errorf("failed to parse label mappings: %w", err)
	}
	id2label := cfg.PII.ID2Label
	if len(id2label) == 0 {
		id2label = cfg.ID2Label
	}
	labels := newLabelSet(id2label)
	if labels.numLabels == 0 {
		return labelSet{}, fmt.Errorf("label mappings in %s contain no labels", path)
	}
	return labels, nil
}

func (g *ONNXGuard) initializeSession(modelPath string) error {
	inputShape := onnxruntime.NewShape(1, maxSeqLen)
	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		_ = inputTensor.Destroy()
		return fmt.Errorf("failed to create mask tensor: %w", err)
	}
	outputShape := onnxruntime.NewShape(1, maxSeqLen, int64(g.labels.numLabels))
	outputTensor, err := onnxruntime.NewEmptyTensor[float32](outputShape)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := onnxruntime.NewAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"pii_logits"},
		[]onnxruntime.Value{inputTensor, maskTensor},
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		_ = outputTensor.Destroy()
		return fmt.Errorf("failed to create session: %w", err)
	}

	g.session = session
	g.inputTensor = inputTensor
	g.maskTensor = maskTensor
	g.outputTensor = outputTensor
	return nil
}

func (g *ONNXGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	if err := ctx.Err(); err != nil {
		return GuardResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	encoding := g.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnOffsets())
	numTokens := len(encoding.IDs)
	if numTokens > maxSeqLen {
		slog.Warn("onnx guard: input truncated", "tokens", numTokens, "max", maxSeqLen)
		numTokens = maxSeqLen
	}

	inputData := g.inputTensor.GetData()
	maskData := g.maskTensor.GetData()
	for i := range inputData {
		inputData[i], maskData[i] = 0, 0
	}
	offsets := make([]tokenOffset, 0, numTokens)
	for i := 0; i < numTokens; i++ {
		inputData[i] = int64(encoding.IDs[i])
		maskData[i] = 1
		if i < len(encoding.Offsets) {
			off := encoding.Offsets[i]
			offsets = append(offsets, tokenOffset{start: int(off[0]), end: int(off[1])})
		}
	}

	if err := g.session.Run(); err != nil {
		return GuardResult{}, fmt.Errorf("failed to run inference: %w", err)
	}

	res := newGuardResult(onnxModelName, nil)
	res.Matches = mergeTokenPredictions(text, g.outputTensor.GetData(), offsets, g.labels)
	return res, nil
}

// Close releases the session, tensors and tokenizer.
func (g *ONNXGuard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	if g.session != nil {
		errs = append(errs, g.session.Destroy())
	}
	for _, t := range []interface{ Destroy() error }{g.inputTensor, g.maskTensor, g.outputTensor} {
		errs = append(errs, t.Destroy())
	}
	if g.tokenizer != nil {
		errs = append(errs, g.tokenizer.Close())
	}
	return errors.Join(errs...)
}
