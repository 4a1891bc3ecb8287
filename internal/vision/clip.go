package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ClipOracle scores (crop, label) pairs with a CLIP-style image encoder.
// Crops are embedded on the fly; label embeddings come precomputed from the
// label bank. Cosine similarity is remapped from [-1,1] to [0,1] so gate
// thresholds stay in confidence space.
type ClipOracle struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
	bank         *LabelBank
}

// NewClipOracle loads the image-encoder ONNX model. bank may be nil for
// binary-confirmation-only mode. opts may be nil for ORT defaults.
func NewClipOracle(modelPath string, embDim int, bank *LabelBank, opts *ort.SessionOptions) (*ClipOracle, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	inputW, inputH := 224, 224
	if embDim <= 0 {
		embDim = 512
	}

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("create input tensor: %w", err)}
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}

	return &ClipOracle{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
		bank:         bank,
	}, nil
}

// Ready reports whether the encoder session is loaded.
func (o *ClipOracle) Ready() bool {
	return o != nil && o.session != nil
}

// Confirm scores the crop against a single label. The label must exist in
// the bank (its embedding is precomputed there); unknown labels error and
// the caller degrades to pass-through.
func (o *ClipOracle) Confirm(ctx context.Context, crop image.Image, label string) (float64, error) {
	emb, err := o.Embed(ctx, crop)
	if err != nil {
		return 0, err
	}
	labelEmb, ok := o.bank.Lookup(label)
	if !ok {
		return 0, fmt.Errorf("%w: label %q not in bank", ErrInvalidInput, label)
	}
	return toUnitScore(CosineSimilarity(emb, labelEmb)), nil
}

// BestMatch embeds the crop and returns the closest bank label with its
// score. Without a bank it falls back to confirming the provided label.
func (o *ClipOracle) BestMatch(ctx context.Context, crop image.Image, label string) (string, float64, error) {
	if o.bank.Len() == 0 {
		score, err := o.Confirm(ctx, crop, label)
		return label, score, err
	}

	emb, err := o.Embed(ctx, crop)
	if err != nil {
		return "", 0, err
	}
	best, sim := o.bank.Best(emb)
	return best, toUnitScore(sim), nil
}

// Embed runs the image encoder on a crop and returns the L2-normalized
// embedding.
func (o *ClipOracle) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	if crop == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// CLIP normalization constants (0-255 scale).
	input := imageToFloat32CHW(crop, o.inputW, o.inputH,
		[3]float32{122.77, 116.75, 104.09},
		[3]float32{68.50, 66.63, 70.32})

	o.mu.Lock()
	defer o.mu.Unlock()

	copy(o.inputTensor.GetData(), input)
	if err := o.session.Run(); err != nil {
		return nil, &InferenceError{Stage: "embed", Err: err}
	}

	embedding := make([]float32, o.embDim)
	copy(embedding, o.outputTensor.GetData())
	normalize(embedding)
	return embedding, nil
}

// Close releases the ONNX session and tensors.
func (o *ClipOracle) Close() {
	if o == nil {
		return
	}
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
}

// toUnitScore maps cosine similarity from [-1,1] into [0,1].
func toUnitScore(sim float64) float64 {
	return (sim + 1) / 2
}
