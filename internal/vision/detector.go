package vision

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/spotter/internal/geom"
)

// Detector runs an open-vocabulary YOLO-style object detector with ONNX
// Runtime. Output layout is [1, 4+C, N]: center-box coordinates followed by
// per-class scores for N anchor proposals.
type Detector struct {
	mu        sync.Mutex
	modelPath string
	vocab     []string
	threshold float64
	inputW    int
	inputH    int
	anchors   int
	opts      *ort.SessionOptions

	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensor  *ort.Tensor[float32]
}

// NewDetector configures a detector. The session is built by Prepare, not
// here, so a worker can come up before the model finishes loading.
// threshold should sit at the noise floor; everything above it is emitted
// and the filter's buckets decide what happens next.
func NewDetector(modelPath string, vocab []string, threshold float64, opts *ort.SessionOptions) *Detector {
	inputW, inputH := 640, 640
	return &Detector{
		modelPath: modelPath,
		vocab:     vocab,
		threshold: threshold,
		inputW:    inputW,
		inputH:    inputH,
		anchors:   8400, // 80*80 + 40*40 + 20*20 at strides 8/16/32
		opts:      opts,
	}
}

// Prepare builds (or rebuilds) the ONNX session. Safe to call repeatedly:
// an existing session is torn down first, which is also how zero-detection
// streak recovery re-initializes the detector.
func (d *Detector) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.modelPath); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, d.modelPath)
	}

	d.destroyLocked()

	inputShape := ort.NewShape(1, 3, int64(d.inputH), int64(d.inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return &ModelLoadError{Path: d.modelPath, Err: fmt.Errorf("create input tensor: %w", err)}
	}

	outputShape := ort.NewShape(1, int64(4+len(d.vocab)), int64(d.anchors))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return &ModelLoadError{Path: d.modelPath, Err: fmt.Errorf("create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(d.modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		d.opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return &ModelLoadError{Path: d.modelPath, Err: err}
	}

	d.session = session
	d.inputTensor = inputTensor
	d.outputTensor = outputTensor
	return nil
}

// Detect runs the detector on a frame and returns raw normalized
// detections above the noise threshold. No NMS here — the filter stage
// owns suppression.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	if frame == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, ErrNotPrepared
	}

	input := imageToFloat32CHW(frame, d.inputW, d.inputH,
		[3]float32{0, 0, 0}, [3]float32{255, 255, 255})
	copy(d.inputTensor.GetData(), input)

	if err := d.session.Run(); err != nil {
		return nil, &InferenceError{Stage: "detect", Err: err}
	}

	return d.parseOutput(d.outputTensor.GetData()), nil
}

// parseOutput decodes the [4+C, N] output: per anchor, a center box plus
// one score per vocabulary class.
func (d *Detector) parseOutput(data []float32) []Detection {
	var dets []Detection
	n := d.anchors
	classes := len(d.vocab)

	for a := 0; a < n; a++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < classes; c++ {
			score := data[(4+c)*n+a]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || float64(bestScore) < d.threshold {
			continue
		}

		cx := float64(data[0*n+a]) / float64(d.inputW)
		cy := float64(data[1*n+a]) / float64(d.inputH)
		w := float64(data[2*n+a]) / float64(d.inputW)
		h := float64(data[3*n+a]) / float64(d.inputH)

		box := geom.Rect{X: cx - w/2, Y: cy - h/2, W: w, H: h}
		box = clampToUnit(box)

		dets = append(dets, Detection{
			ID:         uuid.NewString(),
			Label:      d.vocab[bestClass],
			Confidence: float64(bestScore),
			Box:        box,
		})
	}
	return dets
}

// Close releases the ONNX session and tensors.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyLocked()
}

func (d *Detector) destroyLocked() {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
}

// clampToUnit clips a rect to the unit square, preserving non-negative size.
func clampToUnit(r geom.Rect) geom.Rect {
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	if r.MaxX() > 1 {
		r.W = 1 - r.X
	}
	if r.MaxY() > 1 {
		r.H = 1 - r.Y
	}
	if r.W < 0 {
		r.W = 0
	}
	if r.H < 0 {
		r.H = 0
	}
	return r
}

// LoadVocabulary reads the detector's class list: one label per line,
// blank lines and #-comments skipped.
func LoadVocabulary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var vocab []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		vocab = append(vocab, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary %s", ErrInvalidInput, path)
	}
	return vocab, nil
}
