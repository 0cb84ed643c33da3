package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/service/pipeline"

	"gocv.io/x/gocv"
)

// DetectorConfig holds the model location and its input size.
type DetectorConfig struct {
	ModelPath   string
	InputWidth  int
	InputHeight int
}

// DefaultDetectorConfig returns the YOLOv8n export defaults.
func DefaultDetectorConfig(modelPath string) DetectorConfig {
	return DetectorConfig{
		ModelPath:   modelPath,
		InputWidth:  640,
		InputHeight: 640,
	}
}

// Detector runs a YOLOv8 ONNX export through the OpenCV DNN module.
type Detector struct {
	net       gocv.Net
	config    DetectorConfig
	inputSize image.Point
	mu        sync.Mutex
	logger    *logger.Logger
}

// NewDetector loads the network. It fails when the weights are missing or unreadable.
func NewDetector(cfg DetectorConfig, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", cfg.ModelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network loaded from %s", cfg.ModelPath)
	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger,
	}, nil
}

// Detect returns the detections above thresholds.Confidence after
// non-maximum suppression at thresholds.Overlap, in frame pixel coordinates.
func (d *Detector) Detect(frame pipeline.Frame, thresholds pipeline.Thresholds) ([]dto.DetectionResult, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lb := newLetterbox(mat.Cols(), mat.Rows(), d.config.InputWidth, d.config.InputHeight)
	padded, err := lb.apply(mat)
	if err != nil {
		return nil, err
	}
	defer padded.Close()

	blob := gocv.BlobFromImage(padded, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 4+classes, candidates]
	shape := output.Size()
	if len(shape) != 3 || shape[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output tensor: %w", err)
	}

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	boxes, scores, classIDs := decodeCandidates(data, shape[1], shape[2], lb, bounds, thresholds.Confidence)
	if len(boxes) == 0 {
		return []dto.DetectionResult{}, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, thresholds.Confidence, thresholds.Overlap)

	results := make([]dto.DetectionResult, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		results = append(results, dto.DetectionResult{
			ClassID:    classIDs[idx],
			Label:      ClassLabel(classIDs[idx]),
			Confidence: float64(scores[idx]),
			X:          box.Min.X,
			Y:          box.Min.Y,
			Width:      box.Dx(),
			Height:     box.Dy(),
		})
	}
	return results, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// padValue is the grey Ultralytics fills letterbox borders with.
const padValue = 114

// letterbox maps a frame onto the network input keeping its aspect ratio:
// the frame is scaled by scale and centred with padX/padY pixels of border.
type letterbox struct {
	scale      float32
	width      int // Scaled frame size inside the input
	height     int
	padX, padY int
	inputSize  image.Point
}

func newLetterbox(cols, rows, inputWidth, inputHeight int) letterbox {
	scale := min(float32(inputWidth)/float32(cols), float32(inputHeight)/float32(rows))
	width := min(int(float32(cols)*scale+0.5), inputWidth)
	height := min(int(float32(rows)*scale+0.5), inputHeight)
	return letterbox{
		scale:     scale,
		width:     width,
		height:    height,
		padX:      (inputWidth - width) / 2,
		padY:      (inputHeight - height) / 2,
		inputSize: image.Pt(inputWidth, inputHeight),
	}
}

// apply returns the padded network input for mat.
func (lb letterbox) apply(mat gocv.Mat) (gocv.Mat, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(mat, &resized, image.Pt(lb.width, lb.height), 0, 0, gocv.InterpolationLinear); err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to resize frame for inference: %v", err)
	}

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(padValue, padValue, padValue, 0),
		lb.inputSize.Y, lb.inputSize.X, gocv.MatTypeCV8UC3)
	roi := padded.Region(image.Rect(lb.padX, lb.padY, lb.padX+lb.width, lb.padY+lb.height))
	defer roi.Close()
	resized.CopyTo(&roi)
	return padded, nil
}

// toFrame converts a point in network input pixels to frame pixels.
func (lb letterbox) toFrame(x, y float32) (int, int) {
	return int((x - float32(lb.padX)) / lb.scale), int((y - float32(lb.padY)) / lb.scale)
}

// decodeCandidates reads a channel-major [attrs x count] tensor where each
// candidate is (cx, cy, w, h, score_0..score_n) in network input pixels. It
// keeps those whose best class score reaches minScore and maps their boxes
// back to the frame through lb.
func decodeCandidates(data []float32, attrs, count int, lb letterbox, bounds image.Rectangle, minScore float32) ([]image.Rectangle, []float32, []int) {
	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	if len(data) < attrs*count {
		return nil, nil, nil
	}

	for i := 0; i < count; i++ {
		best := float32(0)
		bestClass := -1
		for c := 4; c < attrs; c++ {
			if score := data[c*count+i]; score > best {
				best = score
				bestClass = c - 4
			}
		}
		if bestClass < 0 || best < minScore {
			continue
		}

		cx := data[0*count+i]
		cy := data[1*count+i]
		w := data[2*count+i]
		h := data[3*count+i]

		x0, y0 := lb.toFrame(cx-w/2, cy-h/2)
		x1, y1 := lb.toFrame(cx+w/2, cy+h/2)
		box := image.Rect(x0, y0, x1, y1).Intersect(bounds)
		if box.Empty() {
			continue
		}

		boxes = append(boxes, box)
		scores = append(scores, best)
		classIDs = append(classIDs, bestClass)
	}
	return boxes, scores, classIDs
}
