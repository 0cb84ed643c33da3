package ai

import (
	"errors"
	"fmt"

	"livedetect/internal/service/pipeline"

	"gocv.io/x/gocv"
)

var errNotMatFrame = errors.New("frame is not backed by a gocv.Mat")

// Frame is a BGR image owned by the detection loop.
type Frame struct {
	mat gocv.Mat
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

func (f *Frame) Close() error {
	return f.mat.Close()
}

// DecodeFrame decodes JPEG or PNG bytes. Data that yields no pixels is a
// capture failure.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no image data", pipeline.ErrCaptureFailed)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", pipeline.ErrCaptureFailed, err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: decoded image is empty", pipeline.ErrCaptureFailed)
	}
	return NewFrame(mat), nil
}

func matOf(frame pipeline.Frame) (gocv.Mat, error) {
	f, ok := frame.(*Frame)
	if !ok || f == nil {
		return gocv.Mat{}, errNotMatFrame
	}
	if f.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("frame is empty")
	}
	return f.mat, nil
}
