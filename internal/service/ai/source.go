package ai

import (
	"context"

	"livedetect/internal/service/pipeline"
)

// PhotoTaker returns one encoded photo from a camera.
type PhotoTaker interface {
	TakePhoto(ctx context.Context, quality float64) ([]byte, error)
}

// WebcamSource turns camera photos into frames for the loop.
type WebcamSource struct {
	camera PhotoTaker
}

func NewWebcamSource(camera PhotoTaker) *WebcamSource {
	return &WebcamSource{camera: camera}
}

func (s *WebcamSource) Capture(ctx context.Context, quality float64) (pipeline.Frame, error) {
	data, err := s.camera.TakePhoto(ctx, quality)
	if err != nil {
		return nil, err
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	return frame, nil
}
