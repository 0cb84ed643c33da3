package ai

import (
	"fmt"
	"image"

	"livedetect/internal/dto"
	"livedetect/internal/service/pipeline"

	"gocv.io/x/gocv"
)

// Renderer draws labelled boxes and encodes frames for display.
type Renderer struct {
	thickness int
	fontScale float64
	font      gocv.HersheyFont
}

func NewRenderer() *Renderer {
	return &Renderer{thickness: 2, fontScale: 0.5, font: gocv.FontHersheySimplex}
}

// Annotate draws every detection on a copy of frame and resizes the copy to
// size. The input frame is left untouched.
func (r *Renderer) Annotate(frame pipeline.Frame, detections []dto.DetectionResult, size image.Point) (pipeline.Frame, error) {
	src, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	canvas := src.Clone()
	defer canvas.Close()

	for _, detection := range detections {
		if err := r.drawDetection(&canvas, detection); err != nil {
			return nil, err
		}
	}

	if size.X <= 0 || size.Y <= 0 {
		return NewFrame(canvas.Clone()), nil
	}

	resized := gocv.NewMat()
	if err := gocv.Resize(canvas, &resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
		resized.Close()
		return nil, fmt.Errorf("failed to resize frame: %v", err)
	}
	return NewFrame(resized), nil
}

func (r *Renderer) drawDetection(mat *gocv.Mat, detection dto.DetectionResult) error {
	boxColor := ClassColor(detection.ClassID)
	rect := image.Rect(detection.X, detection.Y, detection.X+detection.Width, detection.Y+detection.Height)

	if err := gocv.Rectangle(mat, rect, boxColor, r.thickness); err != nil {
		return fmt.Errorf("failed to draw rectangle: %v", err)
	}

	caption := detection.Caption()
	textSize := gocv.GetTextSize(caption, r.font, r.fontScale, 1)

	// Caption sits above the box, or inside it when the box touches the top edge.
	top := rect.Min.Y - textSize.Y - 6
	if top < 0 {
		top = rect.Min.Y
	}
	background := image.Rect(rect.Min.X, top, rect.Min.X+textSize.X+4, top+textSize.Y+6)

	if err := gocv.Rectangle(mat, background, boxColor, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %v", err)
	}
	origin := image.Pt(background.Min.X+2, background.Max.Y-4)
	if err := gocv.PutText(mat, caption, origin, r.font, r.fontScale, textColor(boxColor), 1); err != nil {
		return fmt.Errorf("failed to draw text: %v", err)
	}
	return nil
}

// Encode compresses frame to JPEG.
func (r *Renderer) Encode(frame pipeline.Frame) ([]byte, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	encoded := buf.GetBytes()
	if len(encoded) == 0 {
		return nil, fmt.Errorf("encoder produced no data")
	}
	jpeg := make([]byte, len(encoded))
	copy(jpeg, encoded)
	return jpeg, nil
}
