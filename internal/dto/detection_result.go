package dto

import "fmt"

// DetectionResult is one box produced by the detector, in source-frame pixels.
type DetectionResult struct {
	ClassID    int     `json:"classId"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Caption is the text drawn above the box, e.g. "person 0.87".
func (d DetectionResult) Caption() string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}
