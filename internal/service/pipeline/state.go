package pipeline

import (
	"image"
	"sync/atomic"
	"time"
)

// State is a position in the detection loop.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateProcessing
	StateDisplaying
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCapturing:
		return "Capturing"
	case StateProcessing:
		return "Processing"
	case StateDisplaying:
		return "Displaying"
	case StateStopped:
		return "Stopped"
	case StateErrored:
		return "Errored"
	}
	return "Unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateErrored
}

// StopFlag is set once by the stop button and never reset.
type StopFlag struct {
	set atomic.Bool
}

// Set raises the flag. Calling it again has no effect.
func (f *StopFlag) Set() {
	f.set.Store(true)
}

// IsSet reports whether the flag was raised.
func (f *StopFlag) IsSet() bool {
	return f.set.Load()
}

// Thresholds are handed to the detector unchanged on every frame.
type Thresholds struct {
	Confidence float32 // Minimum class score kept
	Overlap    float32 // IoU above which duplicate boxes are suppressed
}

// DefaultThresholds match the stock YOLOv8 predict call of the tool.
var DefaultThresholds = Thresholds{Confidence: 0.5, Overlap: 0.7}

// Settings are the fixed pacing and sizing values of the loop.
type Settings struct {
	Thresholds Thresholds
	OutputSize image.Point   // Display size of the annotated frame
	Delay      time.Duration // Pause after each displayed frame
	Quality    float64       // JPEG quality requested from the browser
}

// DefaultSettings returns the values the loop always runs with.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: DefaultThresholds,
		OutputSize: image.Pt(800, 450),
		Delay:      500 * time.Millisecond,
		Quality:    0.8,
	}
}
