// Package pipeline runs the capture, detect, annotate and display loop.
//
// The loop is strictly sequential. The only state shared with the outside
// is the StopFlag, written by the stop button handler and read once at the
// top of every iteration, so a capture or inference already in flight always
// completes before the loop notices the flag.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"livedetect/internal/dto"
	"livedetect/internal/logger"
)

var (
	// ErrCaptureFailed means the browser returned no usable frame.
	ErrCaptureFailed = errors.New("could not capture frame")
	// ErrAlreadyRun is returned when Run is called on a finished or running loop.
	ErrAlreadyRun = errors.New("loop already started")
)

// Frame is one decoded pixel buffer. It is closed at the end of its iteration.
type Frame interface {
	Close() error
}

// Capturer acquires one frame from the camera.
type Capturer interface {
	Capture(ctx context.Context, quality float64) (Frame, error)
}

// Detector runs the pretrained model on a frame.
type Detector interface {
	Detect(frame Frame, thresholds Thresholds) ([]dto.DetectionResult, error)
}

// Renderer draws detections and produces display bytes.
type Renderer interface {
	// Annotate returns a new frame with boxes drawn, resized to size.
	Annotate(frame Frame, detections []dto.DetectionResult, size image.Point) (Frame, error)
	// Encode compresses a frame for the image widget.
	Encode(frame Frame) ([]byte, error)
}

// Display is the status label and image widget pair.
type Display interface {
	SetStatus(status Status)
	SetImage(jpeg []byte)
}

// Recorder receives every processed frame. Optional.
type Recorder interface {
	RecordFrame(index int, detections []dto.DetectionResult, jpeg []byte)
}

// Metrics receives loop measurements. Optional.
type Metrics interface {
	RecordCapture(ctx context.Context, d time.Duration, ok bool)
	RecordInference(ctx context.Context, d time.Duration, detections []dto.DetectionResult)
	RecordEncodeFailure(ctx context.Context)
	RecordOutcome(ctx context.Context, state string)
}

// Status is a line of text for the status label.
type Status struct {
	Text  string
	Color string
}

var (
	StatusWaiting    = Status{Text: "Waiting for capture to start...", Color: "blue"}
	StatusCapturing  = Status{Text: "Capturing frame (please wait for camera prompt)...", Color: "orange"}
	StatusProcessing = Status{Text: "Processing frame with YOLOv8...", Color: "green"}
	StatusDisplaying = Status{Text: "Displaying frame. Waiting for next capture...", Color: "blue"}
	StatusStopping   = Status{Text: "Stopping detection loop...", Color: "red"}
	StatusNoFrame    = Status{Text: "Error: Could not capture frame.", Color: "red"}
)

// StatusUnexpected reports an error caught by the loop's generic handler.
func StatusUnexpected(err error) Status {
	return Status{Text: fmt.Sprintf("An unexpected error occurred: %v", err), Color: "red"}
}

// Deps are the loop collaborators. Recorder, Metrics and Logger may be nil.
type Deps struct {
	Capturer Capturer
	Detector Detector
	Renderer Renderer
	Display  Display
	Recorder Recorder
	Metrics  Metrics
	Logger   *logger.Logger
}

// Outcome describes how a run ended.
type Outcome struct {
	State  State
	Frames int // Frames that reached the display step
	Err    error
}

// Loop is a single-use detection loop.
type Loop struct {
	deps     Deps
	settings Settings
	stop     StopFlag
	state    atomic.Int32
	frames   atomic.Int64
}

// New validates the collaborators and returns an idle loop.
func New(deps Deps, settings Settings) (*Loop, error) {
	switch {
	case deps.Capturer == nil:
		return nil, errors.New("pipeline: capturer is required")
	case deps.Detector == nil:
		return nil, errors.New("pipeline: detector is required")
	case deps.Renderer == nil:
		return nil, errors.New("pipeline: renderer is required")
	case deps.Display == nil:
		return nil, errors.New("pipeline: display is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewDiscard()
	}

	return &Loop{deps: deps, settings: settings}, nil
}

// Stop raises the stop flag. The loop exits at the top of its next iteration.
func (l *Loop) Stop() {
	l.stop.Set()
}

// StopRequested reports whether Stop was called.
func (l *Loop) StopRequested() bool {
	return l.stop.IsSet()
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Frames returns how many frames reached the display step so far.
func (l *Loop) Frames() int {
	return int(l.frames.Load())
}

// Settings returns the values the loop runs with.
func (l *Loop) Settings() Settings {
	return l.settings
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run executes the loop until the stop flag is observed, ctx is cancelled,
// or an error ends it. It can only be called once.
func (l *Loop) Run(ctx context.Context) Outcome {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateCapturing)) {
		return Outcome{State: l.State(), Frames: l.Frames(), Err: ErrAlreadyRun}
	}

	outcome := l.run(ctx)
	l.setState(outcome.State)
	outcome.Frames = l.Frames()

	if l.deps.Metrics != nil {
		l.deps.Metrics.RecordOutcome(ctx, outcome.State.String())
	}
	return outcome
}

func (l *Loop) run(ctx context.Context) Outcome {
	for index := 0; ; index++ {
		if l.stop.IsSet() || ctx.Err() != nil {
			l.deps.Logger.Info("Detection loop stopped after %d frame(s)", l.Frames())
			return Outcome{State: StateStopped}
		}

		err := l.iterate(ctx, index)
		switch {
		case err == nil:
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// Shutdown interrupted a capture; same as pressing stop.
			l.deps.Logger.Info("Detection loop cancelled: %v", err)
			return Outcome{State: StateStopped}
		case errors.Is(err, ErrCaptureFailed):
			l.deps.Display.SetStatus(StatusNoFrame)
			l.deps.Logger.Error("Capture failed: %v", err)
			return Outcome{State: StateErrored, Err: err}
		default:
			l.deps.Display.SetStatus(StatusUnexpected(err))
			l.deps.Logger.Error("Unexpected error during detection: %v", err)
			return Outcome{State: StateErrored, Err: err}
		}

		l.pause(ctx)
	}
}

// iterate performs one capture, detect, annotate, display cycle.
func (l *Loop) iterate(ctx context.Context, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in frame %d: %v", index, r)
		}
	}()

	l.setState(StateCapturing)
	l.deps.Display.SetStatus(StatusCapturing)

	start := time.Now()
	frame, err := l.deps.Capturer.Capture(ctx, l.settings.Quality)
	if l.deps.Metrics != nil {
		l.deps.Metrics.RecordCapture(ctx, time.Since(start), err == nil && frame != nil)
	}
	if err != nil {
		if (ctx.Err() != nil && errors.Is(err, ctx.Err())) || errors.Is(err, ErrCaptureFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if frame == nil {
		return ErrCaptureFailed
	}
	defer frame.Close()

	l.setState(StateProcessing)
	l.deps.Display.SetStatus(StatusProcessing)

	start = time.Now()
	detections, err := l.deps.Detector.Detect(frame, l.settings.Thresholds)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.RecordInference(ctx, time.Since(start), detections)
	}

	annotated, err := l.deps.Renderer.Annotate(frame, detections, l.settings.OutputSize)
	if err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}
	defer annotated.Close()

	jpeg, err := l.deps.Renderer.Encode(annotated)
	if err != nil {
		// The widget keeps showing the previous frame.
		jpeg = nil
		l.deps.Logger.Warning("Frame %d not displayed, encode failed: %v", index, err)
		if l.deps.Metrics != nil {
			l.deps.Metrics.RecordEncodeFailure(ctx)
		}
	} else {
		l.deps.Display.SetImage(jpeg)
	}

	if l.deps.Recorder != nil {
		l.deps.Recorder.RecordFrame(index, detections, jpeg)
	}

	l.setState(StateDisplaying)
	l.deps.Display.SetStatus(StatusDisplaying)
	l.frames.Add(1)
	return nil
}

// pause waits the fixed delay between iterations.
func (l *Loop) pause(ctx context.Context) {
	timer := time.NewTimer(l.settings.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
