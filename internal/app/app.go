package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/observe"
	"livedetect/internal/repository"
	"livedetect/internal/repository/sqlite"
	"livedetect/internal/route"
	"livedetect/internal/service/ai"
	"livedetect/internal/service/pipeline"
	"livedetect/internal/service/storage"
	"livedetect/internal/service/webcam"
	"livedetect/internal/service/websocket"
	"livedetect/internal/service/widget"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrModelLoad matches every ModelLoadError.
var ErrModelLoad = errors.New("error loading model")

// ModelLoadError reports why the detection model could not be loaded.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return ErrModelLoad.Error() + ": " + e.Err.Error()
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelLoad
}

// ModelHint is printed after a model load failure.
const ModelHint = "Please ensure MODEL_PATH points to a YOLOv8n ONNX export and that OpenCV is installed."

type detector interface {
	pipeline.Detector
	Close() error
}

// components are the parts NewApp builds that tests replace.
type components struct {
	loadDetector func(cfg *config.Config, logger *logger.Logger) (detector, error)
	renderer     pipeline.Renderer
	newCapturer  func(camera *webcam.BrowserCamera) pipeline.Capturer
	meter        metric.MeterProvider
}

func defaultComponents() components {
	return components{
		loadDetector: func(cfg *config.Config, logger *logger.Logger) (detector, error) {
			d, err := ai.NewDetector(ai.DefaultDetectorConfig(cfg.ModelPath), logger)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		renderer: ai.NewRenderer(),
		newCapturer: func(camera *webcam.BrowserCamera) pipeline.Capturer {
			return ai.NewWebcamSource(camera)
		},
		meter: otel.GetMeterProvider(),
	}
}

type App struct {
	config   *config.Config
	logger   *logger.Logger
	out      io.Writer
	detector detector
	db       *sqlite.DB
	sessions repository.SessionRepository
	hub      *websocket.HubService
	widgets  *widget.Widgets
	camera   *webcam.BrowserCamera
	recorder *storage.RecorderService
	loop     *pipeline.Loop
	server   *http.Server
	listener net.Listener

	activeSession atomic.Value // string
}

// NewApp loads the model first; when that fails nothing else is created
// and the returned error is a *ModelLoadError. Console messages go to out.
// Loop and HTTP metrics are recorded on meter, or on the global provider when nil.
func NewApp(cfg *config.Config, logger *logger.Logger, out io.Writer, meter metric.MeterProvider) (*App, error) {
	comps := defaultComponents()
	if meter != nil {
		comps.meter = meter
	}
	return newApp(cfg, logger, out, comps)
}

func newApp(cfg *config.Config, logger *logger.Logger, out io.Writer, comps components) (*App, error) {
	fmt.Fprintln(out, "Loading YOLOv8n model...")
	det, err := comps.loadDetector(cfg, logger)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	sessions := sqlite.NewSessionRepository(db)
	detections := sqlite.NewDetectionRepository(db)

	hub := websocket.NewHubService(logger)
	widgets := widget.New(hub, logger)
	camera := webcam.NewBrowserCamera(hub, logger)
	recorder := storage.NewRecorderService(cfg, logger, detections)

	var metrics *observe.Metrics
	if comps.meter != nil {
		if metrics, err = observe.NewMetrics(comps.meter); err != nil {
			logger.Warning("Metrics disabled: %v", err)
			metrics = nil
		}
	}

	deps := pipeline.Deps{
		Capturer: comps.newCapturer(camera),
		Detector: det,
		Renderer: comps.renderer,
		Display:  widgets,
		Recorder: recorder,
		Logger:   logger,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	loop, err := pipeline.New(deps, pipeline.DefaultSettings())
	if err != nil {
		det.Close()
		db.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		det.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}

	a := &App{
		config:   cfg,
		logger:   logger,
		out:      out,
		detector: det,
		db:       db,
		sessions: sessions,
		hub:      hub,
		widgets:  widgets,
		camera:   camera,
		recorder: recorder,
		loop:     loop,
		listener: listener,
	}

	hub.OnConnect(a.greetViewer)
	a.server = &http.Server{
		Handler: route.SetupRoutes(cfg, logger, route.Deps{
			Hub:        hub,
			Events:     a,
			Sessions:   sessions,
			Detections: detections,
			Active:     a,
			Metrics:    metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Addr returns the address the HTTP server listens on.
func (a *App) Addr() net.Addr {
	return a.listener.Addr()
}

// ActiveSessionID returns the id of the session being recorded, or "".
func (a *App) ActiveSessionID() string {
	id, _ := a.activeSession.Load().(string)
	return id
}

// PressStop handles the stop button of any viewer.
func (a *App) PressStop() {
	a.widgets.PressStop(a.loop)
}

// DeliverFrame hands a viewer's photo to the camera.
func (a *App) DeliverFrame(msg dto.ViewMessage) {
	a.camera.Deliver(msg)
}

// greetViewer brings a new viewer up to date and asks it for the pending photo, if any.
func (a *App) greetViewer(client *websocket.Client) {
	for _, msg := range a.widgets.Snapshot() {
		client.Send(msg)
	}
	if req := a.camera.PendingRequest(); req != nil {
		client.Send(req)
	}
}

// Run serves the viewer page, runs the detection loop once the first viewer
// connects, then releases everything. Cancelling ctx acts as the stop button.
func (a *App) Run(ctx context.Context) pipeline.Outcome {
	services, stopServices := context.WithCancel(context.Background())
	defer stopServices()

	go a.hub.Run(services)

	recorderDone := make(chan struct{})
	go func() {
		a.recorder.Run(services)
		close(recorderDone)
	}()

	go func() {
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped: %v", err)
		}
	}()

	port := a.config.Port
	if tcp, ok := a.listener.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	fmt.Fprintf(a.out, "📍 URL: http://localhost:%d\n", port)
	fmt.Fprintln(a.out, "Webcam is ready. Click the 'STOP Detection' button to end the feed.")

	var outcome pipeline.Outcome
	if err := a.hub.WaitForViewer(ctx); err != nil {
		a.logger.Info("Shutting down before any viewer connected")
		outcome = pipeline.Outcome{State: pipeline.StateStopped}
	} else {
		outcome = a.runSession(ctx)
	}

	a.report(outcome)

	fmt.Fprintln(a.out, "Releasing resources...")
	a.linger(ctx)
	stopServices()
	<-recorderDone
	a.shutdown()
	fmt.Fprintln(a.out, "Cleanup complete.")

	return outcome
}

// runSession records one loop run in the history database.
func (a *App) runSession(ctx context.Context) pipeline.Outcome {
	session := &model.Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		State:     pipeline.StateCapturing.String(),
	}
	recorded := true
	if err := a.sessions.Insert(session); err != nil {
		a.logger.Error("Session will not be recorded: %v", err)
		recorded = false
	} else {
		a.recorder.Begin(session.ID)
		a.activeSession.Store(session.ID)
		defer a.activeSession.Store("")
	}

	a.logger.Info("Detection session %s started", session.ID)
	outcome := a.loop.Run(ctx)
	a.logger.Info("Detection session %s ended: %s after %d frame(s)", session.ID, outcome.State, outcome.Frames)

	if !recorded {
		return outcome
	}

	a.recorder.Flush()
	session.FinishedAt = time.Now()
	session.State = outcome.State.String()
	session.Frames = outcome.Frames
	if outcome.Err != nil {
		session.Error = outcome.Err.Error()
	}
	if err := a.sessions.Finish(session); err != nil {
		a.logger.Error("Failed to finish session %s: %v", session.ID, err)
	}
	return outcome
}

func (a *App) report(outcome pipeline.Outcome) {
	if outcome.Err == nil || errors.Is(outcome.Err, pipeline.ErrCaptureFailed) {
		fmt.Fprintln(a.out, "Application closed.")
		return
	}
	fmt.Fprintf(a.out, "An unexpected error occurred during detection: %v\n", outcome.Err)
}

// linger keeps the final widget state on screen for the configured grace period.
func (a *App) linger(ctx context.Context) {
	if a.config.ShutdownGrace <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(a.config.ShutdownGrace) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("HTTP server shutdown: %v", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Closing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Closing database: %v", err)
	}
}
