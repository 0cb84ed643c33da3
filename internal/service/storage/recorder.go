package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository"
)

const (
	snapshotTimeFormat = "2006-01-02_15-04_05.000"

	// The label part of a snapshot name keeps the first few distinct labels
	// and stays well below the 255 byte file name limit.
	maxSnapshotLabels   = 5
	maxSnapshotLabelLen = 100
)

// RecorderService buffers processed frames in memory and periodically
// flushes their detections to the database and their snapshots to disk.
type RecorderService struct {
	snapshotDir   string
	snapshotLimit int
	interval      time.Duration
	sessionID     string
	frames        []dto.BufferedFrame
	snapshots     int
	mu            sync.Mutex
	logger        *logger.Logger
	detectionRepo repository.DetectionRepository
	now           func() time.Time
}

// NewRecorderService creates a recorder. detectionRepo may be nil, then only snapshots are written.
func NewRecorderService(config *config.Config, logger *logger.Logger, detectionRepo repository.DetectionRepository) *RecorderService {
	return &RecorderService{
		snapshotDir:   config.SnapshotDir,
		snapshotLimit: config.SnapshotLimit,
		interval:      time.Duration(config.FlushInterval) * time.Second,
		frames:        make([]dto.BufferedFrame, 0),
		logger:        logger,
		detectionRepo: detectionRepo,
		now:           time.Now,
	}
}

// Begin attributes every following frame to sessionID.
func (s *RecorderService) Begin(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

// Run flushes on every tick until ctx is cancelled, then flushes once more.
func (s *RecorderService) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		s.Flush()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// RecordFrame buffers a frame that has at least one detection. The JPEG is
// kept only while fewer than the snapshot limit are buffered.
func (s *RecorderService) RecordFrame(index int, detections []dto.DetectionResult, jpeg []byte) {
	if len(detections) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		s.logger.Warning("Frame %d recorded outside a session, ignoring", index)
		return
	}

	frame := dto.BufferedFrame{
		SessionID:  s.sessionID,
		FrameIndex: index,
		CapturedAt: s.now(),
		Detections: detections,
	}
	if len(jpeg) > 0 && s.snapshots < s.snapshotLimit {
		frame.Data = jpeg
		s.snapshots++
	}
	s.frames = append(s.frames, frame)
}

// Pending returns how many frames wait for the next flush.
func (s *RecorderService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Flush writes buffered snapshots to disk and detections to the database,
// then resets the buffer. It returns the number of frames flushed.
func (s *RecorderService) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return 0
	}

	var rows []model.Detection
	written := 0
	for _, frame := range s.frames {
		snapshot := ""
		if len(frame.Data) > 0 {
			name, err := s.writeSnapshot(frame)
			if err != nil {
				s.logger.Error("Error saving snapshot for frame %d: %v", frame.FrameIndex, err)
			} else {
				snapshot = name
				written++
			}
		}

		for _, det := range frame.Detections {
			rows = append(rows, model.Detection{
				SessionID:  frame.SessionID,
				FrameIndex: frame.FrameIndex,
				Label:      det.Label,
				X:          det.X,
				Y:          det.Y,
				Width:      det.Width,
				Height:     det.Height,
				Confidence: det.Confidence,
				Snapshot:   snapshot,
			})
		}
	}

	if s.detectionRepo != nil {
		if err := s.detectionRepo.InsertBatch(rows); err != nil {
			s.logger.Error("Error saving detections to database: %v", err)
		}
	}

	flushed := len(s.frames)
	s.logger.Info("Flushed %d frames (%d snapshots, %d detections)", flushed, written, len(rows))
	s.frames = s.frames[:0]
	s.snapshots = 0
	return flushed
}

// writeSnapshot stores the JPEG under <dir>/<session>/ and returns its path
// relative to the snapshot directory.
func (s *RecorderService) writeSnapshot(frame dto.BufferedFrame) (string, error) {
	dir := filepath.Join(s.snapshotDir, frame.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%05d_%s.jpg", frame.CapturedAt.Format(snapshotTimeFormat), frame.FrameIndex, snapshotLabels(frame.Detections))
	if err := os.WriteFile(filepath.Join(dir, filename), frame.Data, 0644); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join(frame.SessionID, filename)), nil
}

// snapshotLabels joins the distinct labels of a frame in detection order.
func snapshotLabels(detections []dto.DetectionResult) string {
	seen := make(map[string]bool)
	labels := make([]string, 0, maxSnapshotLabels)
	for _, det := range detections {
		label := strings.NewReplacer(" ", "-", "/", "-", "_", "-").Replace(det.Label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
		if len(labels) == maxSnapshotLabels {
			break
		}
	}

	joined := strings.Join(labels, "_")
	if len(joined) > maxSnapshotLabelLen {
		joined = joined[:maxSnapshotLabelLen]
	}
	return joined
}
