package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"livedetect/internal/config"
	"livedetect/internal/dto"
	"livedetect/internal/logger"
	"livedetect/internal/model"
	"livedetect/internal/repository/sqlite"
)

type memoryDetections struct {
	mu   sync.Mutex
	rows []model.Detection
	err  error
}

func (m *memoryDetections) InsertBatch(detections []model.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, detections...)
	return nil
}

func (m *memoryDetections) GetBySessionID(sessionID string) ([]model.Detection, error) {
	return nil, nil
}

func (m *memoryDetections) GetLabelsBySessionID(sessionID string) ([]string, error) {
	return nil, nil
}

func (m *memoryDetections) GetAllLabels() ([]string, error) {
	return nil, nil
}

func testConfig(t *testing.T, limit int) *config.Config {
	t.Helper()
	return &config.Config{
		SnapshotDir:   t.TempDir(),
		SnapshotLimit: limit,
		FlushInterval: 30,
	}
}

func newTestRecorder(t *testing.T, limit int, repo *memoryDetections) *RecorderService {
	t.Helper()
	recorder := NewRecorderService(testConfig(t, limit), logger.NewDiscard(), repo)
	recorder.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	recorder.Begin("session-1")
	return recorder
}

func TestRecordFrameSkipsEmptyFrames(t *testing.T) {
	recorder := newTestRecorder(t, 10, &memoryDetections{})

	recorder.RecordFrame(0, nil, []byte("jpeg"))
	recorder.RecordFrame(1, []dto.DetectionResult{}, []byte("jpeg"))

	if recorder.Pending() != 0 {
		t.Errorf("frames without detections should not be buffered, got %d", recorder.Pending())
	}
}

func TestRecordFrameOutsideSession(t *testing.T) {
	recorder := NewRecorderService(testConfig(t, 10), logger.NewDiscard(), nil)

	recorder.RecordFrame(0, []dto.DetectionResult{{Label: "cat"}}, []byte("jpeg"))

	if recorder.Pending() != 0 {
		t.Error("frame without a session should be ignored")
	}
}

func TestFlushWritesSnapshotsAndDetections(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 10, repo)

	recorder.RecordFrame(3, []dto.DetectionResult{
		{Label: "person", Confidence: 0.9, X: 1, Y: 2, Width: 3, Height: 4},
		{Label: "traffic light", Confidence: 0.6},
	}, []byte("jpeg-3"))

	if n := recorder.Flush(); n != 1 {
		t.Fatalf("expected 1 flushed frame, got %d", n)
	}
	if recorder.Pending() != 0 {
		t.Error("buffer should be empty after flush")
	}

	if len(repo.rows) != 2 {
		t.Fatalf("expected 2 detection rows, got %d", len(repo.rows))
	}
	row := repo.rows[0]
	if row.SessionID != "session-1" || row.FrameIndex != 3 || row.Label != "person" || row.Width != 3 {
		t.Errorf("unexpected row %+v", row)
	}

	want := "session-1/2026-03-14_09-26_53.000_00003_person_traffic-light.jpg"
	if row.Snapshot != want {
		t.Errorf("expected snapshot %q, got %q", want, row.Snapshot)
	}

	data, err := os.ReadFile(filepath.Join(recorder.snapshotDir, filepath.FromSlash(row.Snapshot)))
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if string(data) != "jpeg-3" {
		t.Errorf("unexpected snapshot content %q", data)
	}
}

func TestFlushCrowdedFrameKeepsSnapshot(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 10, repo)

	detections := make([]dto.DetectionResult, 0, 46)
	for i := 0; i < 40; i++ {
		detections = append(detections, dto.DetectionResult{Label: "person", Confidence: 0.8})
	}
	for _, label := range []string{"dog", "cat", "traffic light", "cell phone", "bicycle", "car"} {
		detections = append(detections, dto.DetectionResult{Label: label, Confidence: 0.7})
	}
	recorder.RecordFrame(7, detections, []byte("crowded"))
	recorder.Flush()

	if len(repo.rows) != len(detections) {
		t.Fatalf("expected %d detection rows, got %d", len(detections), len(repo.rows))
	}
	want := "session-1/2026-03-14_09-26_53.000_00007_person_dog_cat_traffic-light_cell-phone.jpg"
	for _, row := range repo.rows {
		if row.Snapshot != want {
			t.Fatalf("expected snapshot %q, got %q", want, row.Snapshot)
		}
	}
	if _, err := os.Stat(filepath.Join(recorder.snapshotDir, filepath.FromSlash(want))); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
}

func TestSnapshotLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"single", []string{"person"}, "person"},
		{"duplicates", []string{"person", "person", "dog", "person"}, "person_dog"},
		{"spaces", []string{"traffic light"}, "traffic-light"},
		{"separators", []string{"a/b", "c_d"}, "a-b_c-d"},
		{"capped", []string{"a", "b", "c", "d", "e", "f", "g"}, "a_b_c_d_e"},
		{"truncated", []string{strings.Repeat("x", 300)}, strings.Repeat("x", maxSnapshotLabelLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections := make([]dto.DetectionResult, 0, len(tt.labels))
			for _, label := range tt.labels {
				detections = append(detections, dto.DetectionResult{Label: label})
			}
			if got := snapshotLabels(detections); got != tt.want {
				t.Errorf("snapshotLabels(%v) = %q, want %q", tt.labels, got, tt.want)
			}
		})
	}
}

func TestSnapshotLimitPerFlush(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 2, repo)

	for i := 0; i < 4; i++ {
		recorder.RecordFrame(i, []dto.DetectionResult{{Label: "dog"}}, []byte("jpeg"))
	}
	recorder.Flush()

	withSnapshot := 0
	for _, row := range repo.rows {
		if row.Snapshot != "" {
			withSnapshot++
		}
	}
	if len(repo.rows) != 4 {
		t.Errorf("every detection should be stored, got %d", len(repo.rows))
	}
	if withSnapshot != 2 {
		t.Errorf("expected 2 snapshots, got %d", withSnapshot)
	}

	// The limit resets after a flush.
	recorder.RecordFrame(10, []dto.DetectionResult{{Label: "dog"}}, []byte("jpeg"))
	recorder.Flush()
	if last := repo.rows[len(repo.rows)-1]; last.Snapshot == "" {
		t.Error("snapshot limit should reset after flush")
	}
}

func TestFlushWithoutJPEG(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 10, repo)

	recorder.RecordFrame(0, []dto.DetectionResult{{Label: "cup"}}, nil)
	recorder.Flush()

	if len(repo.rows) != 1 || repo.rows[0].Snapshot != "" {
		t.Errorf("expected one row without snapshot, got %+v", repo.rows)
	}
	entries, _ := os.ReadDir(recorder.snapshotDir)
	if len(entries) != 0 {
		t.Errorf("no files expected, found %d", len(entries))
	}
}

func TestFlushEmptyBuffer(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 10, repo)

	if n := recorder.Flush(); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if len(repo.rows) != 0 {
		t.Error("nothing should be inserted")
	}
}

func TestFlushRepositoryErrorClearsBuffer(t *testing.T) {
	repo := &memoryDetections{err: errors.New("disk full")}
	recorder := newTestRecorder(t, 10, repo)

	recorder.RecordFrame(0, []dto.DetectionResult{{Label: "cup"}}, nil)
	recorder.Flush()

	if recorder.Pending() != 0 {
		t.Error("buffer should be cleared even when the insert fails")
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	repo := &memoryDetections{}
	recorder := newTestRecorder(t, 10, repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(done)
	}()

	recorder.RecordFrame(0, []dto.DetectionResult{{Label: "bird"}}, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(repo.rows) != 1 {
		t.Errorf("expected final flush, got %d rows", len(repo.rows))
	}
}

func TestRecorderWithSQLite(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	sessions := sqlite.NewSessionRepository(db)
	detections := sqlite.NewDetectionRepository(db)
	if err := sessions.Insert(&model.Session{ID: "run-1", StartedAt: time.Now(), State: "Capturing"}); err != nil {
		t.Fatalf("Insert session failed: %v", err)
	}

	recorder := NewRecorderService(testConfig(t, 10), logger.NewDiscard(), detections)
	recorder.Begin("run-1")
	recorder.RecordFrame(0, []dto.DetectionResult{{Label: "person", Confidence: 0.8}}, []byte("jpeg"))
	recorder.RecordFrame(1, []dto.DetectionResult{{Label: "car", Confidence: 0.7}}, nil)
	recorder.Flush()

	stored, err := detections.GetBySessionID("run-1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored detections, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Snapshot, "run-1/") {
		t.Errorf("unexpected snapshot path %q", stored[0].Snapshot)
	}
}
