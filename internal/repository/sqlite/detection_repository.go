package sqlite

import (
	"fmt"

	"livedetect/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// InsertBatch adds multiple detections in a single transaction.
func (r *DetectionRepository) InsertBatch(detections []model.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (session_id, frame_index, label, x, y, width, height, confidence, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, det := range detections {
		if _, err := stmt.Exec(det.SessionID, det.FrameIndex, det.Label, det.X, det.Y, det.Width, det.Height, det.Confidence, det.Snapshot); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// GetBySessionID retrieves all detections of a session in frame order.
func (r *DetectionRepository) GetBySessionID(sessionID string) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, session_id, frame_index, label, x, y, width, height, confidence, snapshot
		FROM detections WHERE session_id = ?
		ORDER BY frame_index, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []model.Detection
	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.ID, &det.SessionID, &det.FrameIndex, &det.Label, &det.X, &det.Y,
			&det.Width, &det.Height, &det.Confidence, &det.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}

	return detections, rows.Err()
}

// GetLabelsBySessionID returns the distinct labels seen in a session.
func (r *DetectionRepository) GetLabelsBySessionID(sessionID string) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.queryLabels(`SELECT DISTINCT label FROM detections WHERE session_id = ? ORDER BY label`, sessionID)
}

// GetAllLabels returns a list of all unique detected labels.
func (r *DetectionRepository) GetAllLabels() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.queryLabels(`SELECT DISTINCT label FROM detections ORDER BY label`)
}

func (r *DetectionRepository) queryLabels(query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}
