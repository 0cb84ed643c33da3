package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"livedetect/internal/dto"
	"livedetect/internal/model"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert adds a session record when the loop starts.
func (r *SessionRepository) Insert(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO sessions (id, started_at, state, frames, error)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.StartedAt, s.State, s.Frames, s.Error)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Finish stores the terminal state of a session.
func (r *SessionRepository) Finish(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE sessions SET finished_at = ?, state = ?, frames = ?, error = ?
		WHERE id = ?
	`, s.FinishedAt, s.State, s.Frames, s.Error, s.ID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", s.ID)
	}
	return nil
}

// GetByID retrieves a session by its ID. Returns nil when absent.
func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, started_at, finished_at, state, frames, error
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetAll retrieves sessions, newest first, based on filter criteria.
func (r *SessionRepository) GetAll(filter *dto.SessionFilters) ([]model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildSessionFilter(filter)
	query := `
		SELECT DISTINCT s.id, s.started_at, s.finished_at, s.state, s.frames, s.error
		FROM sessions s
		LEFT JOIN detections d ON s.id = d.session_id
	` + where + " ORDER BY s.started_at DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	return sessions, rows.Err()
}

// GetTotalCount returns the number of sessions matching the filter.
func (r *SessionRepository) GetTotalCount(filter *dto.SessionFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildSessionFilter(filter)
	query := `
		SELECT COUNT(DISTINCT s.id)
		FROM sessions s
		LEFT JOIN detections d ON s.id = d.session_id
	` + where

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// GetStats aggregates totals per state and per detected label.
func (r *SessionRepository) GetStats() (*model.SessionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.SessionStats{
		PerState:    make(map[string]int),
		LabelCounts: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(frames), 0) FROM sessions
	`).Scan(&stats.TotalSessions, &stats.TotalFrames); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&stats.TotalDetections); err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}

	if err := r.countInto(`SELECT state, COUNT(*) FROM sessions GROUP BY state`, stats.PerState); err != nil {
		return nil, err
	}
	if err := r.countInto(`SELECT label, COUNT(*) FROM detections GROUP BY label`, stats.LabelCounts); err != nil {
		return nil, err
	}

	return stats, nil
}

// countInto runs a two-column (key, count) query and fills dst.
func (r *SessionRepository) countInto(query string, dst map[string]int) error {
	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan stats: %w", err)
		}
		dst[key] = count
	}
	return rows.Err()
}

// Delete removes a session; its detections are removed by cascade.
func (r *SessionRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAll removes every session and detection.
func (r *SessionRepository) DeleteAll() error {
	return r.DeleteAllExcept("")
}

// DeleteAllExcept removes every session and detection except those of keepID.
func (r *SessionRepository) DeleteAllExcept(keepID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE session_id != ?`, keepID); err != nil {
		return fmt.Errorf("failed to clear detections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id != ?`, keepID); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var finished sql.NullTime
	if err := row.Scan(&s.ID, &s.StartedAt, &finished, &s.State, &s.Frames, &s.Error); err != nil {
		return nil, err
	}
	if finished.Valid {
		s.FinishedAt = finished.Time
	}
	return &s, nil
}

func buildSessionFilter(filter *dto.SessionFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	var args []interface{}

	if filter.State != "" {
		clauses = append(clauses, "s.state = ?")
		args = append(args, filter.State)
	}

	if filter.Label != "" {
		clauses = append(clauses, "d.label = ?")
		args = append(args, filter.Label)
	}

	if !filter.DateAfter.IsZero() {
		clauses = append(clauses, "DATE(s.started_at) >= DATE(?)")
		args = append(args, filter.DateAfter.Format("2006-01-02"))
	}

	if !filter.DateBefore.IsZero() {
		clauses = append(clauses, "DATE(s.started_at) <= DATE(?)")
		args = append(args, filter.DateBefore.Format("2006-01-02"))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
