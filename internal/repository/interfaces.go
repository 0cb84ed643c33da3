package repository

import (
	"livedetect/internal/dto"
	"livedetect/internal/model"
)

// SessionRepository defines the interface for detection-run records.
type SessionRepository interface {
	// Create operations
	Insert(s *model.Session) error

	// Update operations
	Finish(s *model.Session) error

	// Read operations
	GetByID(id string) (*model.Session, error)
	GetAll(filter *dto.SessionFilters) ([]model.Session, error)
	GetTotalCount(filter *dto.SessionFilters) (int, error)
	GetStats() (*model.SessionStats, error)

	// Delete operations
	Delete(id string) error
	DeleteAll() error
	DeleteAllExcept(keepID string) error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetBySessionID(sessionID string) ([]model.Detection, error)
	GetLabelsBySessionID(sessionID string) ([]string, error)
	GetAllLabels() ([]string, error)
}
