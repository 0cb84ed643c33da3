package dto

import "time"

// BufferedFrame holds one processed frame before it is flushed to disk and database.
type BufferedFrame struct {
	SessionID  string
	FrameIndex int
	CapturedAt time.Time
	Detections []DetectionResult
	Data       []byte // Annotated JPEG, nil when no snapshot is kept
}
