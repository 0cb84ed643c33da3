package model

import "time"

// Session represents one run of the detection loop.
type Session struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	State      string    `json:"state"`
	Frames     int       `json:"frames"`
	Error      string    `json:"error"`
}

// SessionStats contains aggregate numbers over all stored sessions.
type SessionStats struct {
	TotalSessions   int            `json:"total_sessions"`
	TotalFrames     int            `json:"total_frames"`
	TotalDetections int            `json:"total_detections"`
	PerState        map[string]int `json:"per_state"`
	LabelCounts     map[string]int `json:"label_counts"`
}
