package dto

import (
	"encoding/json"
	"time"
)

// SessionInfo summarizes one detection run for the history API.
type SessionInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	State      string    `json:"state"`
	Frames     int       `json:"frames"`
	Error      string    `json:"error,omitempty"`
	Labels     []string  `json:"labels"`
}

// MarshalJSON formats timestamps the way the page displays them.
func (s SessionInfo) MarshalJSON() ([]byte, error) {
	type Alias SessionInfo
	finished := ""
	if !s.FinishedAt.IsZero() {
		finished = s.FinishedAt.Format("02-01-2006 15:04:05")
	}
	return json.Marshal(&struct {
		StartedAt  string `json:"startedAt"`
		FinishedAt string `json:"finishedAt"`
		Alias
	}{
		StartedAt:  s.StartedAt.Format("02-01-2006 15:04:05"),
		FinishedAt: finished,
		Alias:      (Alias)(s),
	})
}
