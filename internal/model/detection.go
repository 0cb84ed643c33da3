package model

// Detection represents a detected object in one frame of a session.
type Detection struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id"`
	FrameIndex int     `json:"frame_index"`
	Label      string  `json:"label"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	Snapshot   string  `json:"snapshot"` // File name under the snapshot directory, may be empty
}
