package dto

// Message types exchanged with the viewer page over /api/view.
const (
	MessageStatus  = "status"  // server -> page: status label
	MessageImage   = "image"   // server -> page: annotated JPEG
	MessageButton  = "button"  // server -> page: stop button state
	MessageCapture = "capture" // server -> page: take one photo
	MessageFrame   = "frame"   // page -> server: photo or capture error
	MessageStop    = "stop"    // page -> server: stop button clicked
)

// ViewMessage is the JSON envelope used in both directions.
type ViewMessage struct {
	Type     string  `json:"type"`
	ID       uint64  `json:"id,omitempty"`
	Quality  float64 `json:"quality,omitempty"`
	Text     string  `json:"text,omitempty"`
	Color    string  `json:"color,omitempty"`
	Data     string  `json:"data,omitempty"`
	Label    string  `json:"label,omitempty"`
	Disabled bool    `json:"disabled,omitempty"`
	Error    string  `json:"error,omitempty"`
}
