// SessionsData is a paginated response payload for the session history.
package dto

type SessionsData struct {
	Sessions    []SessionInfo `json:"sessions"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}
