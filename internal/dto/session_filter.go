// SessionFilters describe user-provided filters to narrow the session list.
package dto

import "time"

type SessionFilters struct {
	State      string
	Label      string
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
