// Package audit defines the station audit-log entity.
package audit

import "time"

// Log is one recorded administrative/governance action.
type Log struct {
	ID           int64
	StationID    int64
	ActorUserID  int64
	Action       string
	TargetUserID *int64
	Details      map[string]any
	CreatedAt    time.Time
}
