// Package domain defines the types and contracts of the heartbeat pipeline
package domain

import (
	"context"
	"time"

	"timeclock/internal/core/state"
)

// Sample is a single agent heartbeat payload. Mouse moves keep the agent
// "alive" but are explicitly not input for idle classification
type Sample struct {
	ActiveWindow      string
	ActiveApplication string
	URL               string
	MouseClicks       int
	KeyboardStrokes   int
	MouseMoves        int
	IsActive          bool
	IdleTimeSeconds   int
}

// HasInput is the authoritative "user produced input" signal
func (s Sample) HasInput() bool { return s.MouseClicks+s.KeyboardStrokes > 0 }

// InputSample is the persisted telemetry row. Raw metrics only, never
// authoritative for state
type InputSample struct {
	ID                 string
	AttendanceRecordID string
	UserID             string
	Timestamp          time.Time
	ActiveWindow       string
	ActiveApplication  string
	URL                string
	MouseClicks        int
	KeyboardStrokes    int
	MouseMoves         int
	IsActive           bool
	IdleTimeSeconds    int
}

// Status is the heartbeat outcome
type Status string

// Heartbeat outcomes
const (
	StatusOK             Status = "ok"
	StatusAutoCheckedOut Status = "auto_checked_out"
)

// Result is returned to the agent after a processed heartbeat
type Result struct {
	Status       Status
	CurrentState state.State
}

// IngestPort consumes agent heartbeats
type IngestPort interface {
	Heartbeat(ctx context.Context, userID string, s Sample) (Result, error)
}
