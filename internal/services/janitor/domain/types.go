// Package domain defines the reconciler contracts
package domain

import (
	"context"
	"time"

	"timeclock/internal/core/state"
)

// BreakCandidate is an open lunch break flagged by the stale-break scan.
// Advisory only: the closer re-fetches everything under the row lock
type BreakCandidate struct {
	BreakID        string
	RecordID       string
	UserID         string
	BreakStartTime time.Time
}

// RecordCandidate is an attendance record flagged by a reconciler scan
type RecordCandidate struct {
	RecordID     string
	UserID       string
	Date         time.Time
	CurrentState state.State
}

// ReconcilerPort is the scheduled face of the janitor. Every method iterates
// its candidates with one transaction per record; a failing record is logged
// and the batch continues
type ReconcilerPort interface {
	// CloseExcessiveBreaks caps open lunch breaks at the break cap and
	// checks the owning record out at the capped end
	CloseExcessiveBreaks(ctx context.Context) error

	// CloseExcessiveIdle checks out records idle past the idle cap,
	// stamping check-out at last_state_change_at + cap
	CloseExcessiveIdle(ctx context.Context) error

	// DetectGaps compares cached lastHeartbeatTs against now for every
	// checked-in record: long silence checks the user out, shorter silence
	// demotes WORKING to IDLE
	DetectGaps(ctx context.Context) error

	// CloseDay finalises every still-open record for today at end of day
	CloseDay(ctx context.Context) error

	// Backfill runs the end-of-day close over records from previous days
	// left open across a restart, each at its own end of day
	Backfill(ctx context.Context) error

	// CreateDaily inserts one empty attendance row per active user for today
	CreateDaily(ctx context.Context) error
}
