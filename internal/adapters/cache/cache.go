// Package cache provides the advisory per-user activity cache.
// The store stays the single source of truth: every read here may miss and
// every write may fail without affecting attendance accounting
package cache

import (
	"context"
	"time"

	"timeclock/internal/core/state"
)

// DefaultTTL is how long activity keys live without a refresh
const DefaultTTL = 24 * time.Hour

// LastActivity is the hot-path view the heartbeat processor and gap
// detector share: when did we last see input, and when a heartbeat at all
type LastActivity struct {
	LastInputTs     time.Time `json:"last_input_ts"`
	LastHeartbeatTs time.Time `json:"last_heartbeat_ts"`
}

// Activity is the advisory cache port. Implementations swallow backend
// errors; absence always means "unknown", never "no"
type Activity interface {
	// LastActivity returns the cached input/heartbeat timestamps, ok=false on miss
	LastActivity(ctx context.Context, userID string) (LastActivity, bool)

	// SetLastActivity stores the timestamps, best effort
	SetLastActivity(ctx context.Context, userID string, v LastActivity)

	// State returns the cached current state mirror, ok=false on miss
	State(ctx context.Context, userID string) (state.State, bool)

	// SetState mirrors the current state, best effort
	SetState(ctx context.Context, userID string, s state.State)

	// SetAttendance stores an attendance snapshot for fast status reads, best effort
	SetAttendance(ctx context.Context, userID string, snapshot any)

	// Clear drops every key for the user, best effort. Called on check-out
	Clear(ctx context.Context, userID string)
}

func keyAttendance(userID string) string { return "user:" + userID + ":attendance" }
func keyActivity(userID string) string   { return "user:" + userID + ":last_activity" }
func keyState(userID string) string      { return "user:" + userID + ":current_state" }
