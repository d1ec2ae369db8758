// Package state implements the attendance state machine transition math.
// Everything here is pure; row locking and persistence belong to the callers
package state

import "time"

// State is the open state of an attendance record
type State string

// Attendance states. None means not checked in (or already checked out)
const (
	Working State = "WORKING"
	Idle    State = "IDLE"
	Lunch   State = "LUNCH"
	None    State = ""
)

// Valid reports whether s is one of the three open states
func Valid(s State) bool { return s == Working || s == Idle || s == Lunch }

// Counter names one of the three accumulators on an attendance record.
// Values double as the column names so repos can target them directly
type Counter string

// Counter columns
const (
	CounterActive Counter = "active_seconds"
	CounterIdle   Counter = "idle_seconds"
	CounterLunch  Counter = "lunch_seconds"
)

// CounterFor maps a state to the counter its elapsed time is credited to.
// Unknown states fall back to idle; callers should log the anomaly
func CounterFor(s State) Counter {
	switch s {
	case Working:
		return CounterActive
	case Lunch:
		return CounterLunch
	default:
		return CounterIdle
	}
}

// Snapshot is the minimal view of a record the transition math needs.
// LastChangeAt is zero iff CurrentState is None
type Snapshot struct {
	CurrentState State
	LastChangeAt time.Time
}

// Credit is the outcome of a transition: seconds owed to a counter plus the
// new open state and its change timestamp. None as NewState means finalised
type Credit struct {
	Counter  Counter
	Seconds  int64
	NewState State
	At       time.Time
}

// Transition computes the credit for moving snap to next at the given instant.
// ok=false means the transition must be dropped because at precedes the last
// change; the caller keeps the record unchanged and logs the skew.
// A snapshot with no open state initialises: zero credit, new state stamped
func Transition(snap Snapshot, next State, at time.Time) (Credit, bool) {
	if snap.CurrentState == None {
		return Credit{Counter: CounterFor(next), Seconds: 0, NewState: next, At: at}, true
	}
	delta := at.Sub(snap.LastChangeAt)
	if delta < 0 {
		return Credit{}, false
	}
	return Credit{
		Counter:  CounterFor(snap.CurrentState),
		Seconds:  int64(delta / time.Second),
		NewState: next,
		At:       at,
	}, true
}

// Finalize credits the open state like a transition and clears it.
// Used by check-out and every reconciler close path
func Finalize(snap Snapshot, at time.Time) (Credit, bool) {
	c, ok := Transition(snap, None, at)
	if !ok {
		return Credit{}, false
	}
	c.NewState = None
	return c, true
}

// CurrentDurationAt returns the open state's accrued-but-uncommitted duration
// for live reads. Never negative, never mutates
func CurrentDurationAt(snap Snapshot, now time.Time) time.Duration {
	if snap.CurrentState == None {
		return 0
	}
	d := now.Sub(snap.LastChangeAt)
	if d < 0 {
		return 0
	}
	return d
}

// Clamp trims active+idle down to budget seconds, removing the excess from
// idle first and then from active, never below zero. Idempotent
func Clamp(active, idle, budget int64) (clampedActive, clampedIdle int64) {
	if budget < 0 {
		budget = 0
	}
	excess := active + idle - budget
	if excess <= 0 {
		return active, idle
	}
	if idle >= excess {
		return active, idle - excess
	}
	excess -= idle
	active -= excess
	if active < 0 {
		active = 0
	}
	return active, 0
}
