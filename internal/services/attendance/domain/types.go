// Package domain defines the types and contracts of the attendance service
package domain

import (
	"time"

	"timeclock/internal/core/state"
)

// AttendanceRecord is the per-user-per-day container for state counters and
// bookkeeping. The three *Seconds counters are authoritative; audit segments
// are never summed to produce totals
type AttendanceRecord struct {
	ID     string
	UserID string
	// Date is the workday: the calendar date in server timezone, at midnight UTC
	Date time.Time

	CheckInTime  *time.Time
	CheckOutTime *time.Time

	CurrentState      state.State
	LastStateChangeAt *time.Time

	ActiveSeconds int64
	IdleSeconds   int64
	LunchSeconds  int64

	// Legacy mirror totals, written at finalisation and cleared on re-check-in
	TotalWorkDuration   int64
	TotalActiveDuration int64
	TotalIdleDuration   int64
	TotalBreakDuration  int64

	CheckInIP        string
	CheckOutIP       string
	CheckInLocation  string
	CheckOutLocation string
	Notes            string
}

// Snapshot converts the record into the state engine's view
func (r AttendanceRecord) Snapshot() state.Snapshot {
	s := state.Snapshot{CurrentState: r.CurrentState}
	if r.LastStateChangeAt != nil {
		s.LastChangeAt = *r.LastStateChangeAt
	}
	return s
}

// CheckedIn reports whether the record is currently open for accrual
func (r AttendanceRecord) CheckedIn() bool {
	return r.CheckInTime != nil && r.CheckOutTime == nil
}

// Totals is the legacy mirror written at finalisation
type Totals struct {
	Work   int64
	Active int64
	Idle   int64
	Break  int64
}

// MirrorTotals derives the legacy mirror from the counters
func MirrorTotals(active, idle, lunch int64) Totals {
	return Totals{Work: active + idle, Active: active, Idle: idle, Break: lunch}
}

// LunchBreak is the audit row for an explicit break. At most one open
// (BreakEndTime = nil) break exists per attendance record
type LunchBreak struct {
	ID                 string
	AttendanceRecordID string
	UserID             string
	BreakStartTime     time.Time
	BreakEndTime       *time.Time
	DurationSeconds    int64
	StartLocation      string
	EndLocation        string
}

// SegmentType classifies audit segments
type SegmentType string

// Audit segment types, mirroring the three states
const (
	SegmentActive SegmentType = "active"
	SegmentIdle   SegmentType = "idle"
	SegmentLunch  SegmentType = "lunch_break"
)

// SegmentFor maps a state to its audit segment type
func SegmentFor(s state.State) SegmentType {
	switch s {
	case state.Working:
		return SegmentActive
	case state.Lunch:
		return SegmentLunch
	default:
		return SegmentIdle
	}
}

// ActivitySegment is an open/close audit trail entry. One segment is open at
// a time per record; segments are UI/audit only
type ActivitySegment struct {
	ID                 string
	AttendanceRecordID string
	Type               SegmentType
	StartedAt          time.Time
	EndedAt            *time.Time
	DurationSeconds    int64
}

// CheckInInput is the check-in command payload
type CheckInInput struct {
	UserID   string
	At       *time.Time // defaults to now
	IP       string
	Location string
}

// CheckOutInput is the check-out command payload
type CheckOutInput struct {
	UserID   string
	At       *time.Time // defaults to now
	IP       string
	Location string
	Reason   string
}

// BreakInput is the start/end break command payload
type BreakInput struct {
	UserID   string
	At       *time.Time // defaults to now
	Location string
}

// HistoryInput bounds a history query. Zero Since/Until mean open-ended
type HistoryInput struct {
	UserID string
	Since  time.Time
	Until  time.Time
}

// LiveDurations are the accrued figures for today including the open state's
// uncommitted time. Read-only; nothing is persisted to produce them
type LiveDurations struct {
	ActiveSeconds  int64
	IdleSeconds    int64
	BreakSeconds   int64
	TrackedSeconds int64
}

// TodayView is the live status read for a user
type TodayView struct {
	Record AttendanceRecord
	Live   LiveDurations
}
