package http

import (
	"time"

	"timeclock/internal/services/attendance/domain"
)

type checkInReq struct {
	UserID   string `json:"user_id" validate:"required"`
	IP       string `json:"ip,omitempty"`
	Location string `json:"location,omitempty"`
}

type checkOutReq struct {
	UserID   string `json:"user_id" validate:"required"`
	IP       string `json:"ip,omitempty"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type breakReq struct {
	UserID   string `json:"user_id" validate:"required"`
	Location string `json:"location,omitempty"`
}

type recordDTO struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Date              string     `json:"date"`
	CheckInTime       *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime      *time.Time `json:"check_out_time,omitempty"`
	CurrentState      string     `json:"current_state,omitempty"`
	LastStateChangeAt *time.Time `json:"last_state_change_at,omitempty"`
	ActiveSeconds     int64      `json:"active_seconds"`
	IdleSeconds       int64      `json:"idle_seconds"`
	LunchSeconds      int64      `json:"lunch_seconds"`
	TotalWork         int64      `json:"total_work_duration"`
	TotalActive       int64      `json:"total_active_duration"`
	TotalIdle         int64      `json:"total_idle_duration"`
	TotalBreak        int64      `json:"total_break_duration"`
	Notes             string     `json:"notes,omitempty"`
}

type breakDTO struct {
	ID              string     `json:"id"`
	RecordID        string     `json:"attendance_record_id"`
	BreakStartTime  time.Time  `json:"break_start_time"`
	BreakEndTime    *time.Time `json:"break_end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

type todayDTO struct {
	Record recordDTO `json:"record"`
	Live   liveDTO   `json:"live"`
}

type liveDTO struct {
	ActiveSeconds  int64 `json:"active_seconds"`
	IdleSeconds    int64 `json:"idle_seconds"`
	BreakSeconds   int64 `json:"break_seconds"`
	TrackedSeconds int64 `json:"tracked_seconds"`
}

func toRecordDTO(r domain.AttendanceRecord) recordDTO {
	return recordDTO{
		ID:                r.ID,
		UserID:            r.UserID,
		Date:              r.Date.Format("2006-01-02"),
		CheckInTime:       r.CheckInTime,
		CheckOutTime:      r.CheckOutTime,
		CurrentState:      string(r.CurrentState),
		LastStateChangeAt: r.LastStateChangeAt,
		ActiveSeconds:     r.ActiveSeconds,
		IdleSeconds:       r.IdleSeconds,
		LunchSeconds:      r.LunchSeconds,
		TotalWork:         r.TotalWorkDuration,
		TotalActive:       r.TotalActiveDuration,
		TotalIdle:         r.TotalIdleDuration,
		TotalBreak:        r.TotalBreakDuration,
		Notes:             r.Notes,
	}
}

func toBreakDTO(b domain.LunchBreak) breakDTO {
	return breakDTO{
		ID:              b.ID,
		RecordID:        b.AttendanceRecordID,
		BreakStartTime:  b.BreakStartTime,
		BreakEndTime:    b.BreakEndTime,
		DurationSeconds: b.DurationSeconds,
	}
}
