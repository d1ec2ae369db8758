// Package repo provides the attendance repository implementation
package repo

import (
	"context"
	"fmt"
	"time"

	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/store"
	"timeclock/internal/services/attendance/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage is the attendance repository. Mutations assume the caller already
// holds the row lock via GetForUpdate/GetByIDForUpdate in the same transaction
type Storage interface {
	GetForUpdate(ctx context.Context, userID string, date time.Time) (domain.AttendanceRecord, error)
	GetByIDForUpdate(ctx context.Context, id string) (domain.AttendanceRecord, error)
	Get(ctx context.Context, userID string, date time.Time) (domain.AttendanceRecord, error)
	Insert(ctx context.Context, rec domain.AttendanceRecord) error

	// ApplyCredit atomically adds the credited seconds to its counter and
	// stamps the new open state
	ApplyCredit(ctx context.Context, id string, c state.Credit) error

	// FinalizeCredit atomically adds the credited seconds and clears the open state
	FinalizeCredit(ctx context.Context, id string, c state.Credit) error

	SetCheckIn(ctx context.Context, id string, at time.Time, ip, location string) error

	// Reopen clears the check-out fields and mirrors for a same-day re-check-in,
	// credits the away gap to idle_seconds, and opens WORKING at the given instant
	Reopen(ctx context.Context, id string, at time.Time, idleGapSeconds int64, ip, location string) error

	SetCheckOut(ctx context.Context, id string, at time.Time, t domain.Totals, ip, location, reason string) error

	InsertBreak(ctx context.Context, b domain.LunchBreak) error
	OpenBreak(ctx context.Context, recordID string) (domain.LunchBreak, error)
	CloseBreak(ctx context.Context, id string, end time.Time, durationSeconds int64, endLocation string) error

	OpenSegment(ctx context.Context, seg domain.ActivitySegment) error
	CloseOpenSegments(ctx context.Context, recordID string, at time.Time) error

	ListBetween(ctx context.Context, userID string, since, until time.Time) ([]domain.AttendanceRecord, error)
}

const recordCols = `
	id, user_id, date, check_in_time, check_out_time,
	COALESCE(current_state, ''), last_state_change_at,
	active_seconds, idle_seconds, lunch_seconds,
	total_work_duration, total_active_duration, total_idle_duration, total_break_duration,
	COALESCE(check_in_ip, ''), COALESCE(check_out_ip, ''),
	COALESCE(check_in_location, ''), COALESCE(check_out_location, ''),
	COALESCE(notes, '')`

func scanRecord(r store.Row) (domain.AttendanceRecord, error) {
	var rec domain.AttendanceRecord
	var cur string
	err := r.Scan(
		&rec.ID, &rec.UserID, &rec.Date, &rec.CheckInTime, &rec.CheckOutTime,
		&cur, &rec.LastStateChangeAt,
		&rec.ActiveSeconds, &rec.IdleSeconds, &rec.LunchSeconds,
		&rec.TotalWorkDuration, &rec.TotalActiveDuration, &rec.TotalIdleDuration, &rec.TotalBreakDuration,
		&rec.CheckInIP, &rec.CheckOutIP,
		&rec.CheckInLocation, &rec.CheckOutLocation,
		&rec.Notes,
	)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	rec.CurrentState = state.State(cur)
	return rec, nil
}

// GetForUpdate implements Storage
func (s *pg) GetForUpdate(ctx context.Context, userID string, date time.Time) (domain.AttendanceRecord, error) {
	return store.One(ctx, s.q, scanRecord, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE user_id = $1 AND date = $2
		FOR UPDATE
	`, userID, date)
}

// GetByIDForUpdate implements Storage
func (s *pg) GetByIDForUpdate(ctx context.Context, id string) (domain.AttendanceRecord, error) {
	return store.One(ctx, s.q, scanRecord, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE id = $1
		FOR UPDATE
	`, id)
}

// Get implements Storage
func (s *pg) Get(ctx context.Context, userID string, date time.Time) (domain.AttendanceRecord, error) {
	return store.One(ctx, s.q, scanRecord, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE user_id = $1 AND date = $2
	`, userID, date)
}

// Insert implements Storage
func (s *pg) Insert(ctx context.Context, rec domain.AttendanceRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance_records
			(id, user_id, date, check_in_time, check_out_time,
			current_state, last_state_change_at,
			active_seconds, idle_seconds, lunch_seconds,
			check_in_ip, check_in_location, notes)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''))
	`,
		rec.ID, rec.UserID, rec.Date, rec.CheckInTime, rec.CheckOutTime,
		string(rec.CurrentState), rec.LastStateChangeAt,
		rec.ActiveSeconds, rec.IdleSeconds, rec.LunchSeconds,
		rec.CheckInIP, rec.CheckInLocation, rec.Notes,
	)
	return err
}

// counterCol whitelists the counter column a credit targets
func counterCol(c state.Counter) (string, error) {
	switch c {
	case state.CounterActive, state.CounterIdle, state.CounterLunch:
		return string(c), nil
	default:
		return "", perr.InvalidArgf("unknown counter %q", c)
	}
}

// ApplyCredit implements Storage
func (s *pg) ApplyCredit(ctx context.Context, id string, c state.Credit) error {
	col, err := counterCol(c.Counter)
	if err != nil {
		return err
	}
	// col is whitelisted above, never caller input
	sql := fmt.Sprintf(`
		UPDATE attendance_records
		SET %s = %s + $2,
			current_state = NULLIF($3, ''),
			last_state_change_at = $4
		WHERE id = $1
	`, col, col)
	return store.ExecOne(ctx, s.q, sql, id, c.Seconds, string(c.NewState), c.At)
}

// FinalizeCredit implements Storage
func (s *pg) FinalizeCredit(ctx context.Context, id string, c state.Credit) error {
	col, err := counterCol(c.Counter)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`
		UPDATE attendance_records
		SET %s = %s + $2,
			current_state = NULL,
			last_state_change_at = NULL
		WHERE id = $1
	`, col, col)
	return store.ExecOne(ctx, s.q, sql, id, c.Seconds)
}

// SetCheckIn implements Storage
func (s *pg) SetCheckIn(ctx context.Context, id string, at time.Time, ip, location string) error {
	return store.ExecOne(ctx, s.q, `
		UPDATE attendance_records
		SET check_in_time = $2,
			check_in_ip = NULLIF($3, ''),
			check_in_location = NULLIF($4, '')
		WHERE id = $1
	`, id, at, ip, location)
}

// Reopen implements Storage
func (s *pg) Reopen(ctx context.Context, id string, at time.Time, idleGapSeconds int64, ip, location string) error {
	return store.ExecOne(ctx, s.q, `
		UPDATE attendance_records
		SET check_out_time = NULL,
			check_out_ip = NULL,
			check_out_location = NULL,
			total_work_duration = 0,
			total_active_duration = 0,
			total_idle_duration = 0,
			total_break_duration = 0,
			idle_seconds = idle_seconds + $2,
			current_state = $3,
			last_state_change_at = $4,
			check_in_ip = COALESCE(NULLIF($5, ''), check_in_ip),
			check_in_location = COALESCE(NULLIF($6, ''), check_in_location)
		WHERE id = $1
	`, id, idleGapSeconds, string(state.Working), at, ip, location)
}

// SetCheckOut implements Storage
func (s *pg) SetCheckOut(
	ctx context.Context,
	id string,
	at time.Time,
	t domain.Totals,
	ip, location, reason string,
) error {
	return store.ExecOne(ctx, s.q, `
		UPDATE attendance_records
		SET check_out_time = $2,
			total_work_duration = $3,
			total_active_duration = $4,
			total_idle_duration = $5,
			total_break_duration = $6,
			check_out_ip = NULLIF($7, ''),
			check_out_location = NULLIF($8, ''),
			notes = CASE WHEN $9 = '' THEN notes ELSE NULLIF(CONCAT_WS(' | ', notes, $9), '') END
		WHERE id = $1
	`, id, at, t.Work, t.Active, t.Idle, t.Break, ip, location, reason)
}

// InsertBreak implements Storage
func (s *pg) InsertBreak(ctx context.Context, b domain.LunchBreak) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO lunch_breaks
			(id, attendance_record_id, user_id, break_start_time, start_location)
		VALUES ($1,$2,$3,$4,NULLIF($5,''))
	`, b.ID, b.AttendanceRecordID, b.UserID, b.BreakStartTime, b.StartLocation)
	return err
}

// OpenBreak implements Storage
func (s *pg) OpenBreak(ctx context.Context, recordID string) (domain.LunchBreak, error) {
	return store.One(ctx, s.q, scanBreak, `
		SELECT id, attendance_record_id, user_id, break_start_time, break_end_time,
			duration_seconds, COALESCE(start_location, ''), COALESCE(end_location, '')
		FROM lunch_breaks
		WHERE attendance_record_id = $1 AND break_end_time IS NULL
	`, recordID)
}

func scanBreak(r store.Row) (domain.LunchBreak, error) {
	var b domain.LunchBreak
	err := r.Scan(
		&b.ID, &b.AttendanceRecordID, &b.UserID, &b.BreakStartTime, &b.BreakEndTime,
		&b.DurationSeconds, &b.StartLocation, &b.EndLocation,
	)
	return b, err
}

// CloseBreak implements Storage
func (s *pg) CloseBreak(ctx context.Context, id string, end time.Time, durationSeconds int64, endLocation string) error {
	return store.ExecOne(ctx, s.q, `
		UPDATE lunch_breaks
		SET break_end_time = $2,
			duration_seconds = $3,
			end_location = NULLIF($4, '')
		WHERE id = $1 AND break_end_time IS NULL
	`, id, end, durationSeconds, endLocation)
}

// OpenSegment implements Storage
func (s *pg) OpenSegment(ctx context.Context, seg domain.ActivitySegment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO activity_logs (id, attendance_record_id, segment_type, started_at)
		VALUES ($1,$2,$3,$4)
	`, seg.ID, seg.AttendanceRecordID, string(seg.Type), seg.StartedAt)
	return err
}

// CloseOpenSegments implements Storage
func (s *pg) CloseOpenSegments(ctx context.Context, recordID string, at time.Time) error {
	// closes every open segment defensively; one is the invariant
	_, err := s.q.Exec(ctx, `
		UPDATE activity_logs
		SET ended_at = $2,
			duration_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2 - started_at))::bigint)
		WHERE attendance_record_id = $1 AND ended_at IS NULL
	`, recordID, at)
	return err
}

// ListBetween implements Storage, newest first
func (s *pg) ListBetween(
	ctx context.Context,
	userID string,
	since, until time.Time,
) ([]domain.AttendanceRecord, error) {
	return store.Many(ctx, s.q, scanRecord, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
	`, userID, since, until)
}
