// Package repo provides the janitor candidate scans
package repo

import (
	"context"
	"time"

	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/store"
	"timeclock/internal/services/janitor/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage holds the reconciler scan queries. Scans run without locks and are
// advisory; the reconcilers re-fetch each candidate FOR UPDATE and re-check
// the predicate before mutating
type Storage interface {
	// StaleOpenBreaks lists open breaks started before cutoff whose record
	// is not yet checked out
	StaleOpenBreaks(ctx context.Context, cutoff time.Time) ([]domain.BreakCandidate, error)

	// ExcessiveIdle lists open IDLE records whose last state change is
	// before cutoff
	ExcessiveIdle(ctx context.Context, cutoff time.Time) ([]domain.RecordCandidate, error)

	// CheckedInOn lists checked-in, not-checked-out records for the date in
	// WORKING or IDLE
	CheckedInOn(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error)

	// OpenForDate lists checked-in, not-checked-out records for the date
	OpenForDate(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error)

	// OpenBefore lists checked-in, not-checked-out records dated before the
	// given date, oldest first
	OpenBefore(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error)

	// EnsureDaily inserts one empty attendance row per active user for the
	// date, skipping users who already have one. Returns rows created
	EnsureDaily(ctx context.Context, date time.Time) (int64, error)

	// LatestSampleTime returns the newest input sample timestamp for the
	// record; perr.ErrNotFound when the record has no samples
	LatestSampleTime(ctx context.Context, recordID string) (time.Time, error)
}

func scanCandidate(r store.Row) (domain.RecordCandidate, error) {
	var c domain.RecordCandidate
	var cur string
	if err := r.Scan(&c.RecordID, &c.UserID, &c.Date, &cur); err != nil {
		return domain.RecordCandidate{}, err
	}
	c.CurrentState = state.State(cur)
	return c, nil
}

const candidateCols = `ar.id, ar.user_id, ar.date, COALESCE(ar.current_state, '')`

// StaleOpenBreaks implements Storage
func (s *pg) StaleOpenBreaks(ctx context.Context, cutoff time.Time) ([]domain.BreakCandidate, error) {
	return store.Many(ctx, s.q, func(r store.Row) (domain.BreakCandidate, error) {
		var c domain.BreakCandidate
		err := r.Scan(&c.BreakID, &c.RecordID, &c.UserID, &c.BreakStartTime)
		return c, err
	}, `
		SELECT lb.id, lb.attendance_record_id, lb.user_id, lb.break_start_time
		FROM lunch_breaks lb
		JOIN attendance_records ar ON ar.id = lb.attendance_record_id
		WHERE lb.break_end_time IS NULL
			AND lb.break_start_time < $1
			AND ar.check_out_time IS NULL
		ORDER BY lb.break_start_time
	`, cutoff)
}

// ExcessiveIdle implements Storage
func (s *pg) ExcessiveIdle(ctx context.Context, cutoff time.Time) ([]domain.RecordCandidate, error) {
	return store.Many(ctx, s.q, scanCandidate, `
		SELECT `+candidateCols+`
		FROM attendance_records ar
		WHERE ar.current_state = $1
			AND ar.last_state_change_at < $2
			AND ar.check_out_time IS NULL
		ORDER BY ar.last_state_change_at
	`, string(state.Idle), cutoff)
}

// CheckedInOn implements Storage
func (s *pg) CheckedInOn(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return store.Many(ctx, s.q, scanCandidate, `
		SELECT `+candidateCols+`
		FROM attendance_records ar
		WHERE ar.date = $1
			AND ar.check_in_time IS NOT NULL
			AND ar.check_out_time IS NULL
			AND ar.current_state IN ($2, $3)
	`, date, string(state.Working), string(state.Idle))
}

// OpenForDate implements Storage
func (s *pg) OpenForDate(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return store.Many(ctx, s.q, scanCandidate, `
		SELECT `+candidateCols+`
		FROM attendance_records ar
		WHERE ar.date = $1
			AND ar.check_in_time IS NOT NULL
			AND ar.check_out_time IS NULL
	`, date)
}

// OpenBefore implements Storage
func (s *pg) OpenBefore(ctx context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return store.Many(ctx, s.q, scanCandidate, `
		SELECT `+candidateCols+`
		FROM attendance_records ar
		WHERE ar.date < $1
			AND ar.check_in_time IS NOT NULL
			AND ar.check_out_time IS NULL
		ORDER BY ar.date
	`, date)
}

// EnsureDaily implements Storage. One insert-select so a crashed run leaves
// no partial state worth worrying about; ON CONFLICT covers re-runs
func (s *pg) EnsureDaily(ctx context.Context, date time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO attendance_records (id, user_id, date)
		SELECT gen_random_uuid()::text, u.id, $1
		FROM users u
		WHERE u.is_active
		ON CONFLICT (user_id, date) DO NOTHING
	`, date)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LatestSampleTime implements Storage
func (s *pg) LatestSampleTime(ctx context.Context, recordID string) (time.Time, error) {
	t, err := store.Scalar[*time.Time](ctx, s.q, `
		SELECT max(ts) FROM input_samples
		WHERE attendance_record_id = $1
	`, recordID)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, perr.ErrNotFound
	}
	return *t, nil
}
