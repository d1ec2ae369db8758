// Package repotest provides an in-memory attendance Storage for service
// tests. Semantics mirror the SQL implementation closely enough that the
// command, heartbeat, and reconciler workflows can run against it unchanged
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo"
)

// DB is the shared in-memory state behind every bound Storage
type DB struct {
	mu       sync.Mutex
	Records  map[string]*domain.AttendanceRecord
	Breaks   map[string]*domain.LunchBreak
	Segments map[string]*domain.ActivitySegment
}

// NewDB constructs an empty in-memory database
func NewDB() *DB {
	return &DB{
		Records:  map[string]*domain.AttendanceRecord{},
		Breaks:   map[string]*domain.LunchBreak{},
		Segments: map[string]*domain.ActivitySegment{},
	}
}

// Binder returns a repokit binder that always yields this DB's Storage
func (d *DB) Binder() repokit.Binder[repo.Storage] {
	return repokit.BindFunc[repo.Storage](func(repokit.Queryer) repo.Storage {
		return (*mem)(d)
	})
}

// Runner returns a TxRunner whose transactions are plain function calls
func (d *DB) Runner() repokit.TxRunner { return runner{} }

// Seed stores a copy of rec and returns its id
func (d *DB) Seed(rec domain.AttendanceRecord) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := rec
	d.Records[rec.ID] = &r
	return rec.ID
}

// SeedBreak stores a copy of b
func (d *DB) SeedBreak(b domain.LunchBreak) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := b
	d.Breaks[b.ID] = &c
}

// Record returns a copy of the record for user and date, or false
func (d *DB) Record(userID string, date time.Time) (domain.AttendanceRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.Records {
		if r.UserID == userID && r.Date.Equal(date) {
			return *r, true
		}
	}
	return domain.AttendanceRecord{}, false
}

// RecordByID returns a copy of the record, or false
func (d *DB) RecordByID(id string) (domain.AttendanceRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.Records[id]; ok {
		return *r, true
	}
	return domain.AttendanceRecord{}, false
}

// BreakByID returns a copy of the break, or false
func (d *DB) BreakByID(id string) (domain.LunchBreak, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.Breaks[id]; ok {
		return *b, true
	}
	return domain.LunchBreak{}, false
}

// OpenSegments returns copies of segments not yet closed for the record
func (d *DB) OpenSegments(recordID string) []domain.ActivitySegment {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.ActivitySegment
	for _, s := range d.Segments {
		if s.AttendanceRecordID == recordID && s.EndedAt == nil {
			out = append(out, *s)
		}
	}
	return out
}

type runner struct{}

func (runner) Tx(_ context.Context, fn func(q repokit.Queryer) error) error { return fn(noQuery{}) }
func (runner) Exec(context.Context, string, ...any) (repokit.CommandTag, error) {
	panic("repotest: raw Exec not supported")
}
func (runner) Query(context.Context, string, ...any) (repokit.Rows, error) {
	panic("repotest: raw Query not supported")
}
func (runner) QueryRow(context.Context, string, ...any) repokit.Row {
	panic("repotest: raw QueryRow not supported")
}

type noQuery struct{}

func (noQuery) Exec(context.Context, string, ...any) (repokit.CommandTag, error) {
	panic("repotest: raw Exec not supported")
}
func (noQuery) Query(context.Context, string, ...any) (repokit.Rows, error) {
	panic("repotest: raw Query not supported")
}
func (noQuery) QueryRow(context.Context, string, ...any) repokit.Row {
	panic("repotest: raw QueryRow not supported")
}

// mem implements repo.Storage over the DB maps
type mem DB

var _ repo.Storage = (*mem)(nil)

func (m *mem) find(userID string, date time.Time) (*domain.AttendanceRecord, bool) {
	for _, r := range m.Records {
		if r.UserID == userID && r.Date.Equal(date) {
			return r, true
		}
	}
	return nil, false
}

func (m *mem) GetForUpdate(_ context.Context, userID string, date time.Time) (domain.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.find(userID, date); ok {
		return *r, nil
	}
	return domain.AttendanceRecord{}, perr.NotFoundf("attendance record not found")
}

func (m *mem) GetByIDForUpdate(_ context.Context, id string) (domain.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Records[id]; ok {
		return *r, nil
	}
	return domain.AttendanceRecord{}, perr.NotFoundf("attendance record not found")
}

func (m *mem) Get(ctx context.Context, userID string, date time.Time) (domain.AttendanceRecord, error) {
	return m.GetForUpdate(ctx, userID, date)
}

func (m *mem) Insert(_ context.Context, rec domain.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rec
	m.Records[rec.ID] = &r
	return nil
}

func (m *mem) ApplyCredit(_ context.Context, id string, c state.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return perr.NotFoundf("attendance record not found")
	}
	credit(r, c)
	r.CurrentState = c.NewState
	t := c.At
	r.LastStateChangeAt = &t
	return nil
}

func (m *mem) FinalizeCredit(_ context.Context, id string, c state.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return perr.NotFoundf("attendance record not found")
	}
	credit(r, c)
	r.CurrentState = state.None
	r.LastStateChangeAt = nil
	return nil
}

func credit(r *domain.AttendanceRecord, c state.Credit) {
	switch c.Counter {
	case state.CounterActive:
		r.ActiveSeconds += c.Seconds
	case state.CounterLunch:
		r.LunchSeconds += c.Seconds
	default:
		r.IdleSeconds += c.Seconds
	}
}

func (m *mem) SetCheckIn(_ context.Context, id string, at time.Time, ip, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return perr.NotFoundf("attendance record not found")
	}
	t := at
	r.CheckInTime = &t
	if ip != "" {
		r.CheckInIP = ip
	}
	if location != "" {
		r.CheckInLocation = location
	}
	return nil
}

func (m *mem) Reopen(_ context.Context, id string, at time.Time, idleGapSeconds int64, ip, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return perr.NotFoundf("attendance record not found")
	}
	r.CheckOutTime = nil
	r.CheckOutIP = ""
	r.CheckOutLocation = ""
	r.TotalWorkDuration, r.TotalActiveDuration = 0, 0
	r.TotalIdleDuration, r.TotalBreakDuration = 0, 0
	r.IdleSeconds += idleGapSeconds
	r.CurrentState = state.Working
	t := at
	r.LastStateChangeAt = &t
	if ip != "" {
		r.CheckInIP = ip
	}
	if location != "" {
		r.CheckInLocation = location
	}
	return nil
}

func (m *mem) SetCheckOut(
	_ context.Context,
	id string,
	at time.Time,
	t domain.Totals,
	ip, location, reason string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok {
		return perr.NotFoundf("attendance record not found")
	}
	ct := at
	r.CheckOutTime = &ct
	r.TotalWorkDuration = t.Work
	r.TotalActiveDuration = t.Active
	r.TotalIdleDuration = t.Idle
	r.TotalBreakDuration = t.Break
	r.CheckOutIP = ip
	r.CheckOutLocation = location
	if reason != "" {
		if r.Notes != "" {
			r.Notes += " | "
		}
		r.Notes += reason
	}
	return nil
}

func (m *mem) InsertBreak(_ context.Context, b domain.LunchBreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := b
	m.Breaks[b.ID] = &c
	return nil
}

func (m *mem) OpenBreak(_ context.Context, recordID string) (domain.LunchBreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.Breaks {
		if b.AttendanceRecordID == recordID && b.BreakEndTime == nil {
			return *b, nil
		}
	}
	return domain.LunchBreak{}, perr.NotFoundf("no open break")
}

func (m *mem) CloseBreak(_ context.Context, id string, end time.Time, durationSeconds int64, endLocation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Breaks[id]
	if !ok || b.BreakEndTime != nil {
		return perr.NotFoundf("no open break %s", id)
	}
	t := end
	b.BreakEndTime = &t
	b.DurationSeconds = durationSeconds
	b.EndLocation = endLocation
	return nil
}

func (m *mem) OpenSegment(_ context.Context, seg domain.ActivitySegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := seg
	m.Segments[seg.ID] = &s
	return nil
}

func (m *mem) CloseOpenSegments(_ context.Context, recordID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Segments {
		if s.AttendanceRecordID != recordID || s.EndedAt != nil {
			continue
		}
		t := at
		s.EndedAt = &t
		d := at.Sub(s.StartedAt) / time.Second
		if d < 0 {
			d = 0
		}
		s.DurationSeconds = int64(d)
	}
	return nil
}

func (m *mem) ListBetween(
	_ context.Context,
	userID string,
	since, until time.Time,
) ([]domain.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AttendanceRecord
	for _, r := range m.Records {
		if r.UserID != userID {
			continue
		}
		if r.Date.Before(since) || r.Date.After(until) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
