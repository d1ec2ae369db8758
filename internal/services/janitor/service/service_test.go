package service_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/timeutil"
	attdomain "timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo/repotest"
	attsvc "timeclock/internal/services/attendance/service"
	"timeclock/internal/services/janitor/domain"
	janrepo "timeclock/internal/services/janitor/repo"
	"timeclock/internal/services/janitor/service"
)

// fakeScans implements the janitor scan queries over the in-memory DB
type fakeScans struct {
	db      *repotest.DB
	samples map[string]time.Time // recordID -> latest sample ts
	users   []string             // active users for EnsureDaily
}

func (f *fakeScans) binder() repokit.Binder[janrepo.Storage] {
	return repokit.BindFunc[janrepo.Storage](func(repokit.Queryer) janrepo.Storage { return f })
}

func (f *fakeScans) StaleOpenBreaks(_ context.Context, cutoff time.Time) ([]domain.BreakCandidate, error) {
	var out []domain.BreakCandidate
	for _, b := range f.db.Breaks {
		if b.BreakEndTime != nil || !b.BreakStartTime.Before(cutoff) {
			continue
		}
		if r, ok := f.db.Records[b.AttendanceRecordID]; !ok || r.CheckOutTime != nil {
			continue
		}
		out = append(out, domain.BreakCandidate{
			BreakID: b.ID, RecordID: b.AttendanceRecordID, UserID: b.UserID, BreakStartTime: b.BreakStartTime,
		})
	}
	return out, nil
}

func (f *fakeScans) ExcessiveIdle(_ context.Context, cutoff time.Time) ([]domain.RecordCandidate, error) {
	return f.records(func(r *attdomain.AttendanceRecord) bool {
		return r.CurrentState == state.Idle && r.CheckOutTime == nil &&
			r.LastStateChangeAt != nil && r.LastStateChangeAt.Before(cutoff)
	}), nil
}

func (f *fakeScans) CheckedInOn(_ context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return f.records(func(r *attdomain.AttendanceRecord) bool {
		return r.Date.Equal(date) && r.CheckInTime != nil && r.CheckOutTime == nil &&
			(r.CurrentState == state.Working || r.CurrentState == state.Idle)
	}), nil
}

func (f *fakeScans) OpenForDate(_ context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return f.records(func(r *attdomain.AttendanceRecord) bool {
		return r.Date.Equal(date) && r.CheckInTime != nil && r.CheckOutTime == nil
	}), nil
}

func (f *fakeScans) OpenBefore(_ context.Context, date time.Time) ([]domain.RecordCandidate, error) {
	return f.records(func(r *attdomain.AttendanceRecord) bool {
		return r.Date.Before(date) && r.CheckInTime != nil && r.CheckOutTime == nil
	}), nil
}

func (f *fakeScans) EnsureDaily(_ context.Context, date time.Time) (int64, error) {
	var created int64
	for _, u := range f.users {
		if _, ok := f.db.Record(u, date); ok {
			continue
		}
		f.db.Seed(attdomain.AttendanceRecord{ID: "daily-" + u, UserID: u, Date: date})
		created++
	}
	return created, nil
}

func (f *fakeScans) LatestSampleTime(_ context.Context, recordID string) (time.Time, error) {
	if ts, ok := f.samples[recordID]; ok {
		return ts, nil
	}
	return time.Time{}, perr.NotFoundf("no samples")
}

func (f *fakeScans) records(match func(*attdomain.AttendanceRecord) bool) []domain.RecordCandidate {
	var out []domain.RecordCandidate
	for _, r := range f.db.Records {
		if match(r) {
			out = append(out, domain.RecordCandidate{
				RecordID: r.ID, UserID: r.UserID, Date: r.Date, CurrentState: r.CurrentState,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

type fixture struct {
	db    *repotest.DB
	scans *fakeScans
	cache cache.Activity
	svc   *service.Svc
}

func newFixture(now time.Time) *fixture {
	db := repotest.NewDB()
	scans := &fakeScans{db: db, samples: map[string]time.Time{}}
	act := cache.NewMemory()
	clock := timeutil.FixedClock{T: now}
	checkout := attsvc.New(db.Runner(), db.Binder(), act, clock, time.UTC)
	svc := service.New(db.Runner(), db.Binder(), scans.binder(), checkout, act, clock, time.UTC, service.Config{})
	return &fixture{db: db, scans: scans, cache: act, svc: svc}
}

func ts(h, m int) time.Time { return time.Date(2025, 1, 15, h, m, 0, 0, time.UTC) }

func day() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }

func TestExcessiveIdleCloser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(14, 37))

	// checked in 14:00, five WORKING minutes, idle since 14:05
	idleAt := ts(14, 5)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: day(),
		CheckInTime: timeutil.Ptr(ts(14, 0)), CurrentState: state.Idle,
		LastStateChangeAt: &idleAt, ActiveSeconds: 300,
	})

	if err := f.svc.CloseExcessiveIdle(ctx); err != nil {
		t.Fatalf("close excessive idle: %v", err)
	}

	rec, _ := f.db.RecordByID("r1")
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(ts(14, 35)) {
		t.Fatalf("check-out = %v, want capped 14:35", rec.CheckOutTime)
	}
	if rec.IdleSeconds != 1800 {
		t.Errorf("idle = %d, want capped 1800", rec.IdleSeconds)
	}
	if rec.ActiveSeconds != 300 {
		t.Errorf("active = %d, want 300", rec.ActiveSeconds)
	}
	if rec.TotalWorkDuration != 2100 {
		t.Errorf("mirror work = %d, want 2100", rec.TotalWorkDuration)
	}

	// idempotent: the record is closed, the second sweep finds nothing
	if err := f.svc.CloseExcessiveIdle(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	again, _ := f.db.RecordByID("r1")
	if again.IdleSeconds != 1800 || !again.CheckOutTime.Equal(*rec.CheckOutTime) {
		t.Errorf("second sweep changed the record: %+v", again)
	}
}

func TestExcessiveBreakCloser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(14, 10))

	// checked in 10:00, on lunch since 12:00, never came back
	lunchAt := ts(12, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: day(),
		CheckInTime: timeutil.Ptr(ts(10, 0)), CurrentState: state.Lunch,
		LastStateChangeAt: &lunchAt, ActiveSeconds: 7200,
	})
	f.db.SeedBreak(attdomain.LunchBreak{
		ID: "b1", AttendanceRecordID: "r1", UserID: "u1", BreakStartTime: ts(12, 0),
	})

	if err := f.svc.CloseExcessiveBreaks(ctx); err != nil {
		t.Fatalf("close excessive breaks: %v", err)
	}

	br, _ := f.db.BreakByID("b1")
	if br.BreakEndTime == nil || !br.BreakEndTime.Equal(ts(14, 0)) || br.DurationSeconds != 7200 {
		t.Fatalf("break not capped at 14:00/7200: %+v", br)
	}
	rec, _ := f.db.RecordByID("r1")
	if rec.LunchSeconds != 7200 {
		t.Errorf("lunch = %d, want 7200", rec.LunchSeconds)
	}
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(ts(14, 0)) {
		t.Errorf("check-out = %v, want 14:00", rec.CheckOutTime)
	}

	// re-running is a no-op: the guard filters on open breaks
	if err := f.svc.CloseExcessiveBreaks(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	again, _ := f.db.RecordByID("r1")
	if again.LunchSeconds != 7200 {
		t.Errorf("second sweep changed lunch to %d", again.LunchSeconds)
	}
}

func TestEndOfDayCloserWithDeadClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(23, 59))

	// WORKING since check-in, last sample 15:40, agent dead after
	changeAt := ts(9, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: day(),
		CheckInTime: timeutil.Ptr(ts(9, 0)), CurrentState: state.Working,
		LastStateChangeAt: &changeAt,
	})
	f.scans.samples["r1"] = ts(15, 40)

	if err := f.svc.CloseDay(ctx); err != nil {
		t.Fatalf("close day: %v", err)
	}

	rec, _ := f.db.RecordByID("r1")
	// WORKING earns 09:00-15:40; the unexplained tail is billed as IDLE
	if rec.ActiveSeconds != 24000 {
		t.Errorf("active = %d, want 24000", rec.ActiveSeconds)
	}
	wantIdle := int64(timeutil.EndOfDay(day(), time.UTC).Sub(ts(15, 40)) / time.Second)
	if rec.IdleSeconds != wantIdle {
		t.Errorf("idle = %d, want %d", rec.IdleSeconds, wantIdle)
	}
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(timeutil.EndOfDay(day(), time.UTC)) {
		t.Errorf("check-out = %v, want end of day", rec.CheckOutTime)
	}
	if rec.CurrentState != state.None {
		t.Errorf("state = %q, want finalised", rec.CurrentState)
	}
}

func TestEndOfDayCloserSkipsNeverCheckedIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(23, 59))

	// pre-created empty row from the daily creator
	f.db.Seed(attdomain.AttendanceRecord{ID: "r1", UserID: "u1", Date: day()})

	if err := f.svc.CloseDay(ctx); err != nil {
		t.Fatalf("close day: %v", err)
	}
	rec, _ := f.db.RecordByID("r1")
	if rec.CheckOutTime != nil {
		t.Errorf("empty row was closed: %+v", rec)
	}
}

func TestEndOfDayCloserCapsOpenLunch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(23, 59))

	lunchAt := ts(20, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: day(),
		CheckInTime: timeutil.Ptr(ts(9, 0)), CurrentState: state.Lunch,
		LastStateChangeAt: &lunchAt, ActiveSeconds: 39600,
	})
	f.db.SeedBreak(attdomain.LunchBreak{
		ID: "b1", AttendanceRecordID: "r1", UserID: "u1", BreakStartTime: ts(20, 0),
	})

	if err := f.svc.CloseDay(ctx); err != nil {
		t.Fatalf("close day: %v", err)
	}

	// the break cap wins over the end-of-day stamp
	br, _ := f.db.BreakByID("b1")
	if br.BreakEndTime == nil || !br.BreakEndTime.Equal(ts(22, 0)) || br.DurationSeconds != 7200 {
		t.Fatalf("break = %+v, want capped 22:00/7200", br)
	}
	rec, _ := f.db.RecordByID("r1")
	if rec.LunchSeconds != 7200 {
		t.Errorf("lunch = %d, want 7200", rec.LunchSeconds)
	}
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(ts(22, 0)) {
		t.Errorf("check-out = %v, want 22:00", rec.CheckOutTime)
	}
}

func TestGapDetector(t *testing.T) {
	ctx := context.Background()
	now := ts(11, 0)
	f := newFixture(now)

	seed := func(id, user string, s state.State) {
		changeAt := ts(9, 0)
		f.db.Seed(attdomain.AttendanceRecord{
			ID: id, UserID: user, Date: day(),
			CheckInTime: timeutil.Ptr(ts(9, 0)), CurrentState: s,
			LastStateChangeAt: &changeAt,
		})
	}

	// u1: silent for 70 minutes -> checked out at lastHeartbeat + 5m
	seed("r1", "u1", state.Working)
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(9, 50), LastHeartbeatTs: ts(9, 50)})

	// u2: silent for 10 minutes while WORKING -> demoted to IDLE
	seed("r2", "u2", state.Working)
	f.cache.SetLastActivity(ctx, "u2", cache.LastActivity{LastInputTs: ts(10, 50), LastHeartbeatTs: ts(10, 50)})

	// u3: no cache entry -> startup grace, untouched
	seed("r3", "u3", state.Working)

	if err := f.svc.DetectGaps(ctx); err != nil {
		t.Fatalf("detect gaps: %v", err)
	}

	r1, _ := f.db.RecordByID("r1")
	if r1.CheckOutTime == nil || !r1.CheckOutTime.Equal(ts(9, 55)) {
		t.Errorf("u1 check-out = %v, want 09:55", r1.CheckOutTime)
	}

	r2, _ := f.db.RecordByID("r2")
	if r2.CurrentState != state.Idle {
		t.Errorf("u2 state = %q, want IDLE", r2.CurrentState)
	}
	if r2.LastStateChangeAt == nil || !r2.LastStateChangeAt.Equal(ts(10, 55)) {
		t.Errorf("u2 idle start = %v, want 10:55", r2.LastStateChangeAt)
	}

	r3, _ := f.db.RecordByID("r3")
	if r3.CurrentState != state.Working || r3.CheckOutTime != nil {
		t.Errorf("u3 touched despite missing cache entry: %+v", r3)
	}
}

func TestBackfillClosesAtOwnEndOfDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(8, 0)) // today is jan 15

	prev := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	checkIn := prev.Add(9 * time.Hour)
	changeAt := prev.Add(16 * time.Hour)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: prev,
		CheckInTime: &checkIn, CurrentState: state.Working,
		LastStateChangeAt: &changeAt, ActiveSeconds: 25200,
	})

	if err := f.svc.Backfill(ctx); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	rec, _ := f.db.RecordByID("r1")
	wantEOD := timeutil.EndOfDay(prev, time.UTC)
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(wantEOD) {
		t.Fatalf("check-out = %v, want that day's end %v", rec.CheckOutTime, wantEOD)
	}
	wantActive := 25200 + int64(wantEOD.Sub(changeAt)/time.Second)
	if rec.ActiveSeconds != wantActive {
		t.Errorf("active = %d, want %d", rec.ActiveSeconds, wantActive)
	}

	// today's records are untouched by backfill
	today := day()
	ci := ts(9, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r2", UserID: "u2", Date: today, CheckInTime: &ci,
		CurrentState: state.Working, LastStateChangeAt: &ci,
	})
	if err := f.svc.Backfill(ctx); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	r2, _ := f.db.RecordByID("r2")
	if r2.CheckOutTime != nil {
		t.Error("backfill closed a record for today")
	}
}

func TestCreateDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ts(0, 0))
	f.scans.users = []string{"u1", "u2"}

	// u1 already has a row
	f.db.Seed(attdomain.AttendanceRecord{ID: "r1", UserID: "u1", Date: day()})

	if err := f.svc.CreateDaily(ctx); err != nil {
		t.Fatalf("create daily: %v", err)
	}
	if _, ok := f.db.Record("u2", day()); !ok {
		t.Error("no row created for u2")
	}
	rec, _ := f.db.Record("u1", day())
	if rec.ID != "r1" {
		t.Error("existing row replaced")
	}
}
