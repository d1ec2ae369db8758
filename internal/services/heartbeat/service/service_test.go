package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	"timeclock/internal/platform/timeutil"
	attdomain "timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo/repotest"
	attsvc "timeclock/internal/services/attendance/service"
	"timeclock/internal/services/heartbeat/domain"
	hbrepo "timeclock/internal/services/heartbeat/repo"
	"timeclock/internal/services/heartbeat/service"
)

// sampleSink records inserted samples in memory
type sampleSink struct{ samples []domain.InputSample }

func (s *sampleSink) InsertSample(_ context.Context, in domain.InputSample) error {
	s.samples = append(s.samples, in)
	return nil
}

func (s *sampleSink) binder() repokit.Binder[hbrepo.Storage] {
	return repokit.BindFunc[hbrepo.Storage](func(repokit.Queryer) hbrepo.Storage { return s })
}

type fixture struct {
	db      *repotest.DB
	cache   cache.Activity
	sink    *sampleSink
	svc     *service.Svc
	now     time.Time
	checkIn time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := repotest.NewDB()
	act := cache.NewMemory()
	sink := &sampleSink{}
	clock := timeutil.FixedClock{T: now}

	checkout := attsvc.New(db.Runner(), db.Binder(), act, clock, time.UTC)
	svc := service.New(
		db.Runner(), db.Binder(), sink.binder(), checkout, act, nil, clock, time.UTC,
		service.Config{},
	)
	return &fixture{db: db, cache: act, sink: sink, svc: svc, now: now}
}

func (f *fixture) seedWorking(t *testing.T, checkIn, lastChange time.Time, active int64) string {
	t.Helper()
	f.checkIn = checkIn
	return f.db.Seed(attdomain.AttendanceRecord{
		ID:                "r1",
		UserID:            "u1",
		Date:              timeutil.Workday(f.now, time.UTC),
		CheckInTime:       &checkIn,
		CurrentState:      state.Working,
		LastStateChangeAt: &lastChange,
		ActiveSeconds:     active,
	})
}

func ts(h, m int) time.Time { return time.Date(2025, 1, 15, h, m, 0, 0, time.UTC) }

func TestHeartbeatKeepsWorkingAlive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 0))
	f.seedWorking(t, ts(9, 0), ts(9, 0), 0)
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(9, 59), LastHeartbeatTs: ts(9, 59)})

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{MouseClicks: 3, IsActive: true})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.Status != domain.StatusOK || res.CurrentState != state.Working {
		t.Fatalf("result = %+v, want ok/WORKING", res)
	}
	if len(f.sink.samples) != 1 {
		t.Fatalf("samples persisted = %d, want 1", len(f.sink.samples))
	}
	la, ok := f.cache.LastActivity(ctx, "u1")
	if !ok || !la.LastInputTs.Equal(ts(10, 0)) {
		t.Errorf("lastInputTs = %v, want advanced to now", la.LastInputTs)
	}
}

func TestHeartbeatRetroactiveIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 10))
	f.seedWorking(t, ts(9, 0), ts(9, 0), 0)
	// input flowed until 10:00, then silence
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(10, 0), LastHeartbeatTs: ts(10, 0)})

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{IdleTimeSeconds: 600})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.CurrentState != state.Idle {
		t.Fatalf("state = %q, want IDLE", res.CurrentState)
	}

	rec, _ := f.db.RecordByID("r1")
	// IDLE is back-dated to the last input: WORKING earns exactly 09:00-10:00
	if rec.ActiveSeconds != 3600 {
		t.Errorf("active = %d, want 3600", rec.ActiveSeconds)
	}
	if rec.IdleSeconds != 0 {
		t.Errorf("idle = %d, want 0 (still accruing)", rec.IdleSeconds)
	}
	if rec.LastStateChangeAt == nil || !rec.LastStateChangeAt.Equal(ts(10, 0)) {
		t.Errorf("idle start = %v, want back-dated 10:00", rec.LastStateChangeAt)
	}
}

func TestHeartbeatInputRecoversFromIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 20))
	lastChange := ts(10, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: timeutil.Workday(ts(10, 20), time.UTC),
		CheckInTime: timeutil.Ptr(ts(9, 0)), CurrentState: state.Idle,
		LastStateChangeAt: &lastChange, ActiveSeconds: 3600,
	})
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(10, 0), LastHeartbeatTs: ts(10, 19)})

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{KeyboardStrokes: 12, IsActive: true})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.CurrentState != state.Working {
		t.Fatalf("state = %q, want WORKING after fresh input", res.CurrentState)
	}
	rec, _ := f.db.RecordByID("r1")
	if rec.IdleSeconds != 1200 {
		t.Errorf("idle = %d, want 1200 (10:00-10:20)", rec.IdleSeconds)
	}
}

func TestHeartbeatAutoCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 5))
	f.seedWorking(t, ts(9, 0), ts(9, 0), 0)
	// agent silent since 09:00: over the auto-checkout threshold
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(9, 0), LastHeartbeatTs: ts(9, 0)})

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.Status != domain.StatusAutoCheckedOut || res.CurrentState != state.None {
		t.Fatalf("result = %+v, want auto_checked_out/none", res)
	}

	rec, _ := f.db.RecordByID("r1")
	if rec.CheckOutTime == nil || !rec.CheckOutTime.Equal(ts(10, 5)) {
		t.Errorf("check-out = %v, want 10:05", rec.CheckOutTime)
	}
	if rec.CurrentState != state.None {
		t.Errorf("state = %q, want finalised", rec.CurrentState)
	}
	// no sample row for the rolled-back heartbeat
	if len(f.sink.samples) != 0 {
		t.Errorf("samples = %d, want 0 after rollback", len(f.sink.samples))
	}
	if _, ok := f.cache.LastActivity(ctx, "u1"); ok {
		t.Error("cache not cleared by auto checkout")
	}
}

func TestHeartbeatLunchIsNeverOverridden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(12, 30))
	lastChange := ts(12, 0)
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: timeutil.Workday(ts(12, 30), time.UTC),
		CheckInTime: timeutil.Ptr(ts(9, 0)), CurrentState: state.Lunch,
		LastStateChangeAt: &lastChange, ActiveSeconds: 10800,
	})
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(12, 29), LastHeartbeatTs: ts(12, 29)})

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{MouseClicks: 5, IsActive: true})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// only the end-break command leaves LUNCH
	if res.CurrentState != state.Lunch {
		t.Fatalf("state = %q, want LUNCH", res.CurrentState)
	}
	if len(f.sink.samples) != 1 {
		t.Errorf("sample should still be persisted during lunch")
	}
}

func TestHeartbeatRequiresCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 0))

	if _, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{MouseClicks: 1}); !errors.Is(err, attdomain.ErrNotCheckedIn) {
		t.Fatalf("err = %v, want ErrNotCheckedIn", err)
	}

	// pre-created empty row from the daily creator is not checked in either
	f.db.Seed(attdomain.AttendanceRecord{
		ID: "r1", UserID: "u1", Date: timeutil.Workday(ts(10, 0), time.UTC),
	})
	if _, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{MouseClicks: 1}); !errors.Is(err, attdomain.ErrNotCheckedIn) {
		t.Fatalf("err = %v, want ErrNotCheckedIn for empty row", err)
	}
}

func TestHeartbeatColdCacheFloorsAtNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 0))
	f.seedWorking(t, ts(9, 0), ts(9, 0), 0)
	// no cache entry: restart grace, no gap is assumed

	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.Status != domain.StatusOK || res.CurrentState != state.Working {
		t.Fatalf("result = %+v, want ok/WORKING", res)
	}
	la, ok := f.cache.LastActivity(ctx, "u1")
	if !ok || !la.LastHeartbeatTs.Equal(ts(10, 0)) {
		t.Errorf("cache not primed after cold start")
	}
}

func TestHeartbeatMouseMovesAreNotInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ts(10, 10))
	f.seedWorking(t, ts(9, 0), ts(9, 0), 0)
	f.cache.SetLastActivity(ctx, "u1", cache.LastActivity{LastInputTs: ts(10, 0), LastHeartbeatTs: ts(10, 9)})

	// the agent is alive and wiggling but produces no clicks or keystrokes
	res, err := f.svc.Heartbeat(ctx, "u1", domain.Sample{MouseMoves: 500, IsActive: true})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if res.CurrentState != state.Idle {
		t.Fatalf("state = %q, want IDLE (mouse moves are not input)", res.CurrentState)
	}
	la, _ := f.cache.LastActivity(ctx, "u1")
	if !la.LastInputTs.Equal(ts(10, 0)) {
		t.Errorf("lastInputTs = %v, want unchanged 10:00", la.LastInputTs)
	}
	if !la.LastHeartbeatTs.Equal(ts(10, 10)) {
		t.Errorf("lastHeartbeatTs = %v, want refreshed 10:10", la.LastHeartbeatTs)
	}
}
