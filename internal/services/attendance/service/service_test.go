package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/platform/timeutil"
	"timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo/repotest"
	"timeclock/internal/services/attendance/service"
)

func at(h, m int) *time.Time {
	t := time.Date(2025, 1, 15, h, m, 0, 0, time.UTC)
	return &t
}

func newSvc(db *repotest.DB) *service.Svc {
	clock := timeutil.FixedClock{T: *at(9, 0)}
	return service.New(db.Runner(), db.Binder(), cache.NewMemory(), clock, time.UTC)
}

func TestStandardDay(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newSvc(db)

	rec, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(9, 0), IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.CurrentState != state.Working {
		t.Fatalf("state after check-in = %q, want WORKING", rec.CurrentState)
	}

	br, err := svc.StartBreak(ctx, domain.BreakInput{UserID: "u1", At: at(12, 0)})
	if err != nil {
		t.Fatalf("start break: %v", err)
	}
	if _, err := svc.EndBreak(ctx, domain.BreakInput{UserID: "u1", At: at(12, 30)}); err != nil {
		t.Fatalf("end break: %v", err)
	}

	out, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(17, 0)})
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}

	if out.ActiveSeconds != 27000 {
		t.Errorf("active = %d, want 27000", out.ActiveSeconds)
	}
	if out.LunchSeconds != 1800 {
		t.Errorf("lunch = %d, want 1800", out.LunchSeconds)
	}
	if out.IdleSeconds != 0 {
		t.Errorf("idle = %d, want 0", out.IdleSeconds)
	}

	// counters partition the checked-in window exactly
	window := int64(out.CheckOutTime.Sub(*out.CheckInTime) / time.Second)
	if got := out.ActiveSeconds + out.IdleSeconds + out.LunchSeconds; got != window {
		t.Errorf("counter sum = %d, want window %d", got, window)
	}

	if out.TotalWorkDuration != 27000 || out.TotalBreakDuration != 1800 {
		t.Errorf("mirrors = work %d break %d, want 27000/1800", out.TotalWorkDuration, out.TotalBreakDuration)
	}
	if out.CurrentState != state.None || out.LastStateChangeAt != nil {
		t.Errorf("record not finalised: state %q", out.CurrentState)
	}

	closed, _ := db.BreakByID(br.ID)
	if closed.BreakEndTime == nil || closed.DurationSeconds != 1800 {
		t.Errorf("break not closed with 1800s, got %+v", closed)
	}
	if open := db.OpenSegments(out.ID); len(open) != 0 {
		t.Errorf("open audit segments after check-out: %d", len(open))
	}
}

func TestReCheckInCreditsGapAsIdle(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newSvc(db)

	if _, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(9, 0)}); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if _, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(12, 0)}); err != nil {
		t.Fatalf("check-out: %v", err)
	}

	rec, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(13, 0)})
	if err != nil {
		t.Fatalf("re-check-in: %v", err)
	}

	if rec.CheckOutTime != nil {
		t.Error("check-out fields not cleared on re-check-in")
	}
	if rec.IdleSeconds != 3600 {
		t.Errorf("idle = %d, want 3600 (away gap)", rec.IdleSeconds)
	}
	if rec.ActiveSeconds != 10800 {
		t.Errorf("active = %d, want 10800 (counters never reset mid-day)", rec.ActiveSeconds)
	}
	if rec.CurrentState != state.Working {
		t.Errorf("state = %q, want WORKING", rec.CurrentState)
	}
	if rec.TotalWorkDuration != 0 || rec.TotalBreakDuration != 0 {
		t.Error("mirror totals not cleared on re-check-in")
	}
}

func TestCommandRejections(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newSvc(db)

	if _, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(10, 0)}); !errors.Is(err, domain.ErrNotCheckedIn) {
		t.Errorf("check-out before check-in: %v, want ErrNotCheckedIn", err)
	}
	if _, err := svc.StartBreak(ctx, domain.BreakInput{UserID: "u1", At: at(10, 0)}); !errors.Is(err, domain.ErrNotCheckedIn) {
		t.Errorf("break before check-in: %v, want ErrNotCheckedIn", err)
	}

	if _, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(9, 0)}); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if _, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(9, 5)}); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
		t.Errorf("double check-in: %v, want ErrAlreadyCheckedIn", err)
	}

	if _, err := svc.EndBreak(ctx, domain.BreakInput{UserID: "u1", At: at(10, 0)}); !errors.Is(err, domain.ErrNoActiveBreak) {
		t.Errorf("end break without one: %v, want ErrNoActiveBreak", err)
	}

	if _, err := svc.StartBreak(ctx, domain.BreakInput{UserID: "u1", At: at(12, 0)}); err != nil {
		t.Fatalf("start break: %v", err)
	}
	if _, err := svc.StartBreak(ctx, domain.BreakInput{UserID: "u1", At: at(12, 5)}); !errors.Is(err, domain.ErrBreakAlreadyStarted) {
		t.Errorf("double start break: %v, want ErrBreakAlreadyStarted", err)
	}

	if _, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(17, 0)}); err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if _, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(17, 5)}); !errors.Is(err, domain.ErrAlreadyCheckedOut) {
		t.Errorf("double check-out: %v, want ErrAlreadyCheckedOut", err)
	}
}

func TestCheckOutDuringLunchClosesBreak(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newSvc(db)

	if _, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(9, 0)}); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	br, err := svc.StartBreak(ctx, domain.BreakInput{UserID: "u1", At: at(12, 0)})
	if err != nil {
		t.Fatalf("start break: %v", err)
	}

	out, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(12, 45)})
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if out.LunchSeconds != 2700 {
		t.Errorf("lunch = %d, want 2700", out.LunchSeconds)
	}
	closed, _ := db.BreakByID(br.ID)
	if closed.BreakEndTime == nil || closed.DurationSeconds != 2700 {
		t.Errorf("open break not closed at check-out: %+v", closed)
	}
}

func TestCheckOutClampsBehindLastChange(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newSvc(db)

	if _, err := svc.CheckIn(ctx, domain.CheckInInput{UserID: "u1", At: at(10, 0)}); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	// a skewed client stamps check-out before the last state change
	out, err := svc.CheckOut(ctx, domain.CheckOutInput{UserID: "u1", At: at(9, 30)})
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if !out.CheckOutTime.Equal(*at(10, 0)) {
		t.Errorf("check-out = %v, want clamped to 10:00", out.CheckOutTime)
	}
	if out.ActiveSeconds != 0 || out.IdleSeconds != 0 {
		t.Errorf("negative credit leaked: active %d idle %d", out.ActiveSeconds, out.IdleSeconds)
	}
}
