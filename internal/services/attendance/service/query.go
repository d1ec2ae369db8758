package service

import (
	"context"
	"time"

	"timeclock/internal/core/state"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/timeutil"
	"timeclock/internal/services/attendance/domain"
)

// defaultHistoryWindow bounds an open-ended history query
const defaultHistoryWindow = 30 * 24 * time.Hour

// Today returns today's record with live durations: the open state's
// accrued-but-uncommitted time added on top of the counters. Nothing mutates
func (s *Svc) Today(ctx context.Context, userID string) (domain.TodayView, error) {
	now := s.clock.Now()
	date := timeutil.Workday(now, s.loc)

	rec, err := s.binder.Bind(s.db).Get(ctx, userID, date)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.TodayView{}, perr.NotFoundf("no attendance record for today")
	}
	if err != nil {
		return domain.TodayView{}, err
	}
	return domain.TodayView{Record: rec, Live: liveFor(rec, now)}, nil
}

func liveFor(rec domain.AttendanceRecord, now time.Time) domain.LiveDurations {
	live := domain.LiveDurations{
		ActiveSeconds: rec.ActiveSeconds,
		IdleSeconds:   rec.IdleSeconds,
		BreakSeconds:  rec.LunchSeconds,
	}
	pending := int64(state.CurrentDurationAt(rec.Snapshot(), now) / time.Second)
	switch rec.CurrentState {
	case state.Working:
		live.ActiveSeconds += pending
	case state.Lunch:
		live.BreakSeconds += pending
	case state.Idle:
		live.IdleSeconds += pending
	}
	live.TrackedSeconds = live.ActiveSeconds + live.IdleSeconds + live.BreakSeconds
	return live
}

// History lists records newest first. Past-day records still open (their
// reconciler has not caught up yet) are capped at their own end-of-day, and
// the clamp rule is applied so drifted counters never exceed elapsed time
func (s *Svc) History(ctx context.Context, in domain.HistoryInput) ([]domain.AttendanceRecord, error) {
	now := s.clock.Now()
	today := timeutil.Workday(now, s.loc)

	until := in.Until
	if until.IsZero() {
		until = today
	}
	since := in.Since
	if since.IsZero() {
		since = until.Add(-defaultHistoryWindow)
	}

	recs, err := s.binder.Bind(s.db).ListBetween(ctx, in.UserID, since, until)
	if err != nil {
		return nil, err
	}

	for i := range recs {
		rec := &recs[i]
		if rec.CheckInTime == nil {
			continue
		}
		if rec.CheckOutTime == nil && rec.Date.Before(today) {
			// read-time cap; the startup backfill persists the real close
			eod := timeutil.EndOfDay(rec.Date, s.loc)
			if cred, ok := state.Finalize(rec.Snapshot(), eod); ok {
				bump(rec, cred)
			}
			rec.CurrentState = state.None
			rec.LastStateChangeAt = nil
			capAndClamp(rec, eod)
			continue
		}
		if rec.CheckOutTime != nil {
			capAndClamp(rec, *rec.CheckOutTime)
		}
	}
	return recs, nil
}

// capAndClamp trims active/idle so the three counters fit the elapsed window
func capAndClamp(rec *domain.AttendanceRecord, end time.Time) {
	budget := int64(end.Sub(*rec.CheckInTime)/time.Second) - rec.LunchSeconds
	rec.ActiveSeconds, rec.IdleSeconds = state.Clamp(rec.ActiveSeconds, rec.IdleSeconds, budget)
}
