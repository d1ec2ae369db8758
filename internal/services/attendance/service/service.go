// Package service contains the attendance command and query workflows
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/timeutil"
	"timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo"
)

// Service is the attendance contract: commands plus queries
type Service interface {
	domain.CommandPort
	domain.QueryPort
}

// Svc implements the attendance service. Every command is one transaction
// that row-locks the attendance record for its whole critical section
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[repo.Storage]
	cache  cache.Activity
	clock  timeutil.Clock
	loc    *time.Location
	log    *logger.Logger
}

var _ Service = (*Svc)(nil)

// New constructs the attendance service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[repo.Storage],
	act cache.Activity,
	clock timeutil.Clock,
	loc *time.Location,
) *Svc {
	if db == nil {
		panic("attendance.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("attendance.Service requires a non nil Storage binder")
	}
	if act == nil {
		act = cache.NewMemory()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Svc{db: db, binder: binder, cache: act, clock: clock, loc: loc, log: logger.Named("attendance")}
}

func (s *Svc) at(override *time.Time) time.Time {
	if override != nil {
		return override.UTC()
	}
	return s.clock.Now()
}

// CheckIn opens (or reopens) today's attendance record for the user
func (s *Svc) CheckIn(ctx context.Context, in domain.CheckInInput) (domain.AttendanceRecord, error) {
	now := s.at(in.At)
	date := timeutil.Workday(now, s.loc)

	var out domain.AttendanceRecord
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		rec, err := r.GetForUpdate(ctx, in.UserID, date)
		switch {
		case perr.IsCode(err, perr.ErrorCodeNotFound):
			rec = domain.AttendanceRecord{
				ID:                uuid.NewString(),
				UserID:            in.UserID,
				Date:              date,
				CheckInTime:       &now,
				CurrentState:      state.Working,
				LastStateChangeAt: &now,
				CheckInIP:         in.IP,
				CheckInLocation:   in.Location,
			}
			if err := r.Insert(ctx, rec); err != nil {
				// two concurrent first check-ins race past GetForUpdate; the
				// unique (user_id, date) index rejects the loser
				if perr.IsDuplicateKey(err) {
					return domain.ErrAlreadyCheckedIn
				}
				return err
			}

		case err != nil:
			return err

		case rec.CheckOutTime != nil:
			// same-day re-check-in: the away gap is billed as idle
			if br, berr := r.OpenBreak(ctx, rec.ID); berr == nil {
				dur := seconds(now.Sub(br.BreakStartTime))
				if err := r.CloseBreak(ctx, br.ID, now, dur, in.Location); err != nil {
					return err
				}
			} else if !perr.IsCode(berr, perr.ErrorCodeNotFound) {
				return berr
			}
			gap := seconds(now.Sub(*rec.CheckOutTime))
			if err := r.Reopen(ctx, rec.ID, now, gap, in.IP, in.Location); err != nil {
				return err
			}
			rec.CheckOutTime = nil
			rec.CheckOutIP = ""
			rec.CheckOutLocation = ""
			rec.IdleSeconds += gap
			rec.TotalWorkDuration, rec.TotalActiveDuration = 0, 0
			rec.TotalIdleDuration, rec.TotalBreakDuration = 0, 0
			rec.CurrentState = state.Working
			rec.LastStateChangeAt = &now

		case rec.CheckInTime != nil:
			return domain.ErrAlreadyCheckedIn

		default:
			// pre-created empty row from the daily creator
			if err := r.SetCheckIn(ctx, rec.ID, now, in.IP, in.Location); err != nil {
				return err
			}
			cred, _ := state.Transition(rec.Snapshot(), state.Working, now)
			if err := r.ApplyCredit(ctx, rec.ID, cred); err != nil {
				return err
			}
			rec.CheckInTime = &now
			rec.CurrentState = state.Working
			rec.LastStateChangeAt = &now
		}

		// fresh audit segment on every check-in path
		if err := r.CloseOpenSegments(ctx, rec.ID, now); err != nil {
			return err
		}
		if err := r.OpenSegment(ctx, domain.ActivitySegment{
			ID:                 uuid.NewString(),
			AttendanceRecordID: rec.ID,
			Type:               domain.SegmentActive,
			StartedAt:          now,
		}); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	s.cache.SetState(ctx, in.UserID, state.Working)
	s.cache.SetAttendance(ctx, in.UserID, out)
	s.cache.SetLastActivity(ctx, in.UserID, cache.LastActivity{LastInputTs: now, LastHeartbeatTs: now})
	return out, nil
}

// CheckOut finalises today's record: counters frozen, mirrors written,
// open break and audit segments closed, cache cleared
func (s *Svc) CheckOut(ctx context.Context, in domain.CheckOutInput) (domain.AttendanceRecord, error) {
	now := s.at(in.At)
	date := timeutil.Workday(now, s.loc)

	var out domain.AttendanceRecord
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		rec, err := r.GetForUpdate(ctx, in.UserID, date)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.ErrNotCheckedIn
		}
		if err != nil {
			return err
		}
		if rec.CheckInTime == nil {
			return domain.ErrNotCheckedIn
		}
		if rec.CheckOutTime != nil {
			return domain.ErrAlreadyCheckedOut
		}

		at := now
		if rec.LastStateChangeAt != nil && at.Before(*rec.LastStateChangeAt) {
			s.log.Warn().Str("record_id", rec.ID).Time("at", at).Msg("check-out behind last state change, clamping")
			at = *rec.LastStateChangeAt
		}

		if _, err := FinalizeRecord(ctx, r, &rec, at); err != nil {
			return err
		}
		if br, berr := r.OpenBreak(ctx, rec.ID); berr == nil {
			if err := r.CloseBreak(ctx, br.ID, at, seconds(at.Sub(br.BreakStartTime)), in.Location); err != nil {
				return err
			}
		} else if !perr.IsCode(berr, perr.ErrorCodeNotFound) {
			return berr
		}
		if err := r.CloseOpenSegments(ctx, rec.ID, at); err != nil {
			return err
		}

		totals := domain.MirrorTotals(rec.ActiveSeconds, rec.IdleSeconds, rec.LunchSeconds)
		if err := r.SetCheckOut(ctx, rec.ID, at, totals, in.IP, in.Location, in.Reason); err != nil {
			return err
		}
		rec.CheckOutTime = &at
		rec.CheckOutIP = in.IP
		rec.CheckOutLocation = in.Location
		rec.TotalWorkDuration = totals.Work
		rec.TotalActiveDuration = totals.Active
		rec.TotalIdleDuration = totals.Idle
		rec.TotalBreakDuration = totals.Break
		out = rec
		return nil
	})
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	s.cache.Clear(ctx, in.UserID)
	return out, nil
}

// StartBreak moves the record to LUNCH and opens the audit break row
func (s *Svc) StartBreak(ctx context.Context, in domain.BreakInput) (domain.LunchBreak, error) {
	now := s.at(in.At)
	date := timeutil.Workday(now, s.loc)

	var out domain.LunchBreak
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		rec, err := r.GetForUpdate(ctx, in.UserID, date)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.ErrNotCheckedIn
		}
		if err != nil {
			return err
		}
		if rec.CheckInTime == nil {
			return domain.ErrNotCheckedIn
		}
		if rec.CheckOutTime != nil {
			return domain.ErrAlreadyCheckedOut
		}
		if rec.CurrentState == state.Lunch {
			return domain.ErrBreakAlreadyStarted
		}
		if _, berr := r.OpenBreak(ctx, rec.ID); berr == nil {
			return domain.ErrBreakAlreadyStarted
		} else if !perr.IsCode(berr, perr.ErrorCodeNotFound) {
			return berr
		}

		at := now
		if rec.LastStateChangeAt != nil {
			at = timeutil.MaxTime(at, *rec.LastStateChangeAt)
		}
		if _, err := TransitionWithAudit(ctx, r, &rec, state.Lunch, at); err != nil {
			return err
		}

		out = domain.LunchBreak{
			ID:                 uuid.NewString(),
			AttendanceRecordID: rec.ID,
			UserID:             in.UserID,
			BreakStartTime:     at,
			StartLocation:      in.Location,
		}
		return r.InsertBreak(ctx, out)
	})
	if err != nil {
		return domain.LunchBreak{}, err
	}

	s.cache.SetState(ctx, in.UserID, state.Lunch)
	return out, nil
}

// EndBreak closes the open break and returns the record to WORKING
func (s *Svc) EndBreak(ctx context.Context, in domain.BreakInput) (domain.LunchBreak, error) {
	now := s.at(in.At)
	date := timeutil.Workday(now, s.loc)

	var out domain.LunchBreak
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		rec, err := r.GetForUpdate(ctx, in.UserID, date)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.ErrNotCheckedIn
		}
		if err != nil {
			return err
		}
		if rec.CheckInTime == nil {
			return domain.ErrNotCheckedIn
		}
		if rec.CheckOutTime != nil {
			return domain.ErrAlreadyCheckedOut
		}
		br, berr := r.OpenBreak(ctx, rec.ID)
		if perr.IsCode(berr, perr.ErrorCodeNotFound) {
			return domain.ErrNoActiveBreak
		}
		if berr != nil {
			return berr
		}

		at := now
		if rec.LastStateChangeAt != nil {
			at = timeutil.MaxTime(at, *rec.LastStateChangeAt)
		}
		if _, err := TransitionWithAudit(ctx, r, &rec, state.Working, at); err != nil {
			return err
		}

		dur := seconds(at.Sub(br.BreakStartTime))
		if err := r.CloseBreak(ctx, br.ID, at, dur, in.Location); err != nil {
			return err
		}
		br.BreakEndTime = &at
		br.DurationSeconds = dur
		br.EndLocation = in.Location
		out = br
		return nil
	})
	if err != nil {
		return domain.LunchBreak{}, err
	}

	s.cache.SetState(ctx, in.UserID, state.Working)
	return out, nil
}

func seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
