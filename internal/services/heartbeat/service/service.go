// Package service contains the heartbeat ingestion pipeline
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/store"
	"timeclock/internal/platform/timeutil"
	attdomain "timeclock/internal/services/attendance/domain"
	attrepo "timeclock/internal/services/attendance/repo"
	attsvc "timeclock/internal/services/attendance/service"
	"timeclock/internal/services/heartbeat/domain"
	"timeclock/internal/services/heartbeat/repo"
)

// Config holds the classification thresholds
type Config struct {
	// IdleAfter is the silence after which the user counts as idle
	IdleAfter time.Duration
	// AutoCheckoutAfter is the input gap after which the day is force-closed
	AutoCheckoutAfter time.Duration
}

// Defaults fills zero thresholds
func (c Config) withDefaults() Config {
	if c.IdleAfter <= 0 {
		c.IdleAfter = 5 * time.Minute
	}
	if c.AutoCheckoutAfter <= 0 {
		c.AutoCheckoutAfter = 60 * time.Minute
	}
	return c
}

// Service is the heartbeat contract
type Service interface {
	domain.IngestPort
}

// Svc processes heartbeats: one transaction per heartbeat, row-locking the
// attendance record. Auto-checkout runs in a fresh transaction after the
// heartbeat's own lock is released
type Svc struct {
	db       repokit.TxRunner
	att      repokit.Binder[attrepo.Storage]
	samples  repokit.Binder[repo.Storage]
	checkout attdomain.CommandPort
	cache    cache.Activity
	ch       store.Clickhouse
	clock    timeutil.Clock
	loc      *time.Location
	cfg      Config
	log      *logger.Logger
}

var _ Service = (*Svc)(nil)

// New constructs the heartbeat service
func New(
	db repokit.TxRunner,
	att repokit.Binder[attrepo.Storage],
	samples repokit.Binder[repo.Storage],
	checkout attdomain.CommandPort,
	act cache.Activity,
	ch store.Clickhouse,
	clock timeutil.Clock,
	loc *time.Location,
	cfg Config,
) *Svc {
	if db == nil {
		panic("heartbeat.Service requires a non nil TxRunner")
	}
	if att == nil || samples == nil {
		panic("heartbeat.Service requires non nil repo binders")
	}
	if checkout == nil {
		panic("heartbeat.Service requires the attendance command port")
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
	return &Svc{
		db:       db,
		att:      att,
		samples:  samples,
		checkout: checkout,
		cache:    act,
		ch:       ch,
		clock:    clock,
		loc:      loc,
		cfg:      cfg.withDefaults(),
		log:      logger.Named("heartbeat"),
	}
}

// errAutoCheckout is the internal sentinel that aborts the heartbeat
// transaction so check-out can run on a released connection
type errAutoCheckout struct{ at time.Time }

func (errAutoCheckout) Error() string { return "heartbeat: auto checkout required" }

// Heartbeat classifies one sample and drives the state machine
func (s *Svc) Heartbeat(ctx context.Context, userID string, in domain.Sample) (domain.Result, error) {
	now := s.clock.Now()
	date := timeutil.Workday(now, s.loc)

	// cache is advisory; a cold cache floors both timestamps at now
	la, ok := s.cache.LastActivity(ctx, userID)
	if !ok {
		la = cache.LastActivity{LastInputTs: now, LastHeartbeatTs: now}
	}

	lastInput := la.LastInputTs
	// basis is what the just-arrived sample tells us about the silence that
	// preceded it: the client idle estimate wins, fresh input closes the
	// stretch measured from the cached value, anything else carries it over
	basis := lastInput
	switch {
	case in.IdleTimeSeconds > 0:
		lastInput = now.Add(-time.Duration(in.IdleTimeSeconds) * time.Second)
		basis = lastInput
	case in.HasInput():
		lastInput = now
	}
	gap := now.Sub(basis)

	var res domain.Result
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		ar := s.att.Bind(q)
		rec, err := ar.GetForUpdate(ctx, userID, date)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return attdomain.ErrNotCheckedIn
		}
		if err != nil {
			return err
		}
		if rec.CheckInTime == nil {
			return attdomain.ErrNotCheckedIn
		}
		if rec.CheckOutTime != nil {
			return attdomain.ErrAlreadyCheckedOut
		}

		if gap > s.cfg.AutoCheckoutAfter {
			return errAutoCheckout{at: now}
		}

		// retroactive idle: back-date the IDLE start to the last input so
		// WORKING does not silently grow over the gap
		if gap > s.cfg.IdleAfter && rec.CurrentState == state.Working {
			if _, err := attsvc.TransitionWithAudit(ctx, ar, &rec, state.Idle, basis); err != nil {
				return err
			}
		}

		desired := state.Idle
		if in.HasInput() || now.Sub(lastInput) < s.cfg.IdleAfter {
			desired = state.Working
		}

		// LUNCH is only left through the end-break command
		if rec.CurrentState != state.Lunch && desired != rec.CurrentState {
			at := lastInput
			if rec.LastStateChangeAt != nil {
				at = timeutil.MaxTime(at, *rec.LastStateChangeAt)
			}
			if _, err := attsvc.TransitionWithAudit(ctx, ar, &rec, desired, at); err != nil {
				return err
			}
		}

		sample := domain.InputSample{
			ID:                 uuid.NewString(),
			AttendanceRecordID: rec.ID,
			UserID:             userID,
			Timestamp:          now,
			ActiveWindow:       in.ActiveWindow,
			ActiveApplication:  in.ActiveApplication,
			URL:                in.URL,
			MouseClicks:        in.MouseClicks,
			KeyboardStrokes:    in.KeyboardStrokes,
			MouseMoves:         in.MouseMoves,
			IsActive:           in.IsActive,
			IdleTimeSeconds:    in.IdleTimeSeconds,
		}
		if err := s.samples.Bind(q).InsertSample(ctx, sample); err != nil {
			return err
		}

		res = domain.Result{Status: domain.StatusOK, CurrentState: rec.CurrentState}
		return nil
	})

	var ac errAutoCheckout
	if errors.As(err, &ac) {
		// the heartbeat transaction is rolled back and its lock released;
		// check-out owns its own transaction
		reason := fmt.Sprintf("auto checkout: no input for over %s", s.cfg.AutoCheckoutAfter)
		if _, cerr := s.checkout.CheckOut(ctx, attdomain.CheckOutInput{
			UserID: userID,
			At:     &ac.at,
			Reason: reason,
		}); cerr != nil {
			return domain.Result{}, cerr
		}
		s.log.Info().Str("user_id", userID).Dur("gap", gap).Msg("auto checked out")
		return domain.Result{Status: domain.StatusAutoCheckedOut, CurrentState: state.None}, nil
	}
	if err != nil {
		return domain.Result{}, err
	}

	s.cache.SetLastActivity(ctx, userID, cache.LastActivity{LastInputTs: lastInput, LastHeartbeatTs: now})
	s.cache.SetState(ctx, userID, res.CurrentState)
	s.mirrorSample(ctx, userID, now, in)
	return res, nil
}

// mirrorSample appends the sample to the columnar store for analytics.
// Strictly best-effort: a broken mirror never fails a heartbeat
func (s *Svc) mirrorSample(ctx context.Context, userID string, at time.Time, in domain.Sample) {
	if s.ch == nil {
		return
	}
	err := s.ch.Insert(ctx, "input_samples",
		[]string{
			"user_id", "ts", "active_window", "active_application", "url",
			"mouse_clicks", "keyboard_strokes", "mouse_moves", "is_active", "idle_time_seconds",
		},
		[][]any{{
			userID, at, in.ActiveWindow, in.ActiveApplication, in.URL,
			int32(in.MouseClicks), int32(in.KeyboardStrokes), int32(in.MouseMoves),
			in.IsActive, int32(in.IdleTimeSeconds),
		}},
	)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("telemetry mirror insert failed")
	}
}
