// Package service implements the reconcilers
package service

import (
	"context"
	"time"

	"timeclock/internal/adapters/cache"
	"timeclock/internal/core/state"
	"timeclock/internal/modkit/repokit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/timeutil"
	attdomain "timeclock/internal/services/attendance/domain"
	attrepo "timeclock/internal/services/attendance/repo"
	attsvc "timeclock/internal/services/attendance/service"
	"timeclock/internal/services/janitor/domain"
	"timeclock/internal/services/janitor/repo"
)

// Config holds the reconciliation thresholds
type Config struct {
	// BreakCap is the maximum length of a lunch break before force-close
	BreakCap time.Duration
	// IdleCap is the maximum open IDLE stretch before auto-checkout
	IdleCap time.Duration
	// GapIdleAfter is the heartbeat silence after which WORKING demotes to IDLE
	GapIdleAfter time.Duration
	// GapCheckoutAfter is the heartbeat silence after which the day is closed
	GapCheckoutAfter time.Duration
	// DeadTail is how far the last input sample may trail end-of-day before
	// the tail is re-billed as IDLE
	DeadTail time.Duration
}

func (c Config) withDefaults() Config {
	if c.BreakCap <= 0 {
		c.BreakCap = 2 * time.Hour
	}
	if c.IdleCap <= 0 {
		c.IdleCap = 30 * time.Minute
	}
	if c.GapIdleAfter <= 0 {
		c.GapIdleAfter = 5 * time.Minute
	}
	if c.GapCheckoutAfter <= 0 {
		c.GapCheckoutAfter = 60 * time.Minute
	}
	if c.DeadTail <= 0 {
		c.DeadTail = 15 * time.Minute
	}
	return c
}

// Service is the janitor contract
type Service interface {
	domain.ReconcilerPort
}

// Svc runs the reconcilers. Scans are unlocked and advisory; every mutation
// re-fetches its record FOR UPDATE in its own transaction and re-checks the
// predicate, so a reconciler racing a heartbeat simply loses the lock and
// moves on
type Svc struct {
	db       repokit.TxRunner
	att      repokit.Binder[attrepo.Storage]
	scans    repokit.Binder[repo.Storage]
	checkout attdomain.CommandPort
	cache    cache.Activity
	clock    timeutil.Clock
	loc      *time.Location
	cfg      Config
	log      *logger.Logger
}

var _ Service = (*Svc)(nil)

// New constructs the janitor service
func New(
	db repokit.TxRunner,
	att repokit.Binder[attrepo.Storage],
	scans repokit.Binder[repo.Storage],
	checkout attdomain.CommandPort,
	act cache.Activity,
	clock timeutil.Clock,
	loc *time.Location,
	cfg Config,
) *Svc {
	if db == nil {
		panic("janitor.Service requires a non nil TxRunner")
	}
	if att == nil || scans == nil {
		panic("janitor.Service requires non nil repo binders")
	}
	if checkout == nil {
		panic("janitor.Service requires the attendance command port")
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
		scans:    scans,
		checkout: checkout,
		cache:    act,
		clock:    clock,
		loc:      loc,
		cfg:      cfg.withDefaults(),
		log:      logger.Named("janitor"),
	}
}

// logSweepErr records a per-candidate failure. Lock contention is expected
// when a live request holds the record row; the next sweep retries it
func (s *Svc) logSweepErr(err error, key, id, msg string) {
	ev := s.log.Error()
	if perr.IsRetryable(err) {
		ev = s.log.Warn()
	}
	ev.Err(err).Str(key, id).Msg(msg)
}

// CloseExcessiveBreaks implements ReconcilerPort
func (s *Svc) CloseExcessiveBreaks(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.BreakCap)

	var cands []domain.BreakCandidate
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cands, err = s.scans.Bind(q).StaleOpenBreaks(ctx, cutoff)
		return err
	}); err != nil {
		return err
	}

	for _, c := range cands {
		if err := s.closeOneBreak(ctx, c, now); err != nil {
			s.logSweepErr(err, "record_id", c.RecordID, "excessive break close failed")
			continue
		}
		s.cache.Clear(ctx, c.UserID)
	}
	return nil
}

func (s *Svc) closeOneBreak(ctx context.Context, c domain.BreakCandidate, now time.Time) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.att.Bind(q)
		rec, err := r.GetByIDForUpdate(ctx, c.RecordID)
		if err != nil {
			return err
		}
		if rec.CheckOutTime != nil {
			return nil
		}
		br, err := r.OpenBreak(ctx, rec.ID)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil // closed while we waited for the lock
		}
		if err != nil {
			return err
		}
		if now.Sub(br.BreakStartTime) <= s.cfg.BreakCap {
			return nil
		}

		capEnd := br.BreakStartTime.Add(s.cfg.BreakCap)
		if rec.LastStateChangeAt != nil {
			capEnd = timeutil.MaxTime(capEnd, *rec.LastStateChangeAt)
		}
		dur := int64(s.cfg.BreakCap / time.Second)
		if err := r.CloseBreak(ctx, br.ID, capEnd, dur, ""); err != nil {
			return err
		}
		reason := "auto checkout: lunch break exceeded " + s.cfg.BreakCap.String()
		if err := s.closeRecord(ctx, r, &rec, capEnd, reason); err != nil {
			return err
		}
		s.log.Info().Str("record_id", rec.ID).Time("checkout_at", capEnd).Msg("excessive break closed")
		return nil
	})
}

// CloseExcessiveIdle implements ReconcilerPort
func (s *Svc) CloseExcessiveIdle(ctx context.Context) error {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.IdleCap)

	var cands []domain.RecordCandidate
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cands, err = s.scans.Bind(q).ExcessiveIdle(ctx, cutoff)
		return err
	}); err != nil {
		return err
	}

	for _, c := range cands {
		if err := s.closeOneIdle(ctx, c.RecordID, now); err != nil {
			s.logSweepErr(err, "record_id", c.RecordID, "excessive idle close failed")
			continue
		}
		s.cache.Clear(ctx, c.UserID)
	}
	return nil
}

func (s *Svc) closeOneIdle(ctx context.Context, recordID string, now time.Time) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.att.Bind(q)
		rec, err := r.GetByIDForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.CheckOutTime != nil || rec.CurrentState != state.Idle || rec.LastStateChangeAt == nil {
			return nil
		}
		if now.Sub(*rec.LastStateChangeAt) <= s.cfg.IdleCap {
			return nil
		}

		// idle is capped: the stretch past the cap is not credited
		checkoutAt := rec.LastStateChangeAt.Add(s.cfg.IdleCap)
		if br, berr := r.OpenBreak(ctx, rec.ID); berr == nil {
			dur := checkoutAt.Sub(br.BreakStartTime)
			if dur < 0 {
				dur = 0
			}
			if err := r.CloseBreak(ctx, br.ID, checkoutAt, int64(dur/time.Second), ""); err != nil {
				return err
			}
		} else if !perr.IsCode(berr, perr.ErrorCodeNotFound) {
			return berr
		}
		reason := "auto checkout: idle exceeded " + s.cfg.IdleCap.String()
		if err := s.closeRecord(ctx, r, &rec, checkoutAt, reason); err != nil {
			return err
		}
		s.log.Info().Str("record_id", rec.ID).Time("checkout_at", checkoutAt).Msg("excessive idle closed")
		return nil
	})
}

// DetectGaps implements ReconcilerPort
func (s *Svc) DetectGaps(ctx context.Context) error {
	now := s.clock.Now()
	date := timeutil.Workday(now, s.loc)

	var cands []domain.RecordCandidate
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cands, err = s.scans.Bind(q).CheckedInOn(ctx, date)
		return err
	}); err != nil {
		return err
	}

	for _, c := range cands {
		la, ok := s.cache.LastActivity(ctx, c.UserID)
		if !ok {
			continue // no cache entry yet, startup grace
		}
		gap := now.Sub(la.LastHeartbeatTs)

		switch {
		case gap > s.cfg.GapCheckoutAfter:
			at := la.LastHeartbeatTs.Add(s.cfg.GapIdleAfter)
			reason := "auto checkout: agent silent for over " + s.cfg.GapCheckoutAfter.String()
			_, err := s.checkout.CheckOut(ctx, attdomain.CheckOutInput{UserID: c.UserID, At: &at, Reason: reason})
			if perr.IsCode(err, perr.ErrorCodeConflict) {
				continue // someone else closed the day first
			}
			if err != nil {
				s.logSweepErr(err, "user_id", c.UserID, "gap checkout failed")
				continue
			}
			s.log.Info().Str("user_id", c.UserID).Dur("gap", gap).Msg("gap detector checked user out")

		case gap > s.cfg.GapIdleAfter && c.CurrentState == state.Working:
			if err := s.demoteToIdle(ctx, c.RecordID, la.LastHeartbeatTs.Add(s.cfg.GapIdleAfter)); err != nil {
				s.logSweepErr(err, "record_id", c.RecordID, "gap idle demotion failed")
				continue
			}
			s.cache.SetState(ctx, c.UserID, state.Idle)
		}
	}
	return nil
}

// demoteToIdle re-checks WORKING under the lock before transitioning; a
// heartbeat that slipped in first wins
func (s *Svc) demoteToIdle(ctx context.Context, recordID string, at time.Time) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.att.Bind(q)
		rec, err := r.GetByIDForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.CheckOutTime != nil || rec.CurrentState != state.Working {
			return nil
		}
		_, err = attsvc.TransitionWithAudit(ctx, r, &rec, state.Idle, at)
		return err
	})
}

// CloseDay implements ReconcilerPort
func (s *Svc) CloseDay(ctx context.Context) error {
	now := s.clock.Now()
	date := timeutil.Workday(now, s.loc)
	return s.closeAllFor(ctx, date)
}

// Backfill implements ReconcilerPort
func (s *Svc) Backfill(ctx context.Context) error {
	now := s.clock.Now()
	today := timeutil.Workday(now, s.loc)

	var cands []domain.RecordCandidate
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cands, err = s.scans.Bind(q).OpenBefore(ctx, today)
		return err
	}); err != nil {
		return err
	}
	if len(cands) > 0 {
		s.log.Info().Int("records", len(cands)).Msg("backfilling records left open")
	}

	for _, c := range cands {
		eod := timeutil.EndOfDay(c.Date, s.loc)
		if err := s.closeDayFor(ctx, c.RecordID, eod); err != nil {
			s.logSweepErr(err, "record_id", c.RecordID, "backfill close failed")
			continue
		}
		s.cache.Clear(ctx, c.UserID)
	}
	return nil
}

// CreateDaily implements ReconcilerPort
func (s *Svc) CreateDaily(ctx context.Context) error {
	date := timeutil.Workday(s.clock.Now(), s.loc)
	var created int64
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		created, err = s.scans.Bind(q).EnsureDaily(ctx, date)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Time("date", date).Int64("created", created).Msg("daily attendance rows ensured")
	return nil
}

func (s *Svc) closeAllFor(ctx context.Context, date time.Time) error {
	var cands []domain.RecordCandidate
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cands, err = s.scans.Bind(q).OpenForDate(ctx, date)
		return err
	}); err != nil {
		return err
	}

	eod := timeutil.EndOfDay(date, s.loc)
	for _, c := range cands {
		if err := s.closeDayFor(ctx, c.RecordID, eod); err != nil {
			s.logSweepErr(err, "record_id", c.RecordID, "end of day close failed")
			continue
		}
		s.cache.Clear(ctx, c.UserID)
	}
	return nil
}

// closeDayFor finalises one record at its end of day. A WORKING record whose
// telemetry went quiet gets the dead tail re-billed as IDLE first; a LUNCH
// record past the break cap gets the cap applied instead of the end of day
func (s *Svc) closeDayFor(ctx context.Context, recordID string, eod time.Time) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.att.Bind(q)
		sc := s.scans.Bind(q)
		rec, err := r.GetByIDForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.CheckOutTime != nil || rec.CheckInTime == nil {
			return nil
		}

		closeAt := eod
		if rec.CurrentState == state.Working {
			ts, serr := sc.LatestSampleTime(ctx, rec.ID)
			if serr != nil && !perr.IsCode(serr, perr.ErrorCodeNotFound) {
				return serr
			}
			if serr == nil && eod.Sub(ts) > s.cfg.DeadTail {
				if _, err := attsvc.TransitionWithAudit(ctx, r, &rec, state.Idle, ts); err != nil {
					return err
				}
			}
		}

		if br, berr := r.OpenBreak(ctx, rec.ID); berr == nil {
			end := eod
			dur := eod.Sub(br.BreakStartTime)
			if dur > s.cfg.BreakCap {
				end = br.BreakStartTime.Add(s.cfg.BreakCap)
				dur = s.cfg.BreakCap
				closeAt = end
			}
			if dur < 0 {
				dur = 0
			}
			if err := r.CloseBreak(ctx, br.ID, end, int64(dur/time.Second), ""); err != nil {
				return err
			}
		} else if !perr.IsCode(berr, perr.ErrorCodeNotFound) {
			return berr
		}

		if err := s.closeRecord(ctx, r, &rec, closeAt, "auto checkout: end of day"); err != nil {
			return err
		}
		s.log.Info().Str("record_id", rec.ID).Time("checkout_at", closeAt).Msg("day closed")
		return nil
	})
}

// closeRecord is the shared tail of every reconciler close: finalise the open
// state, close audit segments, freeze the mirror totals, stamp the check-out
func (s *Svc) closeRecord(
	ctx context.Context,
	r attrepo.Storage,
	rec *attdomain.AttendanceRecord,
	at time.Time,
	reason string,
) error {
	if rec.LastStateChangeAt != nil {
		at = timeutil.MaxTime(at, *rec.LastStateChangeAt)
	}
	if _, err := attsvc.FinalizeRecord(ctx, r, rec, at); err != nil {
		return err
	}
	if err := r.CloseOpenSegments(ctx, rec.ID, at); err != nil {
		return err
	}
	totals := attdomain.MirrorTotals(rec.ActiveSeconds, rec.IdleSeconds, rec.LunchSeconds)
	if err := r.SetCheckOut(ctx, rec.ID, at, totals, "", "", reason); err != nil {
		return err
	}
	rec.CheckOutTime = &at
	return nil
}
