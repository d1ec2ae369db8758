// Package scheduler runs the janitor jobs on a minute tick.
// Interval jobs fire when their period has elapsed, daily jobs when the
// server-local clock crosses their HH:MM. No external cron: the reconcilers
// are idempotent so a missed or doubled tick is harmless
package scheduler

import (
	"context"
	"sync"
	"time"

	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/timeutil"
)

// Job is one scheduled unit of work. Exactly one of Every or At must be set
type Job struct {
	Name string

	// Every runs the job each time the period has elapsed since its last run
	Every time.Duration

	// At runs the job once per day at "HH:MM" server-local time
	At string

	Run func(ctx context.Context) error
}

// Scheduler drives jobs from a single ticking goroutine. A job still in
// flight when its next slot arrives is skipped, not stacked
type Scheduler struct {
	jobs  []Job
	clock timeutil.Clock
	loc   *time.Location
	tick  time.Duration
	log   *logger.Logger

	mu       sync.Mutex
	lastRun  map[string]time.Time
	inFlight map[string]bool
}

// New constructs a scheduler ticking once a minute
func New(jobs []Job, clock timeutil.Clock, loc *time.Location) *Scheduler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		jobs:     jobs,
		clock:    clock,
		loc:      loc,
		tick:     time.Minute,
		log:      logger.Named("scheduler"),
		lastRun:  make(map[string]time.Time),
		inFlight: make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, evaluating every job once per tick
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	t := time.NewTicker(s.tick)
	defer t.Stop()

	s.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-t.C:
			s.evaluate(ctx)
		}
	}
}

// Tick evaluates all jobs once; exported for tests
func (s *Scheduler) Tick(ctx context.Context) { s.evaluate(ctx) }

func (s *Scheduler) evaluate(ctx context.Context) {
	now := s.clock.Now()
	for i := range s.jobs {
		j := s.jobs[i]
		if !s.due(j, now) {
			continue
		}
		s.mu.Lock()
		if s.inFlight[j.Name] {
			s.mu.Unlock()
			continue
		}
		s.inFlight[j.Name] = true
		s.lastRun[j.Name] = now
		s.mu.Unlock()

		go func() {
			defer func() {
				s.mu.Lock()
				s.inFlight[j.Name] = false
				s.mu.Unlock()
			}()
			if err := j.Run(ctx); err != nil {
				s.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
				return
			}
			s.log.Debug().Str("job", j.Name).Msg("job completed")
		}()
	}
}

func (s *Scheduler) due(j Job, now time.Time) bool {
	s.mu.Lock()
	last, ran := s.lastRun[j.Name]
	s.mu.Unlock()

	if j.Every > 0 {
		return !ran || now.Sub(last) >= j.Every
	}
	if j.At != "" {
		hm, err := time.ParseInLocation("15:04", j.At, s.loc)
		if err != nil {
			s.log.Error().Str("job", j.Name).Str("at", j.At).Msg("bad schedule, skipping")
			return false
		}
		local := now.In(s.loc)
		slot := time.Date(local.Year(), local.Month(), local.Day(), hm.Hour(), hm.Minute(), 0, 0, s.loc)
		// due once the slot has passed and we have not run since it
		return !local.Before(slot) && (!ran || last.In(s.loc).Before(slot))
	}
	return false
}
