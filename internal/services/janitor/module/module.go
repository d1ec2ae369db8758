// Package module wires the janitor reconcilers using modkit
package module

import (
	"time"

	modkit "timeclock/internal/modkit"
	"timeclock/internal/modkit/httpkit"
	"timeclock/internal/modkit/repokit"
	"timeclock/internal/platform/config"
	str "timeclock/internal/platform/strings"
	"timeclock/internal/platform/timeutil"

	attrepo "timeclock/internal/services/attendance/repo"
	jandomain "timeclock/internal/services/janitor/domain"
	janrepo "timeclock/internal/services/janitor/repo"
	"timeclock/internal/services/janitor/scheduler"
	jansvc "timeclock/internal/services/janitor/service"
)

// Options tune the janitor module
type Options struct {
	BreakCap         time.Duration
	IdleCap          time.Duration
	GapIdleAfter     time.Duration
	GapCheckoutAfter time.Duration
	DeadTail         time.Duration

	BreakSweepEvery time.Duration
	IdleSweepEvery  time.Duration
	GapSweepEvery   time.Duration
	CloseDayAt      string
	CreateDailyAt   string
}

// FromConfig reads JANITOR_* env knobs
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("JANITOR_")
	return Options{
		BreakCap:         c.MayDuration("BREAK_CAP", 2*time.Hour),
		IdleCap:          c.MayDuration("IDLE_CAP", 30*time.Minute),
		GapIdleAfter:     c.MayDuration("GAP_IDLE_AFTER", 5*time.Minute),
		GapCheckoutAfter: c.MayDuration("GAP_CHECKOUT_AFTER", 60*time.Minute),
		DeadTail:         c.MayDuration("DEAD_TAIL", 15*time.Minute),

		BreakSweepEvery: c.MayDuration("BREAK_SWEEP_EVERY", 5*time.Minute),
		IdleSweepEvery:  c.MayDuration("IDLE_SWEEP_EVERY", 5*time.Minute),
		GapSweepEvery:   c.MayDuration("GAP_SWEEP_EVERY", time.Minute),
		CloseDayAt:      c.MayString("CLOSE_DAY_AT", "23:59"),
		CreateDailyAt:   c.MayString("CREATE_DAILY_AT", "00:00"),
	}
}

// Module hosts the reconcilers and their schedule. It mounts no routes; the
// janitor binary drives it through Scheduler and the ReconcilerPort
type Module struct {
	deps  modkit.Deps
	name  string
	ports any

	svc   jansvc.Service
	sched *scheduler.Scheduler
}

// New constructs the janitor module. Attendance ports must be injected via
// modkit.WithPorts so reconciler check-outs reuse the command pipeline and
// the shared cache keys
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("janitor")}, opts...)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Checkout == nil {
		panic("janitor module requires the attendance command port (modkit.WithPorts)")
	}
	if injected.Cache == nil {
		panic("janitor module requires the shared activity cache (modkit.WithPorts)")
	}

	o := FromConfig(deps.Cfg)
	loc := timeutil.LoadLocation(deps.Cfg)
	clock := timeutil.SystemClock{}

	svc := jansvc.New(
		repokit.WithBeginHooks(deps.PG, repokit.LockTimeout(5*time.Second)),
		attrepo.NewPG(),
		janrepo.NewPG(),
		injected.Checkout,
		injected.Cache,
		clock,
		loc,
		jansvc.Config{
			BreakCap:         o.BreakCap,
			IdleCap:          o.IdleCap,
			GapIdleAfter:     o.GapIdleAfter,
			GapCheckoutAfter: o.GapCheckoutAfter,
			DeadTail:         o.DeadTail,
		},
	)

	sched := scheduler.New([]scheduler.Job{
		{Name: "excessive-break-closer", Every: o.BreakSweepEvery, Run: svc.CloseExcessiveBreaks},
		{Name: "excessive-idle-closer", Every: o.IdleSweepEvery, Run: svc.CloseExcessiveIdle},
		{Name: "gap-detector", Every: o.GapSweepEvery, Run: svc.DetectGaps},
		{Name: "end-of-day-closer", At: o.CloseDayAt, Run: svc.CloseDay},
		{Name: "daily-attendance-creator", At: o.CreateDailyAt, Run: svc.CreateDaily},
	}, clock, loc)

	m := &Module{deps: deps, name: b.Name, svc: svc, sched: sched}
	m.ports = Ports{Checkout: injected.Checkout, Cache: injected.Cache, Reconcilers: svc}
	return m
}

// MountRoutes satisfies modkit.Module; the janitor exposes no HTTP surface
func (m *Module) MountRoutes(httpkit.Router) {}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Reconcilers returns the reconciler port for the host binary
func (m *Module) Reconcilers() jandomain.ReconcilerPort { return m.svc }

// Scheduler returns the configured job schedule
func (m *Module) Scheduler() *scheduler.Scheduler { return m.sched }
