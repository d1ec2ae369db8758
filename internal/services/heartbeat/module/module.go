// Package module wires heartbeat ingestion into the API using modkit
package module

import (
	"net/http"
	"time"

	modkit "timeclock/internal/modkit"
	"timeclock/internal/modkit/httpkit"
	"timeclock/internal/modkit/repokit"
	"timeclock/internal/platform/config"
	str "timeclock/internal/platform/strings"
	"timeclock/internal/platform/timeutil"

	hbhttp "timeclock/internal/services/heartbeat/http"
	hbrepo "timeclock/internal/services/heartbeat/repo"
	hbsvc "timeclock/internal/services/heartbeat/service"

	attrepo "timeclock/internal/services/attendance/repo"
)

// Options tune the heartbeat module
type Options struct {
	IdleAfter         time.Duration
	AutoCheckoutAfter time.Duration
}

// FromConfig reads HEARTBEAT_* env knobs
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("HEARTBEAT_")
	return Options{
		IdleAfter:         c.MayDuration("IDLE_AFTER", 5*time.Minute),
		AutoCheckoutAfter: c.MayDuration("AUTO_CHECKOUT_AFTER", 60*time.Minute),
	}
}

// Module implements the heartbeat module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc hbsvc.Service
}

// New constructs the heartbeat module. The attendance module must be built
// first and its ports injected via modkit.WithPorts so heartbeats drive the
// same command pipeline and cache keys
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append(
		[]modkit.Option{modkit.WithName("heartbeat"), modkit.WithPrefix("/heartbeat")},
		opts...,
	)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Checkout == nil {
		panic("heartbeat module requires the attendance command port (modkit.WithPorts)")
	}
	if injected.Cache == nil {
		panic("heartbeat module requires the shared activity cache (modkit.WithPorts)")
	}

	o := FromConfig(deps.Cfg)
	loc := timeutil.LoadLocation(deps.Cfg)

	svc := hbsvc.New(
		repokit.WithBeginHooks(deps.PG, repokit.LockTimeout(5*time.Second)),
		attrepo.NewPG(),
		hbrepo.NewPG(),
		injected.Checkout,
		injected.Cache,
		deps.CH,
		timeutil.SystemClock{},
		loc,
		hbsvc.Config{IdleAfter: o.IdleAfter, AutoCheckoutAfter: o.AutoCheckoutAfter},
	)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		ports:     injected,
		subrouter: b.Subrouter,
		svc:       svc,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		hbhttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }
