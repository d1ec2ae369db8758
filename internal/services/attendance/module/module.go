// Package module wires attendance into the API using modkit
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

	"timeclock/internal/adapters/cache"
	atthttp "timeclock/internal/services/attendance/http"
	attrepo "timeclock/internal/services/attendance/repo"
	attsvc "timeclock/internal/services/attendance/service"
)

// Options tune the attendance module
type Options struct {
	CacheTTL time.Duration
}

// FromConfig reads ATTENDANCE_* env knobs
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("ATTENDANCE_")
	return Options{
		CacheTTL: c.MayDuration("CACHE_TTL", cache.DefaultTTL),
	}
}

// Module implements the attendance module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc attsvc.Service
}

// New constructs the attendance module
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append(
		[]modkit.Option{modkit.WithName("attendance"), modkit.WithPrefix("/attendance")},
		opts...,
	)...)

	o := FromConfig(deps.Cfg)
	act := cache.NewRedis(deps.KV, o.CacheTTL)
	loc := timeutil.LoadLocation(deps.Cfg)

	// commands hold a record row lock for their whole critical section;
	// bound the wait so a wedged tx surfaces as an error instead of a pile-up
	db := repokit.WithBeginHooks(deps.PG, repokit.LockTimeout(5*time.Second))

	svc := attsvc.New(db, attrepo.NewPG(), act, timeutil.SystemClock{}, loc)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Commands: svc, Queries: svc, Cache: act}

	external := b.Register
	m.register = func(r httpkit.Router) {
		atthttp.Register(r, m.svc)
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
