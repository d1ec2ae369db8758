// Package api composes the HTTP API for the application
package api

import (
	"timeclock/internal/platform/config"
	"timeclock/internal/platform/logger"
	phttp "timeclock/internal/platform/net/http"
	"timeclock/internal/platform/store"

	"timeclock/internal/modkit"
	"timeclock/internal/modkit/httpkit"
	"timeclock/internal/modkit/module"

	attmod "timeclock/internal/services/attendance/module"
	hbmod "timeclock/internal/services/heartbeat/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
		KV:  opt.Store.RDS,
	}

	// Attendance owns the command pipeline and the activity cache; build it
	// first and hand its ports to the heartbeat module so both speak to the
	// same state machine and the same user:{id}:* keys
	attendance := attmod.New(deps)
	attPorts := module.MustPortsOf[attmod.Ports](attendance)

	heartbeat := hbmod.New(
		deps,
		modkit.WithPorts(hbmod.Ports{
			Checkout: attPorts.Commands,
			Cache:    attPorts.Cache,
		}),
	)

	mods := []module.Module{
		attendance,
		heartbeat,
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
