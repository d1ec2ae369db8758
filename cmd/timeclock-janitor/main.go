package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"timeclock/internal/modkit"
	"timeclock/internal/modkit/module"
	"timeclock/internal/modkit/repokit"
	"timeclock/internal/platform/config"
	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/store"

	attmod "timeclock/internal/services/attendance/module"
	janmod "timeclock/internal/services/janitor/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	rdsCfg := root.Prefix("SERVICE_REDIS_")

	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		RDS: store.RedisConfig{
			Enabled: rdsCfg.MayBool("ENABLED", true),
			Addr:    rdsCfg.MayString("ADDR", "localhost:6379"),
			DB:      rdsCfg.MayInt("DB", 0),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// refuse to start with an unhealthy postgres or redis
	repokit.MustGuard(context.Background(), st)

	var (
		fMode = flag.String("mode", "run", "janitor mode: run | backfill | close-day | create-daily")
	)
	flag.Parse()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		KV:  st.RDS,
		Log: *l,
	}

	// the attendance module owns the command pipeline and the cache keys;
	// reconciler check-outs must go through the same path the API uses
	attendance := attmod.New(deps)
	attPorts := module.MustPortsOf[attmod.Ports](attendance)

	jan := janmod.New(
		deps,
		modkit.WithPorts(janmod.Ports{
			Checkout: attPorts.Commands,
			Cache:    attPorts.Cache,
		}),
	)

	module.Register(attendance.Name(), attendance.Ports())
	module.Register(jan.Name(), jan.Ports())

	rec := jan.Reconcilers()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *fMode {
	case "run":
		// days left open across a restart are closed before the schedule starts
		if err := rec.Backfill(ctx); err != nil {
			l.Error().Err(err).Msg("startup backfill failed")
		}
		jan.Scheduler().Run(ctx)

	case "backfill":
		if err := rec.Backfill(ctx); err != nil {
			l.Fatal().Err(err).Msg("backfill failed")
		}

	case "close-day":
		if err := rec.CloseDay(ctx); err != nil {
			l.Fatal().Err(err).Msg("end of day close failed")
		}

	case "create-daily":
		if err := rec.CreateDaily(ctx); err != nil {
			l.Fatal().Err(err).Msg("daily attendance creation failed")
		}

	default:
		l.Panic().Str("mode", *fMode).Msg("unknown -mode (expected: run | backfill | close-day | create-daily)")
	}
}
