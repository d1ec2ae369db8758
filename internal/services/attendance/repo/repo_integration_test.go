//go:build integration_pg
// +build integration_pg

package repo_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"timeclock/internal/platform/store"
	"timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo"
	"timeclock/internal/services/attendance/service"
	janrepo "timeclock/internal/services/janitor/repo"

	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres launches a disposable Postgres and returns DSN + stop func
func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openStore(t *testing.T, ctx context.Context, dsn string) *store.Store {
	t.Helper()

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	}, store.WithLogger(zerolog.New(io.Discard)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	ddl, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := st.PG.Exec(ctx, string(ddl)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return st
}

func ptr(tm time.Time) *time.Time { return &tm }

func TestFullDayAgainstPostgres(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st := openStore(t, ctx, dsn)
	svc := service.New(st.PG, repo.NewPG(), nil, nil, time.UTC)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	checkIn := day.Add(9 * time.Hour)

	if _, err := svc.CheckIn(ctx, domain.CheckInInput{
		UserID: "u-1", At: ptr(checkIn), IP: "10.0.0.1", Location: "office",
	}); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if _, err := svc.StartBreak(ctx, domain.BreakInput{
		UserID: "u-1", At: ptr(checkIn.Add(time.Hour)),
	}); err != nil {
		t.Fatalf("start break: %v", err)
	}
	if _, err := svc.EndBreak(ctx, domain.BreakInput{
		UserID: "u-1", At: ptr(checkIn.Add(90 * time.Minute)),
	}); err != nil {
		t.Fatalf("end break: %v", err)
	}
	rec, err := svc.CheckOut(ctx, domain.CheckOutInput{
		UserID: "u-1", At: ptr(checkIn.Add(2 * time.Hour)), Reason: "done",
	})
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}

	if rec.ActiveSeconds != 5400 || rec.LunchSeconds != 1800 || rec.IdleSeconds != 0 {
		t.Fatalf("counters: active=%d idle=%d lunch=%d", rec.ActiveSeconds, rec.IdleSeconds, rec.LunchSeconds)
	}
	if rec.TotalWorkDuration != 5400 || rec.TotalBreakDuration != 1800 {
		t.Fatalf("mirrors: work=%d break=%d", rec.TotalWorkDuration, rec.TotalBreakDuration)
	}

	// stored row agrees with the command result
	r := repo.NewPG().Bind(st.PG)
	got, err := r.Get(ctx, "u-1", day)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CheckOutTime == nil || !got.CheckOutTime.Equal(checkIn.Add(2*time.Hour)) {
		t.Fatalf("check_out_time = %v", got.CheckOutTime)
	}
	if got.CurrentState != "" || got.LastStateChangeAt != nil {
		t.Fatalf("record not finalized: state=%q", got.CurrentState)
	}

	// break row is closed with the credited duration
	if _, err := r.OpenBreak(ctx, got.ID); err == nil {
		t.Fatalf("expected no open break after check-out")
	}

	// every activity segment is closed
	n, err := store.Scalar[int64](ctx, st.PG, `
		SELECT count(*) FROM activity_logs
		WHERE attendance_record_id = $1 AND ended_at IS NULL
	`, got.ID)
	if err != nil {
		t.Fatalf("count open segments: %v", err)
	}
	if n != 0 {
		t.Fatalf("open segments after check-out: %d", n)
	}
}

func TestEnsureDailyAgainstPostgres(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st := openStore(t, ctx, dsn)
	if _, err := st.PG.Exec(ctx, `
		INSERT INTO users (id, is_active) VALUES ('u-1', TRUE), ('u-2', TRUE), ('u-3', FALSE)
	`); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	scans := janrepo.NewPG().Bind(st.PG)
	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	created, err := scans.EnsureDaily(ctx, day)
	if err != nil {
		t.Fatalf("ensure daily: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2 (active users only)", created)
	}

	// re-run is a no-op
	created, err = scans.EnsureDaily(ctx, day)
	if err != nil {
		t.Fatalf("ensure daily rerun: %v", err)
	}
	if created != 0 {
		t.Fatalf("rerun created = %d, want 0", created)
	}
}
