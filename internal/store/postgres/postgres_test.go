package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/wardenhq/warden/internal/store"
)

// startPostgresContainer starts a PostgreSQL container for tests and returns
// a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresLifecycleAndReports(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	rec := store.Record{Name: "pgsvc", PID: 4321, StartedAt: started}
	if err := db.RecordStart(ctx, rec); err != nil {
		t.Fatalf("record start: %v", err)
	}

	running, err := db.GetRunning(ctx, "pg")
	if err != nil {
		t.Fatalf("get running: %v", err)
	}
	if len(running) != 1 || running[0].PID != 4321 || !running[0].Running {
		t.Fatalf("unexpected running set: %+v", running)
	}

	uniq := store.UniqueKey(4321, started)
	if err := db.RecordStop(ctx, uniq, started.Add(3*time.Second), errors.New("signal: killed")); err != nil {
		t.Fatalf("record stop: %v", err)
	}
	recs, err := db.GetByName(ctx, "pgsvc", 10)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(recs) != 1 || recs[0].Running || !recs[0].StoppedAt.Valid {
		t.Fatalf("unexpected record after stop: %+v", recs)
	}
	if recs[0].ExitErr.String != "signal: killed" {
		t.Fatalf("exit err: %q", recs[0].ExitErr.String)
	}

	rep := store.ReportRecord{AllOK: true, ReportJSON: `{"all_ok":true}`, GeneratedAt: time.Now().UTC()}
	if err := db.SaveReport(ctx, rep); err != nil {
		t.Fatalf("save report: %v", err)
	}
	latest, err := db.LatestReport(ctx)
	if err != nil {
		t.Fatalf("latest report: %v", err)
	}
	if !latest.AllOK {
		t.Fatalf("latest report: %+v", latest)
	}
}
