package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wardenhq/warden/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = "warden_events"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: opts.Table}, nil
}

// EnsureSchema creates the events table if missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type String,
		occurred_at DateTime64(3),
		name String,
		pid Int64,
		started_at DateTime64(3),
		stopped_at Nullable(DateTime64(3)),
		running UInt8,
		exit_err Nullable(String),
		report_json Nullable(String)
	) ENGINE = MergeTree() ORDER BY (occurred_at)`, s.table)
	return s.conn.Exec(ctx, q)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, name, pid, started_at, stopped_at, running, exit_err, report_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var stoppedAt any
	if e.Record.StoppedAt.Valid {
		stoppedAt = e.Record.StoppedAt.Time
	}
	// Report events carry no process record; a zero started_at is outside
	// DateTime64 range.
	startedAt := e.Record.StartedAt
	if startedAt.IsZero() {
		startedAt = e.OccurredAt
	}
	var exitErr any
	if e.Record.ExitErr.Valid {
		exitErr = e.Record.ExitErr.String
	}
	var reportJSON any
	if e.ReportJSON != "" {
		reportJSON = e.ReportJSON
	}
	running := uint8(0)
	if e.Record.Running {
		running = 1
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.Record.Name,
		int64(e.Record.PID),
		startedAt,
		stoppedAt,
		running,
		exitErr,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to send event to ClickHouse: %w", err)
	}
	return nil
}
