package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one row of persisted process state: the latest observed run
// for a uniquely keyed (pid, started_at) instance.
type Record struct {
	ID        int64
	Name      string
	PID       int
	StartedAt time.Time
	StoppedAt sql.NullTime
	Running   bool
	ExitErr   sql.NullString
	Uniq      string
	UpdatedAt time.Time
}

// Key derives the unique run key for this record.
func (r Record) Key() string { return UniqueKey(r.PID, r.StartedAt) }

// SetStoppedAt marks the record stopped at t.
func (r *Record) SetStoppedAt(t time.Time) {
	r.StoppedAt = sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// SetExitErr records the exit error string.
func (r *Record) SetExitErr(msg string) {
	r.ExitErr = sql.NullString{String: msg, Valid: msg != ""}
}

// UniqueKey identifies a single run of a process.
func UniqueKey(pid int, startedAt time.Time) string {
	return fmt.Sprintf("%d-%d", pid, startedAt.UTC().UnixNano())
}

// ReportRecord persists one diagnostics run as a JSON document plus the
// derived overall flag, so automation can query the latest gate decision.
type ReportRecord struct {
	ID          int64
	AllOK       bool
	ReportJSON  string
	GeneratedAt time.Time
}

// Store persists process lifecycle events and diagnostic reports.
// Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordStart(ctx context.Context, rec Record) error
	RecordStop(ctx context.Context, uniq string, stoppedAt time.Time, exitErr error) error
	UpsertStatus(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string, limit int) ([]Record, error)
	GetRunning(ctx context.Context, namePrefix string) ([]Record, error)
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	SaveReport(ctx context.Context, rep ReportRecord) error
	LatestReport(ctx context.Context) (ReportRecord, error)
	Close() error
}
