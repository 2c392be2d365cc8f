package history

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart  EventType = "start"
	EventStop   EventType = "stop"
	EventReport EventType = "report"
)

// Event represents a lifecycle or diagnostics event to be exported to
// external systems.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
	// ReportJSON carries the serialized diagnostics report for
	// EventReport events; empty otherwise.
	ReportJSON string `json:"report_json,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
