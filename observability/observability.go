// CLAUDE:SUMMARY Domain event log — durable records of maps, plans, and executions, never blocking the caller.
// Package observability records domain-level events (maps ingested, plans
// built, plans executed) in the service database. Writes are best-effort:
// a failing event store must never block the pipeline.
package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/chartfill/idgen"
)

// Schema creates the event table. Applied through dbopen on open.
const Schema = `
CREATE TABLE IF NOT EXISTS fill_events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	doctor_id  TEXT NOT NULL DEFAULT '',
	surface_id TEXT NOT NULL DEFAULT '',
	plan_id    TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '{}',
	success    INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fill_events_type ON fill_events(event_type, created_at);
CREATE INDEX IF NOT EXISTS idx_fill_events_doctor ON fill_events(doctor_id, created_at);
`

// Event types written by the agent.
const (
	EventMapIngested  = "map_ingested"
	EventPlanBuilt    = "plan_built"
	EventPlanExecuted = "plan_executed"
)

// Event is one domain-level occurrence.
type Event struct {
	EventType string
	DoctorID  string
	SurfaceID string
	PlanID    string
	Detail    string // optional JSON
	Success   bool
}

// EventLogger writes events to the service database.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records an event. Errors are logged via slog but do not propagate.
func (l *EventLogger) Log(ctx context.Context, event Event) {
	if event.Detail == "" {
		event.Detail = "{}"
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO fill_events (
			event_id, event_type, doctor_id, surface_id, plan_id,
			detail, success, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.DoctorID, event.SurfaceID, event.PlanID,
		event.Detail, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("event log failed", "error", err, "event_type", event.EventType)
	}
}

// CountByType returns how many events of a type exist, for stats surfaces.
func (l *EventLogger) CountByType(ctx context.Context, eventType string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fill_events WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}

// Cleanup deletes events older than the retention window. Returns rows removed.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM fill_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
