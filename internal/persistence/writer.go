package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventRow is one audit event as stored in clearing.events. Payload is the
// JSON-encoded event body; the envelope fields are broken out into columns
// so the log is queryable without unpacking JSON.
type EventRow struct {
	Sequence  int64
	Block     int64
	EventType string
	MarketID  string
	Payload   []byte
	Timestamp time.Time
}

// EventLogWriter appends audit events to Postgres using multi-row INSERT.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch inside the given transaction. Replays of
// an already-written sequence are silently skipped, so a retried flush
// never duplicates rows.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO clearing.events
		(sequence, block, event_type, market_id, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			e.Sequence, e.Block, e.EventType, e.MarketID, e.Payload, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarshalEventPayload serializes an event body for the payload column.
func MarshalEventPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
