package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clearinghouse/internal/event"
	"clearinghouse/internal/num"
	"clearinghouse/internal/observability"
	"clearinghouse/internal/persistence"
	"clearinghouse/internal/testutil"
)

func testEnvelope(seq int64) event.Envelope {
	payload := &event.MarginChanged{
		Trader:         uuid.New(),
		Market:         "BTC-PERP",
		Amount:         num.MustFromString("10"),
		FundingPayment: num.Zero(),
	}
	return event.Envelope{
		Sequence:  seq,
		Block:     1,
		EventType: payload.EventType(),
		MarketID:  payload.MarketID(),
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

func TestWorkerPersistsEvents(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	log := observability.NewLoggerWithLevel("persistence-test", zerolog.Disabled)
	migrator := persistence.NewMigrator(db, "../../migrations", log)
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	input := make(chan event.Envelope, 16)
	worker := persistence.NewWorker(db, input, 2, 10*time.Millisecond, log, nil)

	for seq := int64(1); seq <= 5; seq++ {
		input <- testEnvelope(seq)
	}
	close(input)

	// A closed channel drains the final partial batch and returns nil.
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM clearing.events").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 5 {
		t.Errorf("persisted events = %d, want 5", count)
	}

	var eventType, marketID string
	err := db.QueryRow(
		"SELECT event_type, market_id FROM clearing.events WHERE sequence = 3",
	).Scan(&eventType, &marketID)
	if err != nil {
		t.Fatalf("read event 3: %v", err)
	}
	if eventType != "MarginChanged" {
		t.Errorf("event_type = %q, want MarginChanged", eventType)
	}
	if marketID != "BTC-PERP" {
		t.Errorf("market_id = %q, want BTC-PERP", marketID)
	}
}

func TestWriterIgnoresDuplicateSequence(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	log := observability.NewLoggerWithLevel("persistence-test", zerolog.Disabled)
	migrator := persistence.NewMigrator(db, "../../migrations", log)
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)
	ctx := context.Background()

	env := testEnvelope(42)
	payload, err := persistence.MarshalEventPayload(env.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	row := persistence.EventRow{
		Sequence:  env.Sequence,
		Block:     int64(env.Block),
		EventType: env.EventType.String(),
		MarketID:  env.MarketID,
		Payload:   payload,
		Timestamp: env.Timestamp,
	}

	// A replayed batch (crash between write and ack) must not duplicate.
	for i := 0; i < 2; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteEventBatch(ctx, tx, []persistence.EventRow{row}); err != nil {
			t.Fatalf("write batch %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM clearing.events WHERE sequence = 42").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows for sequence 42 = %d, want 1", count)
	}
}
