package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trusttai/api/internal/database"
	"github.com/trusttai/api/internal/sse"
)

// TestDB creates an in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("running migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db.DB
}

// InsertEvent writes an event log row directly, bypassing the eventlog
// package, with an explicit creation time.
func InsertEvent(t *testing.T, db *sql.DB, kind sse.Kind, payload sse.Payload, createdAt time.Time) string {
	t.Helper()

	id := ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}

	_, err = db.ExecContext(context.Background(), `
		INSERT INTO admin_events (id, type, timestamp, payload, audience, created_at)
		VALUES (?, ?, ?, ?, '[]', ?)
	`, id, string(kind), sse.FormatTimestamp(createdAt), string(body), createdAt.UTC().Format(database.TimeLayout))
	if err != nil {
		t.Fatalf("inserting test event: %v", err)
	}
	return id
}
