package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trusttai/api/internal/database"
	"github.com/trusttai/api/internal/sse"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type row struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	Timestamp string `db:"timestamp"`
	Payload   string `db:"payload"`
	Audience  string `db:"audience"`
	CreatedAt string `db:"created_at"`
}

// Repository records published admin events so callers that missed them on
// the stream can pull them later.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(db, "sqlite"), now: time.Now}
}

// Record stores event. event.ID must be set and sort after earlier ids.
func (r *Repository) Record(ctx context.Context, event sse.Event) error {
	payload := event.Message.Payload
	if payload == nil {
		payload = sse.Payload{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	audience := event.Audience
	if audience == nil {
		audience = []string{}
	}
	audienceJSON, err := json.Marshal(audience)
	if err != nil {
		return fmt.Errorf("encoding audience: %w", err)
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO admin_events (id, type, timestamp, payload, audience, created_at)
		VALUES (:id, :type, :timestamp, :payload, :audience, :created_at)
	`, row{
		ID:        event.ID,
		Type:      string(event.Message.Type),
		Timestamp: event.Message.Timestamp,
		Payload:   string(payloadJSON),
		Audience:  string(audienceJSON),
		CreatedAt: r.now().UTC().Format(database.TimeLayout),
	})
	if err != nil {
		return fmt.Errorf("recording event %s: %w", event.ID, err)
	}
	return nil
}

type ListOptions struct {
	// Since excludes events up to and including this id.
	Since string
	// AdminID keeps only events whose audience reaches this admin.
	AdminID string
	Limit   int
}

// ListSince returns events after opts.Since, oldest first.
func (r *Repository) ListSince(ctx context.Context, opts ListOptions) ([]sse.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var events []sse.Event
	cursor := opts.Since
	// Audience filtering happens after the query, so keep paging until the
	// page is full or the log is exhausted.
	for len(events) < limit {
		var rows []row
		err := r.db.SelectContext(ctx, &rows, `
			SELECT id, type, timestamp, payload, audience, created_at
			FROM admin_events
			WHERE id > ?
			ORDER BY id
			LIMIT ?
		`, cursor, limit)
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}

		for _, rw := range rows {
			event, err := rw.event()
			if err != nil {
				return nil, err
			}
			if opts.AdminID != "" && !event.Reaches(opts.AdminID) {
				continue
			}
			events = append(events, event)
			if len(events) == limit {
				break
			}
		}

		if len(rows) < limit {
			break
		}
		cursor = rows[len(rows)-1].ID
	}

	return events, nil
}

// DeleteOlderThan removes events recorded before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM admin_events WHERE created_at < ?
	`, cutoff.UTC().Format(database.TimeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}
	return result.RowsAffected()
}

func (rw row) event() (sse.Event, error) {
	var payload sse.Payload
	if err := json.Unmarshal([]byte(rw.Payload), &payload); err != nil {
		return sse.Event{}, fmt.Errorf("decoding payload of %s: %w", rw.ID, err)
	}
	if len(payload) == 0 {
		payload = nil
	}
	var audience []string
	if err := json.Unmarshal([]byte(rw.Audience), &audience); err != nil {
		return sse.Event{}, fmt.Errorf("decoding audience of %s: %w", rw.ID, err)
	}
	if len(audience) == 0 {
		audience = nil
	}

	return sse.Event{
		ID: rw.ID,
		Message: sse.Message{
			Type:      sse.Kind(rw.Type),
			Timestamp: rw.Timestamp,
			Payload:   payload,
		},
		Audience: audience,
	}, nil
}
