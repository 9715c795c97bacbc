package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/trusttai/api/internal/sse"
)

const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
	DriverRedis  = "redis"
)

var ErrClosed = errors.New("bus closed")

// Handler receives every event published on the bus, including events
// published by this process.
type Handler func(sse.Event)

// Bus fans dispatched events out to every API instance. Each instance
// subscribes once and broadcasts what it receives to its own streams.
type Bus interface {
	Publish(ctx context.Context, event sse.Event) error
	// Subscribe delivers events to handle until ctx is done.
	Subscribe(ctx context.Context, handle Handler) error
	Close() error
}

// Connected reports whether b can currently reach its broker. Drivers that
// cannot tell are assumed connected.
func Connected(b Bus) bool {
	if c, ok := b.(interface{ IsConnected() bool }); ok {
		return c.IsConnected()
	}
	return true
}

type Options struct {
	Driver   string
	NATSURL  string
	RedisURL string
	Subject  string
}

func New(ctx context.Context, opts Options) (Bus, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverNATS:
		return NewNATS(opts.NATSURL, opts.Subject)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL, opts.Subject)
	default:
		return nil, fmt.Errorf("unknown bus driver %q", opts.Driver)
	}
}

// envelope is the wire form shared by the broker drivers.
type envelope struct {
	ID        string      `json:"id,omitempty"`
	Type      sse.Kind    `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	Payload   sse.Payload `json:"payload,omitempty"`
	Audience  []string    `json:"audience,omitempty"`
}

func encode(event sse.Event) ([]byte, error) {
	data, err := json.Marshal(envelope{
		ID:        event.ID,
		Type:      event.Message.Type,
		Timestamp: event.Message.Timestamp,
		Payload:   event.Message.Payload,
		Audience:  event.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", event.Message.Type, err)
	}
	return data, nil
}

func decode(data []byte) (sse.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return sse.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if !env.Type.IsDomain() {
		return sse.Event{}, fmt.Errorf("decoding event: unknown type %q", env.Type)
	}
	return sse.Event{
		ID: env.ID,
		Message: sse.Message{
			Type:      env.Type,
			Timestamp: env.Timestamp,
			Payload:   env.Payload,
		},
		Audience: env.Audience,
	}, nil
}

// topic joins the configured prefix and the event kind.
func topic(prefix, sep string, kind sse.Kind) string {
	return join(prefix, sep, string(kind))
}

// wildcard is the subscription pattern matching every topic under prefix.
func wildcard(prefix, sep, match string) string {
	return join(prefix, sep, match)
}

func join(prefix, sep, last string) string {
	return strings.TrimSuffix(prefix, sep) + sep + last
}
