package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trusttai/api/internal/sse"
)

var ErrUnknownKind = errors.New("unknown event type")

// Recorder persists dispatched events.
type Recorder interface {
	Record(ctx context.Context, event sse.Event) error
}

// Alerter escalates events out of band. It decides itself which events
// warrant it.
type Alerter interface {
	SendAlert(ctx context.Context, event sse.Event) error
}

// Publisher carries events to every instance's streams.
type Publisher interface {
	Publish(ctx context.Context, event sse.Event) error
}

const alertQueueSize = 64

type Options struct {
	Publisher Publisher
	Recorder  Recorder
	Alerter   Alerter
	Now       func() time.Time
}

// Dispatcher is the single entry point for domain events: it stamps them,
// publishes them for delivery, records them and queues alerts.
type Dispatcher struct {
	publisher Publisher
	recorder  Recorder
	alerter   Alerter
	now       func() time.Time
	alerts    chan sse.Event
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		alerter:   opts.Alerter,
		now:       opts.Now,
		alerts:    make(chan sse.Event, alertQueueSize),
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Dispatch validates event and fills in its id and timestamp. A timestamp
// supplied by the caller must be RFC 3339; it is normalized to UTC
// milliseconds. Publishing must succeed before the event is recorded, so a
// failed dispatch leaves nothing in the event log. Recording itself is best
// effort.
func (d *Dispatcher) Dispatch(ctx context.Context, event sse.Event) (sse.Event, error) {
	if !event.Message.Type.IsDomain() {
		return sse.Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, event.Message.Type)
	}

	if event.Message.Timestamp == "" {
		event.Message.Timestamp = sse.FormatTimestamp(d.now())
	} else {
		ts, err := time.Parse(time.RFC3339Nano, event.Message.Timestamp)
		if err != nil {
			return sse.Event{}, fmt.Errorf("invalid timestamp %q: %w", event.Message.Timestamp, err)
		}
		event.Message.Timestamp = sse.FormatTimestamp(ts)
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	log := slog.With("component", "dispatch", "event_id", event.ID, "type", event.Message.Type)

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, event); err != nil {
			return sse.Event{}, fmt.Errorf("publishing event: %w", err)
		}
	}

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, event); err != nil {
			log.Error("failed to record event", "error", err)
		}
	}

	if d.alerter != nil {
		select {
		case d.alerts <- event:
		default:
			log.Warn("alert queue full, dropping alert")
		}
	}

	log.Debug("event dispatched", "audience", len(event.Audience))
	return event, nil
}

// RunAlerts sends queued alerts until ctx is cancelled.
func (d *Dispatcher) RunAlerts(ctx context.Context) {
	slog.Info("alert worker started", "component", "dispatch")
	for {
		select {
		case <-ctx.Done():
			slog.Info("alert worker stopped", "component", "dispatch")
			return
		case event := <-d.alerts:
			if d.alerter == nil {
				continue
			}
			if err := d.alerter.SendAlert(ctx, event); err != nil {
				slog.Error("failed to send alert", "component", "dispatch", "event_id", event.ID, "error", err)
			}
		}
	}
}

// Deliver hands an event received from the bus to the local streams.
func Deliver(hub *sse.Hub) func(sse.Event) {
	return func(event sse.Event) {
		n := hub.Broadcast(event)
		slog.Debug("event delivered", "component", "dispatch", "event_id", event.ID, "type", event.Message.Type, "streams", n)
	}
}
