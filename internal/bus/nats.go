package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/trusttai/api/internal/sse"
)

// NATS publishes each event on "<subject>.<kind>". Every instance subscribes
// to "<subject>.>" without a queue group, so all of them see every event.
type NATS struct {
	nc      *nats.Conn
	subject string
}

func NewNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("trusttai-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "component", "bus", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "component", "bus", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATS{nc: nc, subject: subject}, nil
}

func (n *NATS) Publish(ctx context.Context, event sse.Event) error {
	if n.nc.IsClosed() {
		return ErrClosed
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(topic(n.subject, ".", event.Message.Type), data); err != nil {
		return fmt.Errorf("publish to nats: %w", err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, handle Handler) error {
	sub, err := n.nc.Subscribe(wildcard(n.subject, ".", ">"), func(msg *nats.Msg) {
		event, err := decode(msg.Data)
		if err != nil {
			slog.Warn("dropping bus message", "component", "bus", "subject", msg.Subject, "error", err)
			return
		}
		handle(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe to nats: %w", err)
	}
	slog.Info("subscribed to event bus", "component", "bus", "driver", DriverNATS, "subject", sub.Subject)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !n.nc.IsClosed() {
		return fmt.Errorf("unsubscribe from nats: %w", err)
	}
	return nil
}

func (n *NATS) IsConnected() bool {
	return n.nc != nil && n.nc.Status() == nats.CONNECTED
}

func (n *NATS) Close() error {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
	return nil
}
