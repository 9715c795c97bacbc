package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/trusttai/api/internal/sse"
)

// Redis publishes each event on the pub/sub channel "<subject>:<kind>" and
// pattern-subscribes to "<subject>:*".
type Redis struct {
	rdb     *redis.Client
	subject string
}

func NewRedis(ctx context.Context, url, subject string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb, subject: subject}, nil
}

func (r *Redis) Publish(ctx context.Context, event sse.Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, topic(r.subject, ":", event.Message.Type), data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handle Handler) error {
	pattern := wildcard(r.subject, ":", "*")
	sub := r.rdb.PSubscribe(ctx, pattern)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting success.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	slog.Info("subscribed to event bus", "component", "bus", "driver", DriverRedis, "pattern", pattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn("dropping bus message", "component", "bus", "channel", msg.Channel, "error", err)
				continue
			}
			handle(event)
		}
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
