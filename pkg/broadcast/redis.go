package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type redisPubSub interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// Redis carries claim announcements over a Redis pub/sub channel so
// replicas on different hosts hear each other.
type Redis struct {
	client  redisPubSub
	channel string
	logg    *logger.Logger
}

// NewRedis wraps an established redis client as a Broadcaster on the
// given channel.
func NewRedis(client redisPubSub, channel string, logg *logger.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("broadcast: redis client is required")
	}
	if channel == "" {
		return nil, errors.New("broadcast: channel is required")
	}
	if logg == nil {
		return nil, errors.New("broadcast: logger is required")
	}
	return &Redis{client: client, channel: channel, logg: logg}, nil
}

// Publish implements Broadcaster.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broadcast marshal: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, string(payload)); err != nil {
		return fmt.Errorf("broadcast publish: %w", err)
	}
	return nil
}

// Subscribe implements Broadcaster. Malformed messages are logged and
// skipped rather than tearing the subscription down.
func (r *Redis) Subscribe(ctx context.Context, handler func(Message)) error {
	sub, err := r.client.Subscribe(ctx, r.channel)
	if err != nil {
		return fmt.Errorf("broadcast subscribe: %w", err)
	}
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, open := <-messages:
			if !open {
				return errors.New("broadcast: subscription channel closed")
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logg.Warn(ctx, "broadcast: dropping malformed claim message")
				continue
			}
			handler(msg)
		}
	}
}
