package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redisBroadcastChannel = "ssoclient:broadcast"

// RedisBus carries sync messages over a Redis Pub/Sub channel, so separate
// processes of the same client context hear each other.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	logger  zerolog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

// NewRedisBus creates a Redis-backed bus. namespace isolates independent
// client contexts sharing one Redis database.
func NewRedisBus(rdb *redis.Client, namespace string) *RedisBus {
	channel := redisBroadcastChannel
	if namespace != "" {
		channel = redisBroadcastChannel + ":" + namespace
	}
	return &RedisBus{rdb: rdb, channel: channel, logger: log.Logger}
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "[RedisBus.Publish] marshal message")
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "[RedisBus.Publish] redis PUBLISH")
	}
	return nil
}

func (b *RedisBus) Subscribe(handler func(Message)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("[RedisBus.Subscribe] bus is closed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancels = append(b.cancels, cancel)

	pubsub := b.rdb.Subscribe(ctx, b.channel)

	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Debug().Err(err).Msg("broadcast pubsub close failed")
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn().Err(err).Msg("dropping malformed broadcast message")
					continue
				}
				handler(msg)
			}
		}
	}()

	return cancel, nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	return nil
}
