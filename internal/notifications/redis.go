package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/services"
)

// RedisBus carries wake-ups over Redis pub/sub, one channel per stage.
type RedisBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisBus connects to cfg.RedisAddr and verifies it answers.
func NewRedisBus(ctx context.Context, cfg config.Notifications, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.RedisAddr},
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, services.Wrap(services.ErrConfiguration, "notifications", "connect redis", cfg.RedisAddr, err)
	}
	return &RedisBus{
		client: client,
		prefix: cfg.ChannelPrefix,
		logger: logging.NewComponentLogger(logger, "notifications"),
	}, nil
}

func (b *RedisBus) channel(stage string) string {
	return fmt.Sprintf("%s:wakeup:%s", b.prefix, stage)
}

func (b *RedisBus) Publish(ctx context.Context, wakeup Wakeup) error {
	encoded, err := json.Marshal(wakeup)
	if err != nil {
		return fmt.Errorf("encode wake-up: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(wakeup.Stage), encoded).Err(); err != nil {
		return fmt.Errorf("publish wake-up: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, stages ...string) (<-chan Wakeup, error) {
	channels := make([]string, 0, len(stages))
	for _, stage := range stages {
		channels = append(channels, b.channel(stage))
	}
	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe wake-ups: %w", err)
	}

	out := make(chan Wakeup, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var wakeup Wakeup
				if err := json.Unmarshal([]byte(msg.Payload), &wakeup); err != nil {
					logDropped(b.logger, "malformed payload", err)
					continue
				}
				select {
				case out <- wakeup:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
