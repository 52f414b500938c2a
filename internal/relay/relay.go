// Package relay fans accepted document updates out to other service
// instances over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"collab-dashboard/internal/message"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 64

type envelope struct {
	Origin string         `json:"origin"`
	Update message.Update `json:"update"`
}

type Redis struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

func NewRedis(redisURL, channel string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, channel, logger), nil
}

func NewRedisWithClient(client *redis.Client, channel string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this instance on the relay channel.
func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) Publish(ctx context.Context, update message.Update) error {
	payload, err := json.Marshal(envelope{Origin: r.origin, Update: update})
	if err != nil {
		return fmt.Errorf("marshal relay update: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish relay update: %w", err)
	}
	return nil
}

// Subscribe delivers updates published by other instances until ctx is
// cancelled. Updates this instance published itself are skipped.
func (r *Redis) Subscribe(ctx context.Context) (<-chan message.Update, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan message.Update, subscriptionBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("dropping malformed relay message", "err", err)
					continue
				}
				if env.Origin == r.origin {
					continue
				}
				select {
				case out <- env.Update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
