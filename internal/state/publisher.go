package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scenarioflow/pkg/models"
)

const (
	// PushChannel is the Redis pub/sub channel carrying push events for
	// all users; the envelope routes each event to its owner's sockets.
	PushChannel = "scenarioflow:push"
)

// Envelope wraps a push event with its routing target
type Envelope struct {
	UserID string           `json:"user_id"`
	Event  models.PushEvent `json:"event"`
}

// Publisher delivers push events towards connected clients
type Publisher interface {
	Publish(userID string, event models.PushEvent) error
}

// NoOpPublisher discards events; used in tests
type NoOpPublisher struct{}

// Publish does nothing
func (p *NoOpPublisher) Publish(userID string, event models.PushEvent) error {
	return nil
}

// RedisPublisher publishes push events to Redis pub/sub, from where the
// websocket gateway fans them out to the owner's connections.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Redis-backed push event publisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish publishes one event envelope to the push channel
func (p *RedisPublisher) Publish(userID string, event models.PushEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(Envelope{UserID: userID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal push envelope: %w", err)
	}

	if err := p.client.Publish(ctx, PushChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Subscribe consumes push envelopes until the context is cancelled,
// passing each to the handler. Malformed payloads are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := p.client.Subscribe(ctx, PushChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			handler(env)
		}
	}
}
