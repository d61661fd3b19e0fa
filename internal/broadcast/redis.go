// Package broadcast publishes cycle events to Redis pub/sub.
// Publishing is best-effort: a failed or absent sink never affects
// the trading pipeline.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event is the envelope published on every consensus decision.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CouncilID int64     `json:"council_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Sink publishes events to a topic.
type Sink interface {
	Publish(ctx context.Context, topic string, event Event)
	Close() error
}

// RedisSink is the production sink.
type RedisSink struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisSink connects a sink to Redis.
func NewRedisSink(addr, password string, dbNum int, logger zerolog.Logger) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       dbNum,
		}),
		logger: logger.With().Str("component", "broadcast").Logger(),
	}
}

// Publish marshals and publishes the event. Failures are logged and
// swallowed.
func (s *RedisSink) Publish(ctx context.Context, topic string, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal broadcast event")
		return
	}
	if err := s.client.Publish(ctx, topic, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("broadcast publish failed")
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

var _ Sink = (*RedisSink)(nil)
