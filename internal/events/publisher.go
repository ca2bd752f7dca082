package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SovereignSignal/discusswatch/internal/logger"
)

// asyncPublishTimeout is the context timeout for async publish operations.
const asyncPublishTimeout = 5 * time.Second

// Publisher publishes refresh events to a Redis Stream.
type Publisher struct {
	client *redis.Client
	stream string
	log    logger.Logger
}

// NewPublisher creates a new event publisher. Returns nil if client is nil;
// a nil Publisher is a safe no-op, so event publishing stays optional.
func NewPublisher(client *redis.Client, stream string, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{
		client: client,
		stream: stream,
		log:    log,
	}
}

// Publish sends an event to the stream.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event": string(payload),
		},
	})

	if publishErr := result.Err(); publishErr != nil {
		if p.log != nil {
			p.log.Error("failed to publish event",
				logger.String("event_type", string(event.EventType)),
				logger.String("source_id", event.SourceID),
				logger.Error(publishErr),
			)
		}
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	return nil
}

// PublishAsync publishes an event asynchronously. Errors are logged but not
// returned; refresh progress never blocks on the event stream.
func (p *Publisher) PublishAsync(event Event) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil && p.log != nil {
			p.log.Error("async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.String("source_id", event.SourceID),
				logger.Error(err),
			)
		}
	}()
}
