// Package events publishes offer inventory lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/gobacklinks/internal/ingest"
	"github.com/jonesrussell/gobacklinks/internal/logger"
)

// StreamName is the Redis stream all offer events are appended to.
const StreamName = "backlinks:events"

// asyncPublishTimeout is the context timeout for async publish operations.
const asyncPublishTimeout = 5 * time.Second

// EventType identifies the kind of event on the stream.
type EventType string

const (
	EventImportCompleted    EventType = "import.completed"
	EventMarketplaceCreated EventType = "marketplace.created"
)

// Event is the envelope written to the stream.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ImportCompletedPayload summarizes a finished upload.
type ImportCompletedPayload struct {
	MarketplaceSlug string `json:"marketplace_slug"`
	TotalRows       int    `json:"total_rows_processed"`
	Successful      int    `json:"successful_imports"`
	Failed          int    `json:"failed_imports"`
	NewOffers       int    `json:"new_offers_added"`
	UpdatedOffers   int    `json:"updated_offers"`
}

// MarketplaceCreatedPayload announces a marketplace first seen by ingestion.
type MarketplaceCreatedPayload struct {
	MarketplaceID   int64  `json:"marketplace_id"`
	MarketplaceName string `json:"marketplace_name"`
	MarketplaceSlug string `json:"marketplace_slug"`
}

// Publisher publishes events to Redis Streams.
type Publisher struct {
	client *redis.Client
	log    logger.Logger
	wg     sync.WaitGroup
}

var _ ingest.Publisher = (*Publisher)(nil)

// NewPublisher creates a new event publisher.
// Returns nil if client is nil.
func NewPublisher(client *redis.Client, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{
		client: client,
		log:    log,
	}
}

// Publish sends an event to the Redis stream.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil // No-op if publisher not configured
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
		Stream: StreamName,
		Values: map[string]any{
			"event": string(payload),
		},
	})

	if publishErr := result.Err(); publishErr != nil {
		if p.log != nil {
			p.log.Error("Failed to publish event",
				logger.String("event_type", string(event.EventType)),
				logger.Error(publishErr),
			)
		}
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	if p.log != nil {
		p.log.Info("Published event",
			logger.String("event_type", string(event.EventType)),
			logger.String("stream_id", result.Val()),
		)
	}

	return nil
}

// PublishAsync publishes an event asynchronously.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event Event) {
	if p == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil && p.log != nil {
			p.log.Error("Async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.Error(err),
			)
		}
	}()
}

// Close waits for in-flight async publishes to finish. Each is bounded by
// asyncPublishTimeout, so Close returns promptly. The Redis client is not
// closed; the caller owns it.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.wg.Wait()
	return nil
}

// ImportCompleted satisfies the ingestion pipeline's publisher hook.
func (p *Publisher) ImportCompleted(_ context.Context, marketplaceSlug string, result *ingest.Result) {
	if p == nil || result == nil {
		return
	}
	p.PublishAsync(Event{
		EventType: EventImportCompleted,
		Payload: ImportCompletedPayload{
			MarketplaceSlug: marketplaceSlug,
			TotalRows:       result.TotalRows,
			Successful:      result.Successful,
			Failed:          result.Failed,
			NewOffers:       result.NewOffers,
			UpdatedOffers:   result.UpdatedOffers,
		},
	})
}

// MarketplaceCreated publishes a marketplace.created event.
func (p *Publisher) MarketplaceCreated(marketplaceID int64, name, slug string) {
	if p == nil {
		return
	}
	p.PublishAsync(Event{
		EventType: EventMarketplaceCreated,
		Payload: MarketplaceCreatedPayload{
			MarketplaceID:   marketplaceID,
			MarketplaceName: name,
			MarketplaceSlug: slug,
		},
	})
}
