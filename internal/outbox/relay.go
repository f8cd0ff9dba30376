package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 100
)

// Relay polls a Source and publishes pending events in order. Delivery is at
// least once: an event is marked sent only after the broker accepted it.
type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewRelay(source Source, publisher Publisher, interval time.Duration, batchSize int, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Relay{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch of pending events. It stops at the first
// publish failure so that later events are never delivered ahead of it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	sent := make([]string, 0, len(events))
	var publishErr error
	for _, evt := range events {
		if err := r.publisher.Publish(ctx, evt.AggregateID, evt); err != nil {
			publishErr = fmt.Errorf("publish %s %s: %w", evt.EventType, evt.ID, err)
			break
		}
		sent = append(sent, evt.ID)
	}

	if len(sent) > 0 {
		if err := r.source.MarkSent(ctx, sent); err != nil {
			return 0, fmt.Errorf("mark events sent: %w", err)
		}
		r.logger.Debug("outbox events published", zap.Int("count", len(sent)))
	}
	return len(sent), publishErr
}
