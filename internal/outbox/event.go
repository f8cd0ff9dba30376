// Package outbox relays domain events that were written in the same
// transaction as the state change to the message broker.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a pending domain event and the envelope published to the broker.
type Event struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewEvent(eventType, aggregateID string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          uuid.New().String(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Data:        data,
		Timestamp:   now,
	}, nil
}

// Source returns unsent events in the order they were written.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, ids []string) error
}

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
