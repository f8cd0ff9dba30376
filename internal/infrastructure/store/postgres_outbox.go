package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/ec-storefront/internal/outbox"
	"github.com/lib/pq"
)

// PostgresOutbox reads and acknowledges events written by checkout
// transactions.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

func insertOutbox(ctx context.Context, q querier, evt outbox.Event) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_id, event_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.ID, evt.AggregateID, evt.EventType, []byte(evt.Data), evt.Timestamp)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) FetchPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, data, created_at
		FROM outbox WHERE sent_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var evt outbox.Event
		var data []byte
		if err := rows.Scan(&evt.ID, &evt.AggregateID, &evt.EventType, &data, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		evt.Data = data
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (o *PostgresOutbox) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET sent_at = NOW() WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}
