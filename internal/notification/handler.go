package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/outbox"
)

type Sender interface {
	SendOrderConfirmation(to string, c email.Confirmation) error
}

type Users interface {
	FindUserByID(ctx context.Context, id string) (*user.User, error)
}

// Deduplicator guards against sending twice when the broker redelivers.
type Deduplicator interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Handler processes events for sending notifications
type Handler struct {
	sender Sender
	users  Users
	dedup  Deduplicator
	logger *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender Sender, users Users, dedup Deduplicator, logger *zap.Logger) *Handler {
	return &Handler{
		sender: sender,
		users:  users,
		dedup:  dedup,
		logger: logger.Named("notifier"),
	}
}

// HandleEvent processes an outbox envelope from Kafka. An error means the
// message should be delivered again; payloads that can never succeed are
// logged and dropped.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event outbox.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("dropping undecodable event", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	// Only process OrderPlaced events
	if event.EventType != order.EventOrderPlaced {
		return nil
	}

	if h.dedup != nil {
		first, err := h.dedup.FirstSeen(ctx, event.ID)
		if err != nil {
			h.logger.Warn("dedup check failed, sending anyway", zap.String("event_id", event.ID), zap.Error(err))
		} else if !first {
			h.logger.Debug("duplicate event skipped", zap.String("event_id", event.ID))
			return nil
		}
	}

	if err := h.handleOrderPlaced(ctx, event); err != nil {
		if h.dedup != nil {
			_ = h.dedup.Forget(ctx, event.ID)
		}
		return err
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event outbox.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("dropping undecodable payload", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	u, err := h.users.FindUserByID(ctx, e.UserID)
	if err != nil {
		// A missing user cannot be retried into existence.
		h.logger.Warn("user not found for order", zap.String("order_id", e.OrderID), zap.String("user_id", e.UserID), zap.Error(err))
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		items[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	err = h.sender.SendOrderConfirmation(u.Email, email.Confirmation{
		OrderID:         e.OrderID,
		CustomerName:    u.FullName,
		ShippingAddress: e.ShippingAddress,
		Total:           e.Total,
		Items:           items,
	})
	if err != nil {
		h.logger.Error("failed to send confirmation", zap.String("order_id", e.OrderID), zap.Error(err))
		return err
	}

	h.logger.Info("order confirmation sent", zap.String("order_id", e.OrderID), zap.String("user_id", u.ID))
	return nil
}
