package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/notification"
	"github.com/example/ec-storefront/internal/outbox"
)

type sentMail struct {
	to string
	c  email.Confirmation
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) SendOrderConfirmation(to string, c email.Confirmation) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, c: c})
	return nil
}

func setup(t *testing.T) (*store.MemoryStore, *fakeSender, *store.MemoryDeduplicator, *notification.Handler) {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateUser(context.Background(), &user.User{
		ID:       "u-1",
		Email:    "taro@example.com",
		FullName: "Taro Yamada",
		Role:     user.RoleCustomer,
		IsActive: true,
	}))
	sender := &fakeSender{}
	dedup := store.NewMemoryDeduplicator()
	return s, sender, dedup, notification.NewHandler(sender, s, dedup, zap.NewNop())
}

func placedEvent(t *testing.T, userID string) []byte {
	t.Helper()
	placed := order.OrderPlaced{
		OrderID: "o-1",
		UserID:  userID,
		Items: []order.Item{
			{ProductID: "p-1", ProductName: "Tea", Quantity: 2, Price: decimal.RequireFromString("3.50")},
		},
		Total:           decimal.RequireFromString("7.00"),
		ShippingAddress: "1-2-3 Shibuya",
		PlacedAt:        time.Now(),
	}
	ev, err := outbox.NewEvent(order.EventOrderPlaced, placed.OrderID, placed, time.Now())
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return raw
}

// =============================================================================
// HandleEvent
// =============================================================================

func TestHandleEvent_SendsConfirmation(t *testing.T) {
	_, sender, _, h := setup(t)

	require.NoError(t, h.HandleEvent(context.Background(), []byte("o-1"), placedEvent(t, "u-1")))

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "taro@example.com", got.to)
	assert.Equal(t, "o-1", got.c.OrderID)
	assert.Equal(t, "Taro Yamada", got.c.CustomerName)
	assert.Equal(t, "1-2-3 Shibuya", got.c.ShippingAddress)
	assert.True(t, got.c.Total.Equal(decimal.RequireFromString("7")))
	require.Len(t, got.c.Items, 1)
	assert.Equal(t, "Tea", got.c.Items[0].Name)
	assert.Equal(t, 2, got.c.Items[0].Quantity)
}

func TestHandleEvent_SkipsRedelivery(t *testing.T) {
	_, sender, _, h := setup(t)
	raw := placedEvent(t, "u-1")

	require.NoError(t, h.HandleEvent(context.Background(), nil, raw))
	require.NoError(t, h.HandleEvent(context.Background(), nil, raw))

	assert.Len(t, sender.sent, 1)
}

func TestHandleEvent_SendFailureAllowsRetry(t *testing.T) {
	_, sender, _, h := setup(t)
	raw := placedEvent(t, "u-1")

	sender.err = errors.New("smtp down")
	require.Error(t, h.HandleEvent(context.Background(), nil, raw))

	sender.err = nil
	require.NoError(t, h.HandleEvent(context.Background(), nil, raw))
	assert.Len(t, sender.sent, 1)
}

func TestHandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	_, sender, _, h := setup(t)
	ev, err := outbox.NewEvent("OrderStatusChanged", "o-1", map[string]string{"status": "shipped"}, time.Now())
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, h.HandleEvent(context.Background(), nil, raw))
	assert.Empty(t, sender.sent)
}

func TestHandleEvent_UnknownUserIsDropped(t *testing.T) {
	_, sender, _, h := setup(t)

	require.NoError(t, h.HandleEvent(context.Background(), nil, placedEvent(t, "ghost")))
	assert.Empty(t, sender.sent)
}

func TestHandleEvent_MalformedPayloadIsDropped(t *testing.T) {
	_, sender, _, h := setup(t)

	assert.NoError(t, h.HandleEvent(context.Background(), nil, []byte("{not json")))
	assert.Empty(t, sender.sent)
}
