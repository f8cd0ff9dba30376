package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type OrderPlaced struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shipping_address"`
	PlacedAt        time.Time       `json:"placed_at"`
}

func NewOrderPlaced(o *Order) OrderPlaced {
	return OrderPlaced{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Items:           o.Items,
		Total:           o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PlacedAt:        o.OrderDate,
	}
}
