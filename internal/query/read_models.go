package query

import "github.com/example/ec-storefront/internal/readmodel"

type ProductView = readmodel.ProductView
type CartView = readmodel.CartView
type CartLineView = readmodel.CartLineView
type OrderView = readmodel.OrderView
type OrderItemView = readmodel.OrderItemView
type LowStockSummary = readmodel.LowStockSummary
