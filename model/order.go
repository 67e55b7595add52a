// model/order.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderProcessing     OrderStatus = "PROCESSING"
	OrderShipped        OrderStatus = "SHIPPED"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

type OrderPaymentStatus string

const (
	PayUnpaid            OrderPaymentStatus = "UNPAID"
	PayCompleted         OrderPaymentStatus = "PAID"
	PayPartiallyRefunded OrderPaymentStatus = "PARTIALLY_REFUNDED"
	PayRefunded          OrderPaymentStatus = "REFUNDED"
)

type Order struct {
	ID            int64              `json:"id"`
	OrderCode     string             `json:"order_code"`
	UserID        int64              `json:"user_id"`
	Status        OrderStatus        `json:"status"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`

	ShippingName    string `json:"shipping_name"`
	ShippingPhone   string `json:"shipping_phone"`
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes,omitempty"`

	Items []OrderItem `json:"items,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ShippingDate *time.Time `json:"shipping_date,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

// OrderItem snapshots title and price at checkout; the cart is not an
// authoritative price source after that point.
type OrderItem struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	ItemID        int64           `json:"item_id"`
	TitleSnapshot string          `json:"title_snapshot"`
	Quantity      int             `json:"quantity"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit"`
	LineTotal     decimal.Decimal `json:"line_total"`
}
