package ordersvc

import (
	"time"

	"librastore/model"
)

// Attention flags an order an operator should look at. Computed, never
// stored, and never acted on automatically.
type Attention struct {
	OrderCode string            `json:"order_code"`
	Status    model.OrderStatus `json:"status"`
	Age       time.Duration     `json:"age"`
	Action    string            `json:"recommended_action"`
}

const (
	unpaidWindow      = 24 * time.Hour
	unprocessedWindow = 48 * time.Hour
	processingWindow  = 72 * time.Hour
)

// stateSince is when the order entered its current state: updated_at moves
// on every status change, while created_at covers orders never advanced.
func stateSince(o *model.Order) time.Time {
	if o.UpdatedAt.IsZero() {
		return o.CreatedAt
	}
	return o.UpdatedAt
}

// RequiresAttention reports whether the order has sat in its current state
// past the triage window, with a recommended action.
func RequiresAttention(o *model.Order, now time.Time) (string, bool) {
	age := now.Sub(stateSince(o))
	switch o.Status {
	case model.OrderPendingPayment:
		if age > unpaidWindow {
			return "follow up on payment or cancel the order", true
		}
	case model.OrderPaid:
		if age > unprocessedWindow {
			return "start processing the paid order", true
		}
	case model.OrderProcessing:
		if age > processingWindow {
			return "check the fulfilment backlog", true
		}
	}
	return "", false
}

func AttentionFor(orders []model.Order, now time.Time) []Attention {
	var out []Attention
	for i := range orders {
		o := &orders[i]
		if action, ok := RequiresAttention(o, now); ok {
			out = append(out, Attention{
				OrderCode: o.OrderCode,
				Status:    o.Status,
				Age:       now.Sub(stateSince(o)),
				Action:    action,
			})
		}
	}
	return out
}
