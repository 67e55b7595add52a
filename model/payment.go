// model/payment.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// IsTerminal reports whether no further transition is permitted. The
// terminal-state check is the sole idempotency guard for gateway callbacks.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending
}

// Payment is one attempt against one order. A failed attempt is superseded by
// a new row with a fresh TxnRef, never mutated back to PENDING.
type Payment struct {
	ID             int64           `json:"id"`
	PaymentCode    string          `json:"payment_code"`
	OrderID        int64           `json:"order_id"`
	TxnRef         string          `json:"txn_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Status         PaymentStatus   `json:"status"`
	ResponseCode   string          `json:"response_code,omitempty"`
	GatewayMessage string          `json:"gateway_message,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
