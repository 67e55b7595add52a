// model/cart.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEntry is keyed uniquely by (UserID, ItemID); adding an item already in
// the cart merges quantities instead of duplicating the line.
type CartEntry struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	ItemID         int64           `json:"item_id"`
	Title          string          `json:"title"`
	Quantity       int             `json:"quantity"`
	UnitPriceAtAdd decimal.Decimal `json:"unit_price_at_add"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CartSummary is the read-only pre-checkout view: entries, subtotal and any
// problems that would block checkout. It never mutates the cart.
type CartSummary struct {
	Entries  []CartEntry     `json:"entries"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Valid    bool            `json:"valid"`
	Problems []string        `json:"problems,omitempty"`
}
