// model/catalog.go
package model

import "github.com/shopspring/decimal"

// CatalogItem is a snapshot of the catalog collaborator's state for one item.
// Only the ledger mutates the two counters; everyone else reads snapshots.
type CatalogItem struct {
	ID                  int64           `json:"id"`
	Title               string          `json:"title"`
	ISBN                string          `json:"isbn"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	IsSellable          bool            `json:"is_sellable"`
	SellableStock       int64           `json:"sellable_stock"`
	IsLendable          bool            `json:"is_lendable"`
	TotalLoanCopies     int64           `json:"total_loan_copies"`
	AvailableLoanCopies int64           `json:"available_loan_copies"`
}
