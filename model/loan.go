// model/loan.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanRequested LoanStatus = "REQUESTED"
	LoanApproved  LoanStatus = "APPROVED"
	LoanBorrowed  LoanStatus = "BORROWED"
	LoanOverdue   LoanStatus = "OVERDUE"
	LoanReturned  LoanStatus = "RETURNED"
	LoanCancelled LoanStatus = "CANCELLED"
)

// Active statuses hold (or are about to hold) a loan copy or count against the
// per-user cap.
func (s LoanStatus) IsActive() bool {
	return s == LoanRequested || s == LoanApproved || s == LoanBorrowed || s == LoanOverdue
}

type Loan struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"user_id"`
	ItemID int64      `json:"item_id"`
	Status LoanStatus `json:"status"`

	LoanDate   *time.Time `json:"loan_date,omitempty"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`

	FineAmount decimal.Decimal `json:"fine_amount"`
	FinePaid   bool            `json:"fine_paid"`

	ApprovedBy *int64     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ReturnedTo *int64     `json:"returned_to,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
