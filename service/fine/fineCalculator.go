package fine

import (
	"time"

	"librastore/config"

	"github.com/shopspring/decimal"
)

// Calculate returns the overdue fine for a loan returned at returnDate.
// Whole days over the due date, minus the grace period, billed at the daily
// rate and capped. Zero when the book came back on time.
func Calculate(dueDate, returnDate time.Time, p config.FinePolicy) decimal.Decimal {
	if !returnDate.After(dueDate) {
		return decimal.Zero
	}
	overdueDays := daysBetween(dueDate, returnDate)
	billable := overdueDays - int64(p.GracePeriodDays)
	if billable <= 0 {
		return decimal.Zero
	}
	fine := p.DailyRate.Mul(decimal.NewFromInt(billable))
	if fine.GreaterThan(p.CapAmount) {
		return p.CapAmount
	}
	return fine
}

// daysBetween counts calendar days from a to b in UTC, so a return at 09:00
// the day after a 17:00 due date still counts as one day over.
func daysBetween(a, b time.Time) int64 {
	a = a.UTC().Truncate(24 * time.Hour)
	b = b.UTC().Truncate(24 * time.Hour)
	return int64(b.Sub(a) / (24 * time.Hour))
}
