package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy gathers every business literal in one place so services take it as a
// dependency and tests can exercise boundary values directly.
type Policy struct {
	Commerce CommercePolicy
	Loan     LoanPolicy
	Payment  PaymentPolicy
}

type CommercePolicy struct {
	// Shipping fee is waived when the subtotal reaches FreeShipThreshold.
	ShippingFlatFee   decimal.Decimal
	FreeShipThreshold decimal.Decimal

	// Flat tax applied to the subtotal, percent (10 = 10%).
	TaxPercent decimal.Decimal

	// Volume discount: DiscountPercent off the subtotal once it reaches
	// DiscountThreshold.
	DiscountThreshold decimal.Decimal
	DiscountPercent   decimal.Decimal

	// Hard cap on a single cart line quantity.
	MaxQuantityPerLine int
}

type LoanPolicy struct {
	MaxActiveLoansPerUser int
	DefaultPeriodDays     int

	Fine FinePolicy
}

type FinePolicy struct {
	DailyRate       decimal.Decimal
	GracePeriodDays int
	CapAmount       decimal.Decimal
}

type PaymentPolicy struct {
	// How long a payment attempt stays PENDING before the sweep expires it.
	AttemptTTL time.Duration
}

// DefaultPolicy returns production values. Tests build their own.
func DefaultPolicy() Policy {
	return Policy{
		Commerce: CommercePolicy{
			ShippingFlatFee:    decimal.NewFromInt(30000),
			FreeShipThreshold:  decimal.NewFromInt(500000),
			TaxPercent:         decimal.NewFromInt(10),
			DiscountThreshold:  decimal.NewFromInt(1000000),
			DiscountPercent:    decimal.NewFromInt(5),
			MaxQuantityPerLine: 50,
		},
		Loan: LoanPolicy{
			MaxActiveLoansPerUser: 5,
			DefaultPeriodDays:     14,
			Fine: FinePolicy{
				DailyRate:       decimal.NewFromInt(5000),
				GracePeriodDays: 0,
				CapAmount:       decimal.NewFromInt(50000),
			},
		},
		Payment: PaymentPolicy{
			AttemptTTL: 15 * time.Minute,
		},
	}
}
