package fine_test

import (
	"testing"
	"time"

	"librastore/config"
	"librastore/service/fine"

	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func policy(rate int64, grace int, cap int64) config.FinePolicy {
	return config.FinePolicy{
		DailyRate:       decimal.NewFromInt(rate),
		GracePeriodDays: grace,
		CapAmount:       decimal.NewFromInt(cap),
	}
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name     string
		due, ret time.Time
		p        config.FinePolicy
		want     int64
	}{
		{"on due date", day("2024-01-10"), day("2024-01-10"), policy(5000, 0, 50000), 0},
		{"returned early", day("2024-01-10"), day("2024-01-05"), policy(5000, 0, 50000), 0},
		{"one day over", day("2024-01-10"), day("2024-01-11"), policy(5000, 0, 50000), 5000},
		{"five days over", day("2024-01-10"), day("2024-01-15"), policy(5000, 0, 50000), 25000},
		{"exactly at grace boundary", day("2024-01-10"), day("2024-01-13"), policy(5000, 3, 50000), 0},
		{"one past grace", day("2024-01-10"), day("2024-01-14"), policy(5000, 3, 50000), 5000},
		{"capped", day("2024-01-10"), day("2024-03-10"), policy(5000, 0, 50000), 50000},
		{"exactly at cap", day("2024-01-10"), day("2024-01-20"), policy(5000, 0, 50000), 50000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fine.Calculate(tc.due, tc.ret, tc.p)
			if !got.Equal(decimal.NewFromInt(tc.want)) {
				t.Fatalf("got %s, want %d", got, tc.want)
			}
		})
	}
}

func TestCalculate_PartialDayCountsAsOne(t *testing.T) {
	due := time.Date(2024, 1, 10, 17, 0, 0, 0, time.UTC)
	ret := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	got := fine.Calculate(due, ret, policy(5000, 0, 50000))
	if !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("got %s, want 5000", got)
	}
}
