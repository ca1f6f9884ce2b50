package recurring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/transaction"
)

func dist(spending, saving, donation string) Distribution {
	return Distribution{
		account.TypeSpending: decimal.RequireFromString(spending),
		account.TypeSaving:   decimal.RequireFromString(saving),
		account.TypeDonation: decimal.RequireFromString(donation),
	}
}

func TestDistributionValid(t *testing.T) {
	tests := []struct {
		name string
		d    Distribution
		want bool
	}{
		{"sums to ninety", dist("40", "40", "10"), false},
		{"sums to hundred", dist("34", "33", "33"), true},
		{"fractional hundred", dist("33.5", "33.25", "33.25"), true},
		{"over hundred", dist("50", "50", "1"), false},
		{"negative share", dist("120", "-10", "-10"), false},
		{"single bucket", Distribution{account.TypeSaving: decimal.NewFromInt(100)}, true},
		{"unknown bucket", Distribution{account.Type("checking"): decimal.NewFromInt(100)}, false},
		{"empty", Distribution{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v (total %s)", got, tt.want, tt.d.Total())
			}
		})
	}
}

func TestFrequencyNext(t *testing.T) {
	base := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		freq Frequency
		want time.Time
	}{
		{FrequencyDaily, time.Date(2024, time.January, 16, 9, 0, 0, 0, time.UTC)},
		{FrequencyWeekly, time.Date(2024, time.January, 22, 9, 0, 0, 0, time.UTC)},
		{FrequencyMonthly, time.Date(2024, time.February, 15, 9, 0, 0, 0, time.UTC)},
		{FrequencyYearly, time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)},
		{Frequency("fortnightly"), time.Date(2024, time.January, 22, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			if got := tt.freq.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostingType(t *testing.T) {
	tests := []struct {
		typ  Type
		want transaction.Type
	}{
		{TypeSubscription, transaction.TypeWithdrawal},
		{TypeInterest, transaction.TypeInterest},
		{TypeOther, transaction.TypeDeposit},
		{TypeAllowance, transaction.TypeDeposit},
	}

	for _, tt := range tests {
		if got := tt.typ.PostingType(); got != tt.want {
			t.Errorf("%s.PostingType() = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestDueAndAdvance(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	d := &Definition{
		Frequency: FrequencyWeekly,
		NextDate:  now.Add(-time.Hour),
		Active:    true,
	}
	if !d.IsDue(now) {
		t.Fatal("expected definition to be due")
	}

	d.Advance(now)
	if want := now.Add(-time.Hour).AddDate(0, 0, 7); !d.NextDate.Equal(want) {
		t.Errorf("NextDate = %v, want %v", d.NextDate, want)
	}
	if d.LastProcessed == nil || !d.LastProcessed.Equal(now) {
		t.Errorf("LastProcessed = %v, want %v", d.LastProcessed, now)
	}
	if d.IsDue(now) {
		t.Error("definition should not be due after advancing")
	}

	d.NextDate = now
	d.Active = false
	if d.IsDue(now) {
		t.Error("inactive definition must never be due")
	}
}
