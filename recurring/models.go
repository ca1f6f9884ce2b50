package recurring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

type Type string

const (
	TypeAllowance    Type = "allowance"
	TypeSubscription Type = "subscription"
	TypeInterest     Type = "interest"
	TypeOther        Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAllowance, TypeSubscription, TypeInterest, TypeOther:
		return true
	}
	return false
}

// PostingType maps a non-allowance definition to the transaction type it
// posts.
func (t Type) PostingType() transaction.Type {
	switch t {
	case TypeSubscription:
		return transaction.TypeWithdrawal
	case TypeInterest:
		return transaction.TypeInterest
	default:
		return transaction.TypeDeposit
	}
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Next advances from by one period. Months and years are calendar steps
// with Go's normalization (Jan 31 + 1 month = Mar 3 in non-leap years).
// Unknown frequencies advance weekly.
func (f Frequency) Next(from time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 0, 7)
	}
}

// Distribution holds allowance percentages keyed by account type.
type Distribution map[account.Type]decimal.Decimal

var hundred = decimal.NewFromInt(100)

// Total sums the percentages.
func (d Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, pct := range d {
		total = total.Add(pct)
	}
	return total
}

// Valid reports whether the distribution only names known account types,
// has no negative share and sums to exactly 100.
func (d Distribution) Valid() bool {
	for typ, pct := range d {
		if !typ.Valid() || pct.IsNegative() {
			return false
		}
	}
	return d.Total().Equal(hundred)
}

// Share returns the percentage for typ, zero when absent.
func (d Distribution) Share(typ account.Type) decimal.Decimal {
	if pct, ok := d[typ]; ok {
		return pct
	}
	return decimal.Zero
}

// Definition is a scheduled posting: allowance, subscription, interest or
// other.
type Definition struct {
	types.Entity
	ID          id.RecurringID `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Amount      types.Money    `json:"amount"`
	Type        Type           `json:"type"`
	Frequency   Frequency      `json:"frequency"`
	// AccountID is the posting target for non-allowance types.
	AccountID id.AccountID `json:"account_id"`
	// UserID is the beneficiary.
	UserID        id.UserID    `json:"user_id"`
	CreatedBy     id.UserID    `json:"created_by,omitempty"`
	Distribution  Distribution `json:"distribution,omitempty"`
	NextDate      time.Time    `json:"next_date"`
	LastProcessed *time.Time   `json:"last_processed,omitempty"`
	Active        bool         `json:"active"`
}

// IsDue reports whether the definition should post at now.
func (d *Definition) IsDue(now time.Time) bool {
	return d.Active && !d.NextDate.After(now)
}

// Advance moves the schedule forward one period from the current next date
// and records now as the last processing time.
func (d *Definition) Advance(now time.Time) {
	d.NextDate = d.Frequency.Next(d.NextDate)
	processed := now
	d.LastProcessed = &processed
}

// IsAllowance reports whether the definition distributes across accounts.
func (d *Definition) IsAllowance() bool { return d.Type == TypeAllowance }

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	c := *d
	if d.LastProcessed != nil {
		lp := *d.LastProcessed
		c.LastProcessed = &lp
	}
	if d.Distribution != nil {
		c.Distribution = make(Distribution, len(d.Distribution))
		for k, v := range d.Distribution {
			c.Distribution[k] = v
		}
	}
	return &c
}
