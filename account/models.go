package account

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/types"
)

type Type string

const (
	TypeSpending Type = "spending"
	TypeSaving   Type = "saving"
	TypeDonation Type = "donation"
)

// Types lists account types in allowance distribution order.
var Types = []Type{TypeSpending, TypeSaving, TypeDonation}

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	switch t {
	case TypeSpending, TypeSaving, TypeDonation:
		return true
	}
	return false
}

// EarnsInterest reports whether accounts of this type can accrue interest.
func (t Type) EarnsInterest() bool {
	return t == TypeSaving || t == TypeDonation
}

type Account struct {
	types.Entity
	ID      id.AccountID `json:"id"`
	OwnerID id.UserID    `json:"owner_id"`
	Name    string       `json:"name"`
	Type    Type         `json:"type"`
	// Balance is maintained by the ledger only. Stores never write it from
	// UpdateAccount.
	Balance types.Money `json:"balance"`
	// InterestRate is the annual rate in percent (0 to 100). Zero disables
	// interest.
	InterestRate decimal.Decimal `json:"interest_rate"`
}

var twelve = decimal.NewFromInt(12)

// InterestEligible reports whether the account qualifies for an interest
// definition: saving or donation type with a positive rate.
func (a *Account) InterestEligible() bool {
	return a.Type.EarnsInterest() && a.InterestRate.IsPositive()
}

// MonthlyInterest returns balance * rate / 100 / 12, rounded to the cent.
func (a *Account) MonthlyInterest() types.Money {
	return types.FromDecimal(
		a.Balance.Decimal().Mul(a.InterestRate).Div(decimal.NewFromInt(100)).Div(twelve),
	)
}
