package transaction

import (
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/types"
)

type Type string

const (
	TypeDeposit      Type = "deposit"
	TypeWithdrawal   Type = "withdrawal"
	TypeInterest     Type = "interest"
	TypeTransfer     Type = "transfer"
	TypeSubscription Type = "subscription"
)

// Valid reports whether t is a known transaction type, supported or not.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeInterest, TypeTransfer, TypeSubscription:
		return true
	}
	return false
}

// Supported reports whether t has a defined signed effect. Transfers do not.
func (t Type) Supported() bool {
	return t.sign() != 0
}

func (t Type) sign() int64 {
	switch t {
	case TypeDeposit, TypeInterest:
		return 1
	case TypeWithdrawal, TypeSubscription:
		return -1
	default:
		return 0
	}
}

// SignedEffect returns the balance delta a counted transaction of this type
// and magnitude implies.
func (t Type) SignedEffect(amount types.Money) types.Money {
	return types.Cents(amount.Abs().Amount * t.sign())
}

// ApprovedByDefault reports the initial approval flag for a new transaction
// of this type when the caller does not set one.
func (t Type) ApprovedByDefault() bool {
	return t == TypeInterest
}

type Transaction struct {
	types.Entity
	ID          id.TransactionID `json:"id"`
	AccountID   id.AccountID     `json:"account_id"`
	Description string           `json:"description"`
	// Amount is a non-negative magnitude; Type decides the sign.
	Amount types.Money `json:"amount"`
	Type   Type        `json:"type"`
	Date   time.Time   `json:"date"`

	Approved   bool       `json:"approved"`
	ApprovedBy id.UserID  `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	Rejected        bool       `json:"rejected"`
	RejectedBy      id.UserID  `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Deleted   bool       `json:"deleted"`
	DeletedBy id.UserID  `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	RecurringID id.RecurringID `json:"recurring_id,omitempty"`
	CreatedBy   id.UserID      `json:"created_by,omitempty"`
}

// IsCounted reports whether the transaction currently contributes to its
// account balance. It is the only place that rule is spelled out.
func (t *Transaction) IsCounted() bool {
	return t.Approved && !t.Rejected && !t.Deleted
}

// Effect returns the transaction's contribution to its account balance:
// the signed effect when counted, zero otherwise.
func (t *Transaction) Effect() types.Money {
	if !t.IsCounted() {
		return types.Zero()
	}
	return t.Type.SignedEffect(t.Amount)
}

// Status summarizes the flags for display. Deletion wins over rejection.
func (t *Transaction) Status() string {
	switch {
	case t.Deleted:
		return "deleted"
	case t.Rejected:
		return "rejected"
	case t.Approved:
		return "approved"
	default:
		return "pending"
	}
}

// Clone returns a copy that shares no pointers with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.RejectedAt = cloneTime(t.RejectedAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

// EffectDelta is the balance change produced by moving a transaction from
// state before to state after.
func EffectDelta(before, after *Transaction) types.Money {
	return after.Effect().Subtract(before.Effect())
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
