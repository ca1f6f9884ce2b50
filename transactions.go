package famledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// CreateTransactionInput describes a new transaction. Approved is optional;
// when nil the type's default applies (only interest starts approved).
type CreateTransactionInput struct {
	AccountID   id.AccountID
	Amount      types.Money
	Type        transaction.Type
	Description string
	Date        time.Time
	Approved    *bool
}

// TransactionPatch is a partial update. Nil fields are left unchanged.
// Rejection and deletion have their own operations.
type TransactionPatch struct {
	Description *string
	Amount      *types.Money
	Type        *transaction.Type
	Date        *time.Time
	Approved    *bool
}

func validateAmountType(amount types.Money, typ transaction.Type) error {
	if !typ.Valid() {
		return invalid("type", "unknown transaction type %q", typ)
	}
	if !typ.Supported() {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	if amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	return nil
}

// CreateTransaction records a transaction on an account in caller's scope.
// A counted transaction moves the balance by its signed effect in the same
// step. Only a parent may create a transaction that starts approved, apart
// from interest, which is approved by default.
func (l *Ledger) CreateTransaction(ctx context.Context, caller Caller, in CreateTransactionInput) (*transaction.Transaction, error) {
	if in.AccountID.IsNil() {
		return nil, invalid("account_id", "is required")
	}
	if err := validateAmountType(in.Amount, in.Type); err != nil {
		return nil, err
	}
	if _, err := l.authorizeAccount(ctx, caller, in.AccountID); err != nil {
		return nil, err
	}

	approved := in.Type.ApprovedByDefault()
	if in.Approved != nil {
		if *in.Approved && !approved && !caller.IsParent() {
			return nil, ErrParentRequired
		}
		approved = *in.Approved
	}

	now := l.now()
	t := &transaction.Transaction{
		Entity:      types.EntityAt(now),
		ID:          id.NewTransactionID(),
		AccountID:   in.AccountID,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Type:        in.Type,
		Date:        in.Date,
		CreatedBy:   caller.ID,
	}
	if t.Date.IsZero() {
		t.Date = now
	}
	if approved {
		markApproved(t, caller.ID, now)
	}

	if err := l.post(ctx, t); err != nil {
		return nil, err
	}

	l.plugins.EmitTransactionCreated(ctx, t)
	return t, nil
}

// GetTransaction returns a transaction visible to caller.
func (l *Ledger) GetTransaction(ctx context.Context, caller Caller, txnID id.TransactionID) (*transaction.Transaction, error) {
	return l.authorizeTransaction(ctx, caller, txnID)
}

// ListTransactions lists transactions on accounts in caller's scope. When
// opts names accounts, those outside the scope are dropped.
func (l *Ledger) ListTransactions(ctx context.Context, caller Caller, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	accounts, err := l.ListAccounts(ctx, caller, account.ListOpts{})
	if err != nil {
		return nil, err
	}

	visible := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		visible[a.ID.String()] = struct{}{}
	}

	var ids []id.AccountID
	if len(opts.AccountIDs) == 0 {
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
	} else {
		for _, aid := range opts.AccountIDs {
			if _, ok := visible[aid.String()]; ok {
				ids = append(ids, aid)
			}
		}
	}
	if len(ids) == 0 {
		return []*transaction.Transaction{}, nil
	}
	opts.AccountIDs = ids

	txns, err := l.store.ListTransactions(ctx, opts)
	if err != nil {
		return nil, internal("list transactions", err)
	}
	return txns, nil
}

// ApproveTransaction approves a pending transaction and applies its signed
// effect once.
func (l *Ledger) ApproveTransaction(ctx context.Context, caller Caller, txnID id.TransactionID) (*transaction.Transaction, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	if _, err := l.authorizeTransaction(ctx, caller, txnID); err != nil {
		return nil, err
	}

	t, _, err := l.transition(ctx, txnID, func(t *transaction.Transaction, now time.Time) error {
		return approve(t, caller.ID, now)
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitTransactionApproved(ctx, t)
	return t, nil
}

// RejectTransaction vetoes a transaction. A counted transaction has its
// effect reversed. Rejection is terminal.
func (l *Ledger) RejectTransaction(ctx context.Context, caller Caller, txnID id.TransactionID, reason string) (*transaction.Transaction, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	if _, err := l.authorizeTransaction(ctx, caller, txnID); err != nil {
		return nil, err
	}

	t, _, err := l.transition(ctx, txnID, func(t *transaction.Transaction, now time.Time) error {
		if t.Rejected {
			return ErrAlreadyRejected
		}
		t.Rejected = true
		t.Approved = false
		t.RejectedBy = caller.ID
		t.RejectedAt = &now
		t.RejectionReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitTransactionRejected(ctx, t)
	return t, nil
}

// MarkTransactionDeleted soft-deletes a transaction. A counted transaction
// has its effect reversed. The approved flag is kept.
func (l *Ledger) MarkTransactionDeleted(ctx context.Context, caller Caller, txnID id.TransactionID) (*transaction.Transaction, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	if _, err := l.authorizeTransaction(ctx, caller, txnID); err != nil {
		return nil, err
	}

	t, _, err := l.transition(ctx, txnID, func(t *transaction.Transaction, now time.Time) error {
		return markDeleted(t, caller.ID, now)
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitTransactionDeleted(ctx, t)
	return t, nil
}

// UpdateTransaction applies a field patch. Approval through the patch takes
// the same path as ApproveTransaction. Amount or type edits on a counted
// transaction move the balance by new effect minus old effect, and the
// account balance is then rebuilt from its transactions.
func (l *Ledger) UpdateTransaction(ctx context.Context, caller Caller, txnID id.TransactionID, patch TransactionPatch) (*transaction.Transaction, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	if _, err := l.authorizeTransaction(ctx, caller, txnID); err != nil {
		return nil, err
	}

	approvedNow, rebuild := false, false
	t, delta, err := l.transition(ctx, txnID, func(t *transaction.Transaction, now time.Time) error {
		approvedNow, rebuild = false, false
		if patch.Description != nil {
			t.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Date != nil {
			if patch.Date.IsZero() {
				return invalid("date", "must not be zero")
			}
			t.Date = *patch.Date
		}

		amount, typ := t.Amount, t.Type
		if patch.Amount != nil {
			amount = *patch.Amount
		}
		if patch.Type != nil {
			typ = *patch.Type
		}
		if err := validateAmountType(amount, typ); err != nil {
			return err
		}
		rebuild = t.IsCounted() && (!amount.Equal(t.Amount) || typ != t.Type)
		t.Amount, t.Type = amount, typ

		if patch.Approved != nil && *patch.Approved != t.Approved {
			if !*patch.Approved {
				t.Approved = false
				t.ApprovedBy = id.Nil
				t.ApprovedAt = nil
				return nil
			}
			if err := approve(t, caller.ID, now); err != nil {
				return err
			}
			approvedNow = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rebuild {
		if _, err := l.recalculate(ctx, t.AccountID); err != nil {
			return nil, err
		}
	}

	l.plugins.EmitTransactionUpdated(ctx, t, delta)
	if approvedNow {
		l.plugins.EmitTransactionApproved(ctx, t)
	}
	return t, nil
}

// ──────────────────────────────────────────────────
// Flag changes
// ──────────────────────────────────────────────────

// approve is the one approval rule, shared by ApproveTransaction and
// UpdateTransaction.
func approve(t *transaction.Transaction, by id.UserID, now time.Time) error {
	switch {
	case t.Approved:
		return ErrAlreadyApproved
	case t.Rejected:
		return ErrAlreadyRejected
	case t.Deleted:
		return ErrAlreadyDeleted
	}
	markApproved(t, by, now)
	return nil
}

func markApproved(t *transaction.Transaction, by id.UserID, now time.Time) {
	t.Approved = true
	t.ApprovedBy = by
	t.ApprovedAt = &now
}

func markDeleted(t *transaction.Transaction, by id.UserID, now time.Time) error {
	if t.Deleted {
		return ErrAlreadyDeleted
	}
	t.Deleted = true
	t.DeletedBy = by
	t.DeletedAt = &now
	return nil
}
