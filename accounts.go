package famledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

var maxInterestRate = decimal.NewFromInt(100)

// CreateAccountInput describes a new account. A non-zero OpeningBalance is
// posted as an approved transaction so the balance stays derivable from
// the account's transactions.
type CreateAccountInput struct {
	OwnerID        id.UserID
	Name           string
	Type           account.Type
	InterestRate   decimal.Decimal
	OpeningBalance types.Money
}

// AccountPatch is a partial account update. The balance is never patched.
type AccountPatch struct {
	Name         *string
	Type         *account.Type
	InterestRate *decimal.Decimal
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxInterestRate) {
		return invalid("interest_rate", "must be between 0 and 100")
	}
	return nil
}

// CreateAccount opens an account for a user in caller's scope.
func (l *Ledger) CreateAccount(ctx context.Context, caller Caller, in CreateAccountInput) (*account.Account, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if !in.Type.Valid() {
		return nil, invalid("type", "unknown account type %q", in.Type)
	}
	if err := validateRate(in.InterestRate); err != nil {
		return nil, err
	}
	if in.OwnerID.IsNil() {
		return nil, invalid("owner_id", "is required")
	}
	if _, err := l.authorizeUser(ctx, caller, in.OwnerID); err != nil {
		return nil, err
	}
	if _, err := l.store.GetUser(ctx, in.OwnerID); err != nil {
		return nil, internal("get owner", err)
	}

	now := l.now()
	a := &account.Account{
		Entity:       types.EntityAt(now),
		ID:           id.NewAccountID(),
		OwnerID:      in.OwnerID,
		Name:         name,
		Type:         in.Type,
		InterestRate: in.InterestRate,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, internal("create account", err)
	}

	if !in.OpeningBalance.IsZero() {
		typ := transaction.TypeDeposit
		if in.OpeningBalance.IsNegative() {
			typ = transaction.TypeWithdrawal
		}
		t := &transaction.Transaction{
			Entity:      types.EntityAt(now),
			ID:          id.NewTransactionID(),
			AccountID:   a.ID,
			Description: "Opening balance",
			Amount:      in.OpeningBalance.Abs(),
			Type:        typ,
			Date:        now,
			CreatedBy:   caller.ID,
		}
		markApproved(t, caller.ID, now)
		if err := l.post(ctx, t); err != nil {
			return nil, err
		}
		l.plugins.EmitTransactionCreated(ctx, t)
		a.Balance = t.Effect()
	}

	l.logger.Debug("account created",
		"account_id", a.ID.String(),
		"owner_id", a.OwnerID.String(),
		"type", string(a.Type),
	)
	return a, nil
}

// GetAccount returns an account visible to caller.
func (l *Ledger) GetAccount(ctx context.Context, caller Caller, accountID id.AccountID) (*account.Account, error) {
	return l.authorizeAccount(ctx, caller, accountID)
}

// ListAccounts lists accounts owned by users in caller's scope. Owners in
// opts outside the scope are dropped.
func (l *Ledger) ListAccounts(ctx context.Context, caller Caller, opts account.ListOpts) ([]*account.Account, error) {
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}

	if len(opts.OwnerIDs) == 0 {
		opts.OwnerIDs = s.UserIDs()
	} else {
		owners := make([]id.UserID, 0, len(opts.OwnerIDs))
		for _, o := range opts.OwnerIDs {
			if s.AllowsUser(o) {
				owners = append(owners, o)
			}
		}
		if len(owners) == 0 {
			return []*account.Account{}, nil
		}
		opts.OwnerIDs = owners
	}

	accounts, err := l.store.ListAccounts(ctx, opts)
	if err != nil {
		return nil, internal("list accounts", err)
	}
	return accounts, nil
}

// UpdateAccount patches name, type or interest rate.
func (l *Ledger) UpdateAccount(ctx context.Context, caller Caller, accountID id.AccountID, patch AccountPatch) (*account.Account, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	a, err := l.authorizeAccount(ctx, caller, accountID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name", "is required")
		}
		a.Name = name
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, invalid("type", "unknown account type %q", *patch.Type)
		}
		a.Type = *patch.Type
	}
	if patch.InterestRate != nil {
		if err := validateRate(*patch.InterestRate); err != nil {
			return nil, err
		}
		a.InterestRate = *patch.InterestRate
	}

	a.TouchAt(l.now())
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, internal("update account", err)
	}
	return a, nil
}

// DeleteAccount removes an account and deactivates every recurring
// definition that posts to it. Its transactions are kept.
func (l *Ledger) DeleteAccount(ctx context.Context, caller Caller, accountID id.AccountID) error {
	if err := requireParent(caller); err != nil {
		return err
	}
	if _, err := l.authorizeAccount(ctx, caller, accountID); err != nil {
		return err
	}

	if err := l.deactivateRecurring(ctx, recurring.ListOpts{AccountID: accountID}); err != nil {
		return err
	}

	unlock := l.locks.lock(accountID)
	defer unlock()
	if err := l.store.DeleteAccount(ctx, accountID); err != nil {
		return internal("delete account", err)
	}
	return nil
}
