package famledger

import (
	"context"
	"fmt"

	"github.com/xraph/famledger/access"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
)

// Caller is the identity and role supplied by the host's auth layer.
type Caller = access.Caller

// Scope resolves what caller may see.
func (l *Ledger) Scope(ctx context.Context, caller Caller) (*access.Scope, error) {
	s, err := l.resolver.Scope(ctx, caller)
	if err != nil {
		return nil, internal("resolve scope", err)
	}
	return s, nil
}

func requireParent(caller Caller) error {
	if !caller.IsParent() {
		return ErrParentRequired
	}
	return nil
}

func forbidden(kind string, ref id.ID) error {
	return fmt.Errorf("%w: %s %s", ErrForbidden, kind, ref)
}

// authorizeUser checks that userID is inside caller's scope.
func (l *Ledger) authorizeUser(ctx context.Context, caller Caller, userID id.UserID) (*access.Scope, error) {
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !s.AllowsUser(userID) {
		return nil, forbidden("user", userID)
	}
	return s, nil
}

// authorizeAccount loads an account and checks that its owner is inside
// caller's scope.
func (l *Ledger) authorizeAccount(ctx context.Context, caller Caller, accountID id.AccountID) (*account.Account, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, internal("get account", err)
	}
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !s.AllowsAccount(a) {
		return nil, forbidden("account", accountID)
	}
	return a, nil
}

// authorizeTransaction loads a transaction and checks it through its
// account.
func (l *Ledger) authorizeTransaction(ctx context.Context, caller Caller, txnID id.TransactionID) (*transaction.Transaction, error) {
	t, err := l.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, internal("get transaction", err)
	}
	a, err := l.store.GetAccount(ctx, t.AccountID)
	if err != nil {
		return nil, internal("get account", err)
	}
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !s.AllowsTransaction(t, a) {
		return nil, forbidden("transaction", txnID)
	}
	return t, nil
}
