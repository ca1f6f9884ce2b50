package account

import (
	"context"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/types"
)

type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*Account, error)
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
	// UpdateAccount persists name, type and interest rate. It never writes
	// the balance.
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, accountID id.AccountID) error

	// AdjustBalance atomically adds delta to the stored balance.
	AdjustBalance(ctx context.Context, accountID id.AccountID, delta types.Money) error
	// SetBalance overwrites the stored balance. Only recalculation uses it.
	SetBalance(ctx context.Context, accountID id.AccountID, balance types.Money) error
}

type ListOpts struct {
	OwnerIDs []id.UserID
	Types    []Type
	Limit    int
	Offset   int
}
