package transaction

import (
	"context"
	"time"

	"github.com/xraph/famledger/id"
)

type Store interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, opts ListOpts) ([]*Transaction, error)
	UpdateTransaction(ctx context.Context, t *Transaction) error
	// DeleteTransaction removes the record outright. The ledger only uses it
	// to undo a failed creation; user-facing deletion is a soft delete.
	DeleteTransaction(ctx context.Context, txnID id.TransactionID) error
}

// ListOpts filters transaction listings. Results are ordered by date,
// newest first.
type ListOpts struct {
	AccountIDs     []id.AccountID
	Type           Type
	From           time.Time
	To             time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}
