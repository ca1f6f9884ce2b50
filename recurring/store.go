package recurring

import (
	"context"
	"time"

	"github.com/xraph/famledger/id"
)

type Store interface {
	CreateRecurring(ctx context.Context, d *Definition) error
	GetRecurring(ctx context.Context, recID id.RecurringID) (*Definition, error)
	ListRecurring(ctx context.Context, opts ListOpts) ([]*Definition, error)
	// ListDueRecurring returns active definitions with NextDate <= now,
	// ordered by NextDate then creation.
	ListDueRecurring(ctx context.Context, now time.Time) ([]*Definition, error)
	// FindRecurring returns the definition of the given type and name that
	// targets accountID.
	FindRecurring(ctx context.Context, accountID id.AccountID, typ Type, name string) (*Definition, error)
	UpdateRecurring(ctx context.Context, d *Definition) error
	DeleteRecurring(ctx context.Context, recID id.RecurringID) error
}

type ListOpts struct {
	UserIDs   []id.UserID
	AccountID id.AccountID
	Type      Type
	Active    *bool
	Limit     int
	Offset    int
}
