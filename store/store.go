package store

import (
	"context"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/user"
)

// Store is the unified storage interface for all famledger entities.
// Entity store methods carry the entity name, so the narrow interfaces embed
// without collisions.
type Store interface {
	user.Store
	account.Store
	transaction.Store
	recurring.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
