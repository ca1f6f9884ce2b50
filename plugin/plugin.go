// Package plugin provides an extensible plugin system for famledger.
// Plugins hook into ledger events. A plugin implements Plugin plus any of
// the hook interfaces below; the registry discovers them at registration.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *famledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnTransactionCreated is called after a transaction and its balance effect
// are stored.
type OnTransactionCreated interface {
	Plugin
	OnTransactionCreated(ctx context.Context, t *transaction.Transaction) error
}

type OnTransactionApproved interface {
	Plugin
	OnTransactionApproved(ctx context.Context, t *transaction.Transaction) error
}

type OnTransactionRejected interface {
	Plugin
	OnTransactionRejected(ctx context.Context, t *transaction.Transaction) error
}

// OnTransactionDeleted is called after a soft delete.
type OnTransactionDeleted interface {
	Plugin
	OnTransactionDeleted(ctx context.Context, t *transaction.Transaction) error
}

// OnTransactionUpdated is called after a field patch. delta is the balance
// change the patch produced.
type OnTransactionUpdated interface {
	Plugin
	OnTransactionUpdated(ctx context.Context, t *transaction.Transaction, delta types.Money) error
}

// OnBalanceRecalculated is called after a full balance rebuild.
type OnBalanceRecalculated interface {
	Plugin
	OnBalanceRecalculated(ctx context.Context, accountID id.AccountID, oldBalance, newBalance types.Money, counted int) error
}

// ──────────────────────────────────────────────────
// Recurring hooks
// ──────────────────────────────────────────────────

type OnRecurringCreated interface {
	Plugin
	OnRecurringCreated(ctx context.Context, d *recurring.Definition) error
}

type OnRecurringDeleted interface {
	Plugin
	OnRecurringDeleted(ctx context.Context, recID id.RecurringID) error
}

// OnRecurringProcessed is called once per definition that posted
// successfully during a due pass.
type OnRecurringProcessed interface {
	Plugin
	OnRecurringProcessed(ctx context.Context, d *recurring.Definition, posted []*transaction.Transaction) error
}

// OnDuePassCompleted is called at the end of every due pass.
type OnDuePassCompleted interface {
	Plugin
	OnDuePassCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error
}

// OnInterestSynced is called after interest definitions are synced.
type OnInterestSynced interface {
	Plugin
	OnInterestSynced(ctx context.Context, processed int) error
}

// ──────────────────────────────────────────────────
// Family hooks
// ──────────────────────────────────────────────────

type OnParentRemoved interface {
	Plugin
	OnParentRemoved(ctx context.Context, childID, parentID id.UserID) error
}
