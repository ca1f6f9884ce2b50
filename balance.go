package famledger

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// keyedLocks hands out one mutex per entity ID. Entries are dropped once no
// goroutine holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refMutex)}
}

// lock blocks until the mutex for key is held and returns its release.
func (k *keyedLocks) lock(key id.ID) func() {
	name := key.String()

	k.mu.Lock()
	m, ok := k.locks[name]
	if !ok {
		m = &refMutex{}
		k.locks[name] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, name)
		}
		k.mu.Unlock()
	}
}

// ──────────────────────────────────────────────────
// Balance effects
// ──────────────────────────────────────────────────

// applyEffect is the only code path that changes a stored balance
// incrementally. The caller holds the account lock.
func (l *Ledger) applyEffect(ctx context.Context, accountID id.AccountID, delta types.Money) error {
	if delta.IsZero() {
		return nil
	}
	return l.store.AdjustBalance(ctx, accountID, delta)
}

// post stores a new transaction and applies its effect under the account
// lock. A failed balance write removes the transaction again.
func (l *Ledger) post(ctx context.Context, t *transaction.Transaction) error {
	unlock := l.locks.lock(t.AccountID)
	defer unlock()

	if _, err := l.store.GetAccount(ctx, t.AccountID); err != nil {
		return internal("get account", err)
	}

	if err := l.store.CreateTransaction(ctx, t); err != nil {
		return internal("create transaction", err)
	}

	if err := l.applyEffect(ctx, t.AccountID, t.Effect()); err != nil {
		if rbErr := l.store.DeleteTransaction(ctx, t.ID); rbErr != nil {
			l.logger.Error("compensating delete failed",
				"transaction_id", t.ID.String(),
				"account_id", t.AccountID.String(),
				"error", rbErr,
			)
		} else {
			l.logger.Error("transaction creation rolled back",
				"transaction_id", t.ID.String(),
				"error", err,
			)
		}
		return internal("apply balance effect", err)
	}
	return nil
}

// transition is the single path for changing a stored transaction. mutate
// edits the record in place and may refuse the change; the balance then
// moves by the difference between the effect after and the effect before.
// A failed balance write restores the previous record.
func (l *Ledger) transition(
	ctx context.Context,
	txnID id.TransactionID,
	mutate func(t *transaction.Transaction, now time.Time) error,
) (*transaction.Transaction, types.Money, error) {
	t, err := l.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, types.Zero(), internal("get transaction", err)
	}

	unlock := l.locks.lock(t.AccountID)
	defer unlock()

	// Re-read under the lock; the first read only located the account.
	t, err = l.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, types.Zero(), internal("get transaction", err)
	}

	before := t.Clone()
	now := l.now()
	if err := mutate(t, now); err != nil {
		return nil, types.Zero(), err
	}
	t.TouchAt(now)

	delta := transaction.EffectDelta(before, t)

	if err := l.store.UpdateTransaction(ctx, t); err != nil {
		return nil, types.Zero(), internal("update transaction", err)
	}

	if err := l.applyEffect(ctx, t.AccountID, delta); err != nil {
		if rbErr := l.store.UpdateTransaction(ctx, before); rbErr != nil {
			l.logger.Error("compensating transaction restore failed",
				"transaction_id", t.ID.String(),
				"account_id", t.AccountID.String(),
				"error", rbErr,
			)
		} else {
			l.logger.Error("transaction change rolled back",
				"transaction_id", t.ID.String(),
				"delta", delta.String(),
				"error", err,
			)
		}
		return nil, types.Zero(), internal("apply balance effect", err)
	}

	return t, delta, nil
}

// ──────────────────────────────────────────────────
// Recalculation
// ──────────────────────────────────────────────────

// Recalculation reports the outcome of a full balance rebuild.
type Recalculation struct {
	AccountID  id.AccountID `json:"account_id"`
	OldBalance types.Money  `json:"old_balance"`
	NewBalance types.Money  `json:"new_balance"`
	Counted    int          `json:"counted_transactions"`
}

// Drift is the correction the rebuild applied.
func (r *Recalculation) Drift() types.Money {
	return r.NewBalance.Subtract(r.OldBalance)
}

// RecalculateBalance rebuilds an account balance from its counted
// transactions and stores the result as authoritative.
func (l *Ledger) RecalculateBalance(ctx context.Context, caller Caller, accountID id.AccountID) (*Recalculation, error) {
	if _, err := l.authorizeAccount(ctx, caller, accountID); err != nil {
		return nil, err
	}
	return l.recalculate(ctx, accountID)
}

// RecalculateAll rebuilds every account balance. Accounts that fail are
// reported through a MultiError; the rest are still healed.
func (l *Ledger) RecalculateAll(ctx context.Context) ([]*Recalculation, error) {
	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		return nil, internal("list accounts", err)
	}

	var errs MultiError
	results := make([]*Recalculation, 0, len(accounts))
	for _, a := range accounts {
		r, err := l.recalculate(ctx, a.ID)
		if err != nil {
			errs.Add(err)
			continue
		}
		results = append(results, r)
	}
	return results, errs.ErrOrNil()
}

func (l *Ledger) recalculate(ctx context.Context, accountID id.AccountID) (*Recalculation, error) {
	unlock := l.locks.lock(accountID)
	defer unlock()

	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, internal("get account", err)
	}

	txns, err := l.store.ListTransactions(ctx, transaction.ListOpts{
		AccountIDs:     []id.AccountID{accountID},
		IncludeDeleted: true,
	})
	if err != nil {
		return nil, internal("list transactions", err)
	}

	res := &Recalculation{AccountID: accountID, OldBalance: a.Balance}
	for _, t := range txns {
		if t.IsCounted() {
			res.Counted++
		}
		res.NewBalance = res.NewBalance.Add(t.Effect())
	}

	if !res.Drift().IsZero() {
		if err := l.store.SetBalance(ctx, accountID, res.NewBalance); err != nil {
			return nil, internal("set balance", err)
		}
		l.logger.Warn("balance drift corrected",
			"account_id", accountID.String(),
			"old_balance", res.OldBalance.String(),
			"new_balance", res.NewBalance.String(),
		)
	}

	l.plugins.EmitBalanceRecalculated(ctx, accountID, res.OldBalance, res.NewBalance, res.Counted)
	return res, nil
}
