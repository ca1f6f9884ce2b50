package famledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/types"
)

// InterestDefinitionName keys the single interest definition of an account.
const InterestDefinitionName = "Monthly Interest"

// InterestSync summarizes a SyncInterestDefinitions run.
type InterestSync struct {
	Processed   int `json:"processed"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
}

// SyncInterestDefinitions derives one monthly interest definition per
// eligible account from its balance and rate. Running it again without a
// balance or rate change writes nothing.
func (l *Ledger) SyncInterestDefinitions(ctx context.Context) (*InterestSync, error) {
	return l.syncInterest(ctx, l.now())
}

func (l *Ledger) syncInterest(ctx context.Context, now time.Time) (*InterestSync, error) {
	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{
		Types: []account.Type{account.TypeSaving, account.TypeDonation},
	})
	if err != nil {
		return nil, internal("list accounts", err)
	}

	res := &InterestSync{}
	var errs MultiError
	for _, a := range accounts {
		if !a.InterestEligible() {
			continue
		}
		res.Processed++

		created, updated, err := l.syncAccountInterest(ctx, a, now)
		if err != nil {
			errs.Add(fmt.Errorf("account %s: %w", a.ID, err))
			continue
		}
		if created {
			res.Created++
		}
		if updated {
			res.Updated++
		}
	}

	deactivated, err := l.DeactivateStaleInterest(ctx)
	if err != nil {
		errs.Add(err)
	}
	res.Deactivated = deactivated

	l.plugins.EmitInterestSynced(ctx, res.Processed)
	l.logger.Info("interest definitions synced",
		"processed", res.Processed,
		"created", res.Created,
		"updated", res.Updated,
		"deactivated", res.Deactivated,
	)
	return res, errs.ErrOrNil()
}

func (l *Ledger) syncAccountInterest(ctx context.Context, a *account.Account, now time.Time) (created, updated bool, err error) {
	amount := a.MonthlyInterest()

	d, err := l.store.FindRecurring(ctx, a.ID, recurring.TypeInterest, InterestDefinitionName)
	if err != nil && !IsNotFound(err) {
		return false, false, internal("find interest definition", err)
	}

	if d == nil || err != nil {
		d = &recurring.Definition{
			Entity:      types.EntityAt(now),
			ID:          id.NewRecurringID(),
			Name:        InterestDefinitionName,
			Description: fmt.Sprintf("%s%% annual interest for %s", a.InterestRate.String(), a.Name),
			Amount:      amount,
			Type:        recurring.TypeInterest,
			Frequency:   recurring.FrequencyMonthly,
			AccountID:   a.ID,
			UserID:      a.OwnerID,
			CreatedBy:   a.OwnerID,
			NextDate:    firstOfNextMonth(now),
			Active:      accruesInterest(a),
		}
		if err := l.store.CreateRecurring(ctx, d); err != nil {
			return false, false, internal("create interest definition", err)
		}
		l.plugins.EmitRecurringCreated(ctx, d)
		return true, false, nil
	}

	active := accruesInterest(a)
	if d.Amount.Equal(amount) && d.Active == active {
		return false, false, nil
	}
	d.Amount = amount
	d.Active = active
	d.TouchAt(now)
	if err := l.store.UpdateRecurring(ctx, d); err != nil {
		return false, false, internal("update interest definition", err)
	}
	return false, true, nil
}

// DeactivateStaleInterest pauses active interest definitions whose account
// is gone or no longer accrues at least one cent a month. It returns how
// many were paused.
func (l *Ledger) DeactivateStaleInterest(ctx context.Context) (int, error) {
	defs, err := l.activeInterestDefinitions(ctx)
	if err != nil {
		return 0, err
	}

	var errs MultiError
	deactivated := 0
	for _, d := range defs {
		a, err := l.store.GetAccount(ctx, d.AccountID)
		if err != nil && !IsNotFound(err) {
			errs.Add(internal("get account", err))
			continue
		}
		if err == nil && accruesInterest(a) {
			continue
		}

		d.Active = false
		d.TouchAt(l.now())
		if err := l.store.UpdateRecurring(ctx, d); err != nil {
			errs.Add(internal("deactivate interest definition", err))
			continue
		}
		deactivated++
	}
	return deactivated, errs.ErrOrNil()
}

// RefreshInterestAmounts rewrites the amount of every active interest
// definition that is more than one cent away from the current monthly
// interest. Activity and schedule are left alone.
func (l *Ledger) RefreshInterestAmounts(ctx context.Context) (int, error) {
	defs, err := l.activeInterestDefinitions(ctx)
	if err != nil {
		return 0, err
	}

	var errs MultiError
	updated := 0
	for _, d := range defs {
		a, err := l.store.GetAccount(ctx, d.AccountID)
		if err != nil {
			if !IsNotFound(err) {
				errs.Add(internal("get account", err))
			}
			continue
		}
		if !a.Balance.IsPositive() || !a.InterestRate.IsPositive() {
			continue
		}

		fresh := a.MonthlyInterest()
		if !fresh.IsPositive() {
			continue
		}
		if fresh.Subtract(d.Amount).Abs().Amount <= 1 {
			continue
		}
		d.Amount = fresh
		d.TouchAt(l.now())
		if err := l.store.UpdateRecurring(ctx, d); err != nil {
			errs.Add(internal("refresh interest definition", err))
			continue
		}
		updated++
	}
	return updated, errs.ErrOrNil()
}

// ListInterestDefinitions lists interest definitions visible to caller,
// soonest first.
func (l *Ledger) ListInterestDefinitions(ctx context.Context, caller Caller) ([]*recurring.Definition, error) {
	return l.ListRecurring(ctx, caller, recurring.ListOpts{Type: recurring.TypeInterest})
}

func (l *Ledger) activeInterestDefinitions(ctx context.Context) ([]*recurring.Definition, error) {
	active := true
	defs, err := l.store.ListRecurring(ctx, recurring.ListOpts{
		Type:   recurring.TypeInterest,
		Active: &active,
	})
	if err != nil {
		return nil, internal("list interest definitions", err)
	}
	return defs, nil
}

// accruesInterest is the single activity rule for interest definitions.
func accruesInterest(a *account.Account) bool {
	return a.InterestEligible() && a.Balance.IsPositive() && a.MonthlyInterest().IsPositive()
}

func firstOfNextMonth(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())
}
