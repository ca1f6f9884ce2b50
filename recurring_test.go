package famledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/store"
	"github.com/xraph/famledger/store/memory"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

func (f *fixture) allowance(amount int64, dist recurring.Distribution, next time.Time) (*recurring.Definition, error) {
	return f.ledger.CreateRecurring(f.ctx, f.parentC, famledger.CreateRecurringInput{
		Name:         "Weekly allowance",
		Amount:       types.Cents(amount),
		Type:         recurring.TypeAllowance,
		Frequency:    recurring.FrequencyWeekly,
		AccountID:    f.spending.ID,
		UserID:       f.child.ID,
		Distribution: dist,
		NextDate:     next,
	})
}

func (f *fixture) scheduled(name string, typ recurring.Type, accountID id.AccountID, amount int64, next time.Time) *recurring.Definition {
	f.t.Helper()
	d, err := f.ledger.CreateRecurring(f.ctx, f.parentC, famledger.CreateRecurringInput{
		Name:      name,
		Amount:    types.Cents(amount),
		Type:      typ,
		Frequency: recurring.FrequencyWeekly,
		AccountID: accountID,
		NextDate:  next,
	})
	if err != nil {
		f.t.Fatalf("CreateRecurring(%s): %v", name, err)
	}
	return d
}

func TestAllowanceDistribution(t *testing.T) {
	tests := []struct {
		name    string
		dist    recurring.Distribution
		wantErr error
	}{
		{
			name: "sums to 90",
			dist: recurring.Distribution{
				account.TypeSpending: pct("40"),
				account.TypeSaving:   pct("40"),
				account.TypeDonation: pct("10"),
			},
			wantErr: famledger.ErrInvalidDistribution,
		},
		{
			name: "sums to 100",
			dist: recurring.Distribution{
				account.TypeSpending: pct("34"),
				account.TypeSaving:   pct("33"),
				account.TypeDonation: pct("33"),
			},
		},
		{
			name: "fractional shares",
			dist: recurring.Distribution{
				account.TypeSpending: pct("33.5"),
				account.TypeSaving:   pct("66.5"),
			},
		},
		{
			name: "empty",
			dist: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d, err := f.allowance(1000, tt.dist, testNow)
			switch {
			case tt.dist == nil:
				if !famledger.IsValidation(err) {
					t.Fatalf("error = %v, want validation", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if famledger.KindOf(err) != famledger.KindValidation {
					t.Errorf("KindOf = %s, want validation", famledger.KindOf(err))
				}
			default:
				if err != nil {
					t.Fatalf("CreateRecurring: %v", err)
				}
				if !d.Active || !d.UserID.Equal(f.child.ID) {
					t.Errorf("definition = %+v", d)
				}
			}
		})
	}
}

func TestSingleActiveAllowance(t *testing.T) {
	f := newFixture(t)
	dist := recurring.Distribution{account.TypeSpending: pct("100")}

	first, err := f.allowance(500, dist, testNow)
	if err != nil {
		t.Fatalf("first allowance: %v", err)
	}

	_, err = f.allowance(700, dist, testNow)
	if !errors.Is(err, famledger.ErrActiveAllowanceExists) {
		t.Fatalf("second allowance error = %v, want ErrActiveAllowanceExists", err)
	}
	if famledger.KindOf(err) != famledger.KindConflict {
		t.Errorf("KindOf = %s, want conflict", famledger.KindOf(err))
	}

	if _, err := f.ledger.UpdateRecurring(f.ctx, f.parentC, first.ID, famledger.RecurringPatch{Active: boolPtr(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	second, err := f.allowance(700, dist, testNow)
	if err != nil {
		t.Fatalf("allowance after deactivation: %v", err)
	}

	_, err = f.ledger.UpdateRecurring(f.ctx, f.parentC, first.ID, famledger.RecurringPatch{Active: boolPtr(true)})
	if !errors.Is(err, famledger.ErrActiveAllowanceExists) {
		t.Fatalf("reactivate error = %v, want ErrActiveAllowanceExists", err)
	}

	if err := f.ledger.DeleteRecurring(f.ctx, f.parentC, second.ID); err != nil {
		t.Fatalf("DeleteRecurring: %v", err)
	}
	if _, err := f.ledger.UpdateRecurring(f.ctx, f.parentC, first.ID, famledger.RecurringPatch{Active: boolPtr(true)}); err != nil {
		t.Fatalf("reactivate after delete: %v", err)
	}
}

func TestProcessDueAllowance(t *testing.T) {
	f := newFixture(t, famledger.WithInterestRefresh(false))
	d, err := f.allowance(1001, recurring.Distribution{
		account.TypeSpending: pct("50"),
		account.TypeSaving:   pct("40"),
		account.TypeDonation: pct("10"),
	}, testNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}

	res, err := f.ledger.ProcessDue(f.ctx, testNow)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(res.Processed) != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	item := res.Processed[0]
	if len(item.Transactions) != 3 {
		t.Fatalf("posted %d transactions, want 3", len(item.Transactions))
	}
	for _, tx := range item.Transactions {
		if !tx.IsCounted() || tx.Type != transaction.TypeDeposit || !tx.RecurringID.Equal(d.ID) {
			t.Errorf("posting = %+v", tx)
		}
	}

	// 50% of 10.01 rounds half away from zero.
	f.wantBalance(f.spending.ID, 501)
	f.wantBalance(f.saving.ID, 400)
	f.wantBalance(f.donation.ID, 100)

	stored, err := f.store.GetRecurring(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetRecurring: %v", err)
	}
	if want := d.NextDate.AddDate(0, 0, 7); !stored.NextDate.Equal(want) {
		t.Errorf("NextDate = %v, want %v", stored.NextDate, want)
	}
	if stored.LastProcessed == nil || !stored.LastProcessed.Equal(testNow) {
		t.Errorf("LastProcessed = %v, want %v", stored.LastProcessed, testNow)
	}

	again, err := f.ledger.ProcessDue(f.ctx, testNow)
	if err != nil {
		t.Fatalf("second ProcessDue: %v", err)
	}
	if len(again.Processed) != 0 {
		t.Errorf("second pass processed %d, want 0", len(again.Processed))
	}
	f.wantBalance(f.spending.ID, 501)
}

func TestProcessDueAllowanceSkipsMissingAccounts(t *testing.T) {
	f := newFixture(t, famledger.WithInterestRefresh(false))
	if err := f.store.DeleteAccount(f.ctx, f.donation.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.allowance(1000, recurring.Distribution{
		account.TypeSpending: pct("50"),
		account.TypeSaving:   pct("50"),
		account.TypeDonation: pct("0"),
	}, testNow); err != nil {
		t.Fatalf("allowance: %v", err)
	}

	res, err := f.ledger.ProcessDue(f.ctx, testNow)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(res.Processed) != 1 || len(res.Processed[0].Transactions) != 2 {
		t.Fatalf("result = %+v", res)
	}
	f.wantBalance(f.spending.ID, 500)
	f.wantBalance(f.saving.ID, 500)
}

// Scenario C: one failing definition does not stop the others.
func TestProcessDuePartialFailure(t *testing.T) {
	f := newFixture(t, famledger.WithProcessConcurrency(2))
	doomed := f.newAccount(f.child.ID, "Toy fund", account.TypeSpending, "0")

	first := f.scheduled("Chores", recurring.TypeOther, f.spending.ID, 300, testNow.AddDate(0, 0, -3))
	second := f.scheduled("Toy fund top-up", recurring.TypeOther, doomed.ID, 100, testNow.AddDate(0, 0, -2))
	third := f.scheduled("Streaming", recurring.TypeSubscription, f.spending.ID, 99, testNow.AddDate(0, 0, -1))

	if err := f.store.DeleteAccount(f.ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	res, err := f.ledger.ProcessDue(f.ctx, testNow)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(res.Processed) != 2 || len(res.Errors) != 1 {
		t.Fatalf("processed %d, failed %d; want 2 and 1", len(res.Processed), len(res.Errors))
	}
	if !res.Processed[0].RecurringID.Equal(first.ID) || !res.Processed[1].RecurringID.Equal(third.ID) {
		t.Errorf("processed order = %s, %s", res.Processed[0].RecurringID, res.Processed[1].RecurringID)
	}
	if !res.Errors[0].RecurringID.Equal(second.ID) || !famledger.IsNotFound(res.Errors[0]) {
		t.Errorf("error = %+v", res.Errors[0])
	}

	for _, tc := range []struct {
		def      *recurring.Definition
		advanced bool
	}{{first, true}, {second, false}, {third, true}} {
		stored, err := f.store.GetRecurring(f.ctx, tc.def.ID)
		if err != nil {
			t.Fatalf("GetRecurring: %v", err)
		}
		if moved := !stored.NextDate.Equal(tc.def.NextDate); moved != tc.advanced {
			t.Errorf("%s advanced = %v, want %v", tc.def.Name, moved, tc.advanced)
		}
	}

	f.wantBalance(f.spending.ID, 300-99)
	f.assertConsistent(f.spending.ID)
}

// flakyStore fails balance writes for one account.
type flakyStore struct {
	*memory.Store
	mu   sync.Mutex
	fail id.AccountID
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) failOn(accountID id.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = accountID
}

func (s *flakyStore) AdjustBalance(ctx context.Context, accountID id.AccountID, delta types.Money) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail.Equal(accountID) {
		return errDiskFull
	}
	return s.Store.AdjustBalance(ctx, accountID, delta)
}

func TestPostCompensatesFailedBalanceWrite(t *testing.T) {
	var flaky *flakyStore
	f := newFixtureOver(t, func(m *memory.Store) store.Store {
		flaky = &flakyStore{Store: m}
		return flaky
	})
	flaky.failOn(f.saving.ID)

	_, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: f.saving.ID, Amount: types.Cents(1000), Type: transaction.TypeDeposit, Approved: boolPtr(true),
	})
	if !errors.Is(err, errDiskFull) || !famledger.IsInternal(err) {
		t.Fatalf("error = %v, want internal wrapping errDiskFull", err)
	}

	txns, err := f.store.ListTransactions(f.ctx, transaction.ListOpts{AccountIDs: []id.AccountID{f.saving.ID}, IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 0 {
		t.Errorf("found %d transactions after failed post, want 0", len(txns))
	}
	f.wantBalance(f.saving.ID, 0)
}

func TestTransitionRestoresOnFailedBalanceWrite(t *testing.T) {
	var flaky *flakyStore
	f := newFixtureOver(t, func(m *memory.Store) store.Store {
		flaky = &flakyStore{Store: m}
		return flaky
	})

	tx, err := f.ledger.CreateTransaction(f.ctx, f.childC, famledger.CreateTransactionInput{
		AccountID: f.saving.ID, Amount: types.Cents(1000), Type: transaction.TypeDeposit,
	})
	if err != nil {
		t.Fatal(err)
	}
	flaky.failOn(f.saving.ID)

	if _, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, tx.ID); !errors.Is(err, errDiskFull) {
		t.Fatalf("error = %v, want errDiskFull", err)
	}
	stored, err := f.store.GetTransaction(f.ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Approved {
		t.Error("approval persisted although the balance write failed")
	}

	flaky.failOn(id.Nil)
	if _, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, tx.ID); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	f.wantBalance(f.saving.ID, 1000)
	f.assertConsistent(f.saving.ID)
}

func TestProcessDueRevertsPartialAllowance(t *testing.T) {
	var flaky *flakyStore
	f := newFixtureOver(t, func(m *memory.Store) store.Store {
		flaky = &flakyStore{Store: m}
		return flaky
	}, famledger.WithInterestRefresh(false))

	d, err := f.allowance(1000, recurring.Distribution{
		account.TypeSpending: pct("60"),
		account.TypeSaving:   pct("40"),
	}, testNow)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	flaky.failOn(f.saving.ID)

	res, err := f.ledger.ProcessDue(f.ctx, testNow)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(res.Errors) != 1 || len(res.Processed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	f.wantBalance(f.spending.ID, 0)
	f.wantBalance(f.saving.ID, 0)
	stored, err := f.store.GetRecurring(f.ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.NextDate.Equal(d.NextDate) || stored.LastProcessed != nil {
		t.Errorf("schedule moved on failure: %+v", stored)
	}

	flaky.failOn(id.Nil)
	if _, err := f.ledger.ProcessDue(f.ctx, testNow); err != nil {
		t.Fatalf("retry ProcessDue: %v", err)
	}
	f.wantBalance(f.spending.ID, 600)
	f.wantBalance(f.saving.ID, 400)
	f.assertConsistent(f.spending.ID)
	f.assertConsistent(f.saving.ID)
}

// recorder counts hook calls.
type recorder struct {
	mu        sync.Mutex
	created   int
	processed int
	passes    []int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnTransactionCreated(_ context.Context, _ *transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	return nil
}

func (r *recorder) OnRecurringProcessed(_ context.Context, _ *recurring.Definition, _ []*transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	return nil
}

func (r *recorder) OnDuePassCompleted(_ context.Context, processed, failed int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, processed, failed)
	return nil
}

func TestProcessDueEmitsHooks(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, famledger.WithPlugin(rec), famledger.WithInterestRefresh(false))
	f.scheduled("Chores", recurring.TypeOther, f.spending.ID, 300, testNow)
	f.scheduled("Comics", recurring.TypeSubscription, f.spending.ID, 150, testNow)

	if _, err := f.ledger.ProcessDue(f.ctx, testNow); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.created != 2 || rec.processed != 2 {
		t.Errorf("created = %d, processed = %d; want 2 and 2", rec.created, rec.processed)
	}
	if len(rec.passes) != 2 || rec.passes[0] != 2 || rec.passes[1] != 0 {
		t.Errorf("passes = %v, want [2 0]", rec.passes)
	}
}

func TestConcurrentDuePassesPostOnce(t *testing.T) {
	f := newFixture(t, famledger.WithInterestRefresh(false), famledger.WithProcessConcurrency(8))
	const n = 100
	for i := 0; i < n; i++ {
		f.scheduled(fmt.Sprintf("Chore %d", i), recurring.TypeOther, f.spending.ID, 100, testNow.Add(-time.Hour))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.ledger.ProcessDue(f.ctx, testNow)
			if err != nil {
				t.Errorf("ProcessDue: %v", err)
				return
			}
			mu.Lock()
			processed += len(res.Processed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if processed != n {
		t.Errorf("processed %d definitions across both passes, want %d", processed, n)
	}
	f.wantBalance(f.spending.ID, n*100)

	txns, err := f.store.ListTransactions(f.ctx, transaction.ListOpts{AccountIDs: []id.AccountID{f.spending.ID}})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != n {
		t.Errorf("%d postings, want %d", len(txns), n)
	}
	f.assertConsistent(f.spending.ID)
}
