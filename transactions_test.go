package famledger_test

import (
	"errors"
	"testing"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		caller      func() famledger.Caller
		in          famledger.CreateTransactionInput
		wantBalance int64
		wantCounted bool
		wantErr     error
		wantKind    famledger.ErrorKind
	}{
		{
			name:        "parent approved deposit",
			caller:      func() famledger.Caller { return f.parentC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(1000), Type: transaction.TypeDeposit, Approved: boolPtr(true)},
			wantBalance: 1000,
			wantCounted: true,
		},
		{
			name:        "child deposit stays pending",
			caller:      func() famledger.Caller { return f.childC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(500), Type: transaction.TypeDeposit},
			wantBalance: 1000,
		},
		{
			name:        "interest approved by default",
			caller:      func() famledger.Caller { return f.childC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(7), Type: transaction.TypeInterest},
			wantBalance: 1007,
			wantCounted: true,
		},
		{
			name:        "parent approved subscription",
			caller:      func() famledger.Caller { return f.parentC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(300), Type: transaction.TypeSubscription, Approved: boolPtr(true)},
			wantBalance: 707,
			wantCounted: true,
		},
		{
			name:        "child cannot self-approve",
			caller:      func() famledger.Caller { return f.childC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(500), Type: transaction.TypeDeposit, Approved: boolPtr(true)},
			wantBalance: 707,
			wantErr:     famledger.ErrParentRequired,
			wantKind:    famledger.KindForbidden,
		},
		{
			name:        "transfer rejected",
			caller:      func() famledger.Caller { return f.parentC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(100), Type: transaction.TypeTransfer},
			wantBalance: 707,
			wantErr:     famledger.ErrUnsupportedType,
			wantKind:    famledger.KindValidation,
		},
		{
			name:        "negative amount",
			caller:      func() famledger.Caller { return f.parentC },
			in:          famledger.CreateTransactionInput{Amount: types.Cents(-100), Type: transaction.TypeDeposit},
			wantBalance: 707,
			wantKind:    famledger.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.AccountID = f.spending.ID
			got, err := f.ledger.CreateTransaction(f.ctx, tt.caller(), in)
			switch {
			case tt.wantErr != nil || tt.wantKind != "":
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantKind != "" && famledger.KindOf(err) != tt.wantKind {
					t.Errorf("KindOf = %s, want %s", famledger.KindOf(err), tt.wantKind)
				}
			case err != nil:
				t.Fatalf("CreateTransaction: %v", err)
			default:
				if got.IsCounted() != tt.wantCounted {
					t.Errorf("IsCounted = %v, want %v", got.IsCounted(), tt.wantCounted)
				}
				if got.Date.IsZero() {
					t.Error("Date not defaulted")
				}
			}
			f.wantBalance(f.spending.ID, tt.wantBalance)
		})
	}
	f.assertConsistent(f.spending.ID)
}

func TestCreateTransactionOutsideScope(t *testing.T) {
	f := newFixture(t)
	_, otherC := f.newParent("Lee", "lee@example.com")

	_, err := f.ledger.CreateTransaction(f.ctx, otherC, famledger.CreateTransactionInput{
		AccountID: f.spending.ID,
		Amount:    types.Cents(100),
		Type:      transaction.TypeDeposit,
	})
	if !famledger.IsForbidden(err) {
		t.Fatalf("error = %v, want forbidden", err)
	}
}

// Scenario B: reject reverses a counted transaction once.
func TestRejectReversesOnce(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: f.saving.ID, Amount: types.Cents(1000), Type: transaction.TypeDeposit, Approved: boolPtr(true),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.wantBalance(f.saving.ID, 1000)

	tx, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: f.saving.ID, Amount: types.Cents(5000), Type: transaction.TypeDeposit, Approved: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	f.wantBalance(f.saving.ID, 6000)

	rejected, err := f.ledger.RejectTransaction(f.ctx, f.parentC, tx.ID, "typo")
	if err != nil {
		t.Fatalf("RejectTransaction: %v", err)
	}
	if rejected.Approved || !rejected.Rejected || rejected.RejectionReason != "typo" {
		t.Errorf("rejected state = %+v", rejected)
	}
	f.wantBalance(f.saving.ID, 1000)

	_, err = f.ledger.RejectTransaction(f.ctx, f.parentC, tx.ID, "again")
	if !errors.Is(err, famledger.ErrAlreadyRejected) {
		t.Fatalf("second reject error = %v, want ErrAlreadyRejected", err)
	}
	if famledger.KindOf(err) != famledger.KindConflict {
		t.Errorf("KindOf = %s, want conflict", famledger.KindOf(err))
	}
	f.wantBalance(f.saving.ID, 1000)
	f.assertConsistent(f.saving.ID)
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t)

	pending, err := f.ledger.CreateTransaction(f.ctx, f.childC, famledger.CreateTransactionInput{
		AccountID: f.spending.ID, Amount: types.Cents(2500), Type: transaction.TypeDeposit, Description: "chores",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	f.wantBalance(f.spending.ID, 0)

	if _, err := f.ledger.ApproveTransaction(f.ctx, f.childC, pending.ID); !errors.Is(err, famledger.ErrParentRequired) {
		t.Fatalf("child approve error = %v, want ErrParentRequired", err)
	}

	approved, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, pending.ID)
	if err != nil {
		t.Fatalf("ApproveTransaction: %v", err)
	}
	if !approved.Approved || !approved.ApprovedBy.Equal(f.parent.ID) || approved.ApprovedAt == nil {
		t.Errorf("approval not recorded: %+v", approved)
	}
	f.wantBalance(f.spending.ID, 2500)

	if _, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, pending.ID); !errors.Is(err, famledger.ErrAlreadyApproved) {
		t.Fatalf("second approve error = %v, want ErrAlreadyApproved", err)
	}
	f.wantBalance(f.spending.ID, 2500)

	deleted, err := f.ledger.MarkTransactionDeleted(f.ctx, f.parentC, pending.ID)
	if err != nil {
		t.Fatalf("MarkTransactionDeleted: %v", err)
	}
	if !deleted.Deleted || !deleted.Approved {
		t.Errorf("deleted state = %+v", deleted)
	}
	f.wantBalance(f.spending.ID, 0)

	if _, err := f.ledger.MarkTransactionDeleted(f.ctx, f.parentC, pending.ID); !errors.Is(err, famledger.ErrAlreadyDeleted) {
		t.Fatalf("second delete error = %v, want ErrAlreadyDeleted", err)
	}
	if _, err := f.ledger.RejectTransaction(f.ctx, f.parentC, pending.ID, ""); err != nil {
		t.Fatalf("reject after delete: %v", err)
	}
	f.wantBalance(f.spending.ID, 0)
	f.assertConsistent(f.spending.ID)
}

func TestApproveRejectedOrDeleted(t *testing.T) {
	f := newFixture(t)

	newPending := func() *transaction.Transaction {
		tx, err := f.ledger.CreateTransaction(f.ctx, f.childC, famledger.CreateTransactionInput{
			AccountID: f.spending.ID, Amount: types.Cents(100), Type: transaction.TypeDeposit,
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		return tx
	}

	rejected := newPending()
	if _, err := f.ledger.RejectTransaction(f.ctx, f.parentC, rejected.ID, "no"); err != nil {
		t.Fatalf("RejectTransaction: %v", err)
	}
	if _, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, rejected.ID); !errors.Is(err, famledger.ErrAlreadyRejected) {
		t.Errorf("approve rejected error = %v, want ErrAlreadyRejected", err)
	}

	deleted := newPending()
	if _, err := f.ledger.MarkTransactionDeleted(f.ctx, f.parentC, deleted.ID); err != nil {
		t.Fatalf("MarkTransactionDeleted: %v", err)
	}
	_, err := f.ledger.ApproveTransaction(f.ctx, f.parentC, deleted.ID)
	if !errors.Is(err, famledger.ErrAlreadyDeleted) {
		t.Errorf("approve deleted error = %v, want ErrAlreadyDeleted", err)
	}
	if famledger.KindOf(err) != famledger.KindConflict {
		t.Errorf("KindOf = %s, want conflict", famledger.KindOf(err))
	}

	f.wantBalance(f.spending.ID, 0)
	f.assertConsistent(f.spending.ID)
}

func TestUpdateTransactionDelta(t *testing.T) {
	f := newFixture(t)

	tx, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: f.spending.ID, Amount: types.Cents(1000), Type: transaction.TypeDeposit, Approved: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	amount := types.Cents(400)
	withdrawal := transaction.TypeWithdrawal
	desc := "fixed"

	steps := []struct {
		name        string
		patch       famledger.TransactionPatch
		wantBalance int64
	}{
		{"amount change", famledger.TransactionPatch{Amount: &amount}, 400},
		{"type flip", famledger.TransactionPatch{Type: &withdrawal}, -400},
		{"description only", famledger.TransactionPatch{Description: &desc}, -400},
		{"unapprove", famledger.TransactionPatch{Approved: boolPtr(false)}, 0},
		{"reapprove", famledger.TransactionPatch{Approved: boolPtr(true)}, -400},
	}

	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			if _, err := f.ledger.UpdateTransaction(f.ctx, f.parentC, tx.ID, st.patch); err != nil {
				t.Fatalf("UpdateTransaction: %v", err)
			}
			f.wantBalance(f.spending.ID, st.wantBalance)
			f.assertConsistent(f.spending.ID)
		})
	}

	transfer := transaction.TypeTransfer
	if _, err := f.ledger.UpdateTransaction(f.ctx, f.parentC, tx.ID, famledger.TransactionPatch{Type: &transfer}); !errors.Is(err, famledger.ErrUnsupportedType) {
		t.Errorf("transfer patch error = %v, want ErrUnsupportedType", err)
	}
	f.wantBalance(f.spending.ID, -400)
}

func TestUpdateCountedAmountRebuildsBalance(t *testing.T) {
	f := newFixture(t)
	tx := f.deposit(f.spending, 1000)

	// Corrupt the stored balance behind the ledger's back.
	if err := f.store.SetBalance(f.ctx, f.spending.ID, types.Cents(7)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	amount := types.Cents(250)
	if _, err := f.ledger.UpdateTransaction(f.ctx, f.parentC, tx.ID, famledger.TransactionPatch{Amount: &amount}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	f.wantBalance(f.spending.ID, 250)

	// Edits that leave the effect alone do not rebuild.
	if err := f.store.SetBalance(f.ctx, f.spending.ID, types.Cents(7)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	desc := "chores"
	if _, err := f.ledger.UpdateTransaction(f.ctx, f.parentC, tx.ID, famledger.TransactionPatch{Description: &desc}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	f.wantBalance(f.spending.ID, 7)
}

func TestListTransactionsScoped(t *testing.T) {
	f := newFixture(t)
	sibling := f.newChild("Sam", "sam@example.com", f.parentC)
	siblingAcct := f.newAccount(sibling.ID, "Sam spending", account.TypeSpending, "0")

	if _, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: f.spending.ID, Amount: types.Cents(100), Type: transaction.TypeDeposit,
	}); err != nil {
		t.Fatal(err)
	}
	siblingTx, err := f.ledger.CreateTransaction(f.ctx, f.parentC, famledger.CreateTransactionInput{
		AccountID: siblingAcct.ID, Amount: types.Cents(200), Type: transaction.TypeDeposit,
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := f.ledger.ListTransactions(f.ctx, f.parentC, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions(parent): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("parent sees %d transactions, want 2", len(all))
	}

	own, err := f.ledger.ListTransactions(f.ctx, f.childC, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions(child): %v", err)
	}
	if len(own) != 1 || !own[0].AccountID.Equal(f.spending.ID) {
		t.Errorf("child sees %+v, want only its own transaction", own)
	}

	if _, err := f.ledger.GetTransaction(f.ctx, f.childC, siblingTx.ID); !famledger.IsForbidden(err) {
		t.Errorf("GetTransaction(sibling) error = %v, want forbidden", err)
	}

	filtered, err := f.ledger.ListTransactions(f.ctx, f.childC, transaction.ListOpts{AccountIDs: []id.AccountID{siblingAcct.ID}})
	if err != nil {
		t.Fatalf("ListTransactions(filtered): %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("child filtered to sibling account sees %d transactions, want 0", len(filtered))
	}
}
