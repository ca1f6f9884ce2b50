package famledger_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

func TestImportStatement(t *testing.T) {
	f := newFixture(t)
	in := "Date,Note,Spending,Saving,Donating\n" +
		"03/01/2024,Birthday,$20.00,$50.00,$5.00\n" +
		"03/02/2024,Toy,(4.99),,\n"

	if err := f.store.DeleteAccount(f.ctx, f.donation.ID); err != nil {
		t.Fatal(err)
	}

	res, err := f.ledger.ImportStatement(f.ctx, f.parentC, f.child.ID, strings.NewReader(in))
	if err != nil {
		t.Fatalf("ImportStatement: %v", err)
	}
	if res.Posted != 3 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 3 posted 1 skipped", res)
	}

	f.wantBalance(f.spending.ID, 2000-499)
	f.wantBalance(f.saving.ID, 5000)
	f.assertConsistent(f.spending.ID)

	txns, err := f.ledger.ListTransactions(f.ctx, f.childC, transaction.ListOpts{AccountIDs: []id.AccountID{f.spending.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d spending transactions, want 2", len(txns))
	}
	toy := txns[0]
	if toy.Type != transaction.TypeWithdrawal || toy.Amount.Amount != 499 || toy.Description != "Toy" || !toy.IsCounted() {
		t.Errorf("toy = %+v", toy)
	}
}

func TestImportStatementRequiresParent(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ImportStatement(f.ctx, f.childC, f.child.ID, strings.NewReader("Date,Spending\n2024-01-01,1\n"))
	if !errors.Is(err, famledger.ErrParentRequired) {
		t.Errorf("error = %v, want ErrParentRequired", err)
	}

	_, err = f.ledger.ImportStatement(f.ctx, f.parentC, f.child.ID, strings.NewReader("Note,Spending\nx,1\n"))
	if !famledger.IsValidation(err) {
		t.Errorf("missing date column error = %v, want validation", err)
	}
}

func TestExportStatement(t *testing.T) {
	f := newFixture(t)
	f.deposit(f.spending, 1250)
	if _, err := f.ledger.CreateTransaction(f.ctx, f.childC, famledger.CreateTransactionInput{
		AccountID: f.saving.ID, Amount: types.Cents(300), Type: transaction.TypeWithdrawal, Description: "Gift",
	}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := f.ledger.ExportStatement(f.ctx, f.parentC, &buf, transaction.ListOpts{}); err != nil {
		t.Fatalf("ExportStatement: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(out, ",Spending,deposit,,12.50,approved") {
		t.Errorf("missing deposit row:\n%s", out)
	}
	if !strings.Contains(out, ",Saving,withdrawal,Gift,-3.00,pending") {
		t.Errorf("missing pending withdrawal row:\n%s", out)
	}
}
