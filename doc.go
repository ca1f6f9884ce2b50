// Package famledger provides a family finance ledger engine for Go applications.
//
// Famledger is designed as a library, not a service. Import it directly into
// your Go application and hand it a store. It provides:
//
//   - Account balances that always equal the sum of their counted transactions
//   - An approval workflow for children's transactions
//   - Recurring allowances, chores and subscriptions posted on schedule
//   - Monthly interest derived from account balances and rates
//   - Parent and child access scoping with multi-parent households
//   - CSV statement import and export
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/famledger"
//	    "github.com/xraph/famledger/store/memory"
//	)
//
//	l := famledger.New(memory.New())
//
//	// Start the ledger (runs migrations and the scheduler)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Every mutating call takes the Caller supplied by the host's auth layer.
// Parents see themselves and their children; children see only themselves.
//
//	parent := famledger.Caller{ID: mom.ID, Role: user.RoleParent}
//	acct, err := l.CreateAccount(ctx, parent, famledger.CreateAccountInput{
//	    OwnerID: kid.ID,
//	    Name:    "Spending",
//	    Type:    account.TypeSpending,
//	})
//
// A transaction counts toward its account's balance when it is approved,
// not rejected and not deleted. Approvals, rejections, deletions and edits
// move the balance by exactly the change in counted effect:
//
//	t, err := l.CreateTransaction(ctx, child, famledger.CreateTransactionInput{
//	    AccountID: acct.ID,
//	    Amount:    famledger.Cents(500),
//	    Type:      transaction.TypeDeposit,
//	})
//	// pending: balance unchanged
//	_, err = l.ApproveTransaction(ctx, parent, t.ID)
//	// counted: balance +5.00
//
// Recurring definitions post transactions when due. An allowance splits its
// amount over the beneficiary's spending, saving and donation accounts:
//
//	_, err = l.CreateRecurring(ctx, parent, famledger.CreateRecurringInput{
//	    Name:      "Weekly allowance",
//	    Amount:    famledger.Cents(1000),
//	    Type:      recurring.TypeAllowance,
//	    Frequency: recurring.FrequencyWeekly,
//	    UserID:    kid.ID,
//	    Distribution: recurring.Distribution{
//	        account.TypeSpending: decimal.NewFromInt(50),
//	        account.TypeSaving:   decimal.NewFromInt(40),
//	        account.TypeDonation: decimal.NewFromInt(10),
//	    },
//	})
//
// # Consistency
//
// All monetary values are integer cents. Every balance change goes through
// one path that serializes writers per account. RecalculateBalance rebuilds
// a balance from its transactions and repairs any drift.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	usr_01h2xcejqtf2nbrexx3vqjhp41   // User ID
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
//	rec_01h455vb4pex5vsknk084sn02q   // Recurring definition ID
package famledger
