package famledger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/store"
	"github.com/xraph/famledger/store/memory"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	ledger *famledger.Ledger

	parent   *user.User
	child    *user.User
	parentC  famledger.Caller
	childC   famledger.Caller
	spending *account.Account
	saving   *account.Account
	donation *account.Account
	now      time.Time
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a family of one parent and one child with a spending,
// saving (5%) and donation (2%) account for the child.
func newFixture(t *testing.T, opts ...famledger.Option) *fixture {
	t.Helper()
	return newFixtureOver(t, func(m *memory.Store) store.Store { return m }, opts...)
}

// newFixtureOver is newFixture with the ledger running on wrap(memory).
// Balance assertions read the memory store directly.
func newFixtureOver(t *testing.T, wrap func(*memory.Store) store.Store, opts ...famledger.Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memory.New(), now: testNow}
	f.build(wrap(f.store), opts...)
	return f
}

func (f *fixture) build(s store.Store, opts ...famledger.Option) {
	f.t.Helper()
	base := []famledger.Option{
		famledger.WithLogger(quietLogger()),
		famledger.WithClock(func() time.Time { return f.now }),
		famledger.WithoutScheduler(),
	}
	f.ledger = famledger.New(s, append(base, opts...)...)

	f.parent = &user.User{Name: "Pat", Email: "pat@example.com"}
	if err := f.ledger.RegisterParent(f.ctx, f.parent); err != nil {
		f.t.Fatalf("RegisterParent: %v", err)
	}
	f.parentC = famledger.Caller{ID: f.parent.ID, Role: user.RoleParent}

	f.child = f.newChild("Kim", "kim@example.com", f.parentC)
	f.childC = famledger.Caller{ID: f.child.ID, Role: user.RoleChild}

	f.spending = f.newAccount(f.child.ID, "Spending", account.TypeSpending, "0")
	f.saving = f.newAccount(f.child.ID, "Saving", account.TypeSaving, "5")
	f.donation = f.newAccount(f.child.ID, "Donation", account.TypeDonation, "2")
}

func (f *fixture) newChild(name, email string, by famledger.Caller) *user.User {
	f.t.Helper()
	dob := time.Date(2014, 6, 1, 0, 0, 0, 0, time.UTC)
	u := &user.User{Name: name, Email: email, Role: user.RoleChild, DateOfBirth: &dob}
	if err := f.ledger.CreateUser(f.ctx, by, u); err != nil {
		f.t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func (f *fixture) newParent(name, email string) (*user.User, famledger.Caller) {
	f.t.Helper()
	u := &user.User{Name: name, Email: email, Role: user.RoleParent}
	if err := f.ledger.CreateUser(f.ctx, f.parentC, u); err != nil {
		f.t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u, famledger.Caller{ID: u.ID, Role: user.RoleParent}
}

func (f *fixture) newAccount(owner id.UserID, name string, typ account.Type, rate string) *account.Account {
	f.t.Helper()
	a, err := f.ledger.CreateAccount(f.ctx, f.parentC, famledger.CreateAccountInput{
		OwnerID:      owner,
		Name:         name,
		Type:         typ,
		InterestRate: decimal.RequireFromString(rate),
	})
	if err != nil {
		f.t.Fatalf("CreateAccount(%s): %v", name, err)
	}
	return a
}

func (f *fixture) balance(accountID id.AccountID) types.Money {
	f.t.Helper()
	a, err := f.store.GetAccount(f.ctx, accountID)
	if err != nil {
		f.t.Fatalf("GetAccount: %v", err)
	}
	return a.Balance
}

func (f *fixture) wantBalance(accountID id.AccountID, cents int64) {
	f.t.Helper()
	if got := f.balance(accountID); got.Amount != cents {
		f.t.Errorf("balance = %s, want %s", got, types.Cents(cents))
	}
}

// assertConsistent checks that the stored balance equals the sum of the
// counted transactions.
func (f *fixture) assertConsistent(accountID id.AccountID) {
	f.t.Helper()
	r, err := f.ledger.RecalculateBalance(f.ctx, f.parentC, accountID)
	if err != nil {
		f.t.Fatalf("RecalculateBalance: %v", err)
	}
	if !r.Drift().IsZero() {
		f.t.Errorf("balance drifted: stored %s, derived %s", r.OldBalance, r.NewBalance)
	}
}

func boolPtr(b bool) *bool { return &b }

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }
