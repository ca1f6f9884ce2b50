package famledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	dob := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	future := f.now.AddDate(1, 0, 0)

	tests := []struct {
		name     string
		caller   famledger.Caller
		user     user.User
		wantKind famledger.ErrorKind
	}{
		{"child caller", f.childC, user.User{Name: "X", Email: "x@example.com", Role: user.RoleParent}, famledger.KindForbidden},
		{"missing name", f.parentC, user.User{Email: "x@example.com", Role: user.RoleParent}, famledger.KindValidation},
		{"bad email", f.parentC, user.User{Name: "X", Email: "not-an-email", Role: user.RoleParent}, famledger.KindValidation},
		{"unknown role", f.parentC, user.User{Name: "X", Email: "x@example.com", Role: "admin"}, famledger.KindValidation},
		{"child without dob", f.parentC, user.User{Name: "X", Email: "x@example.com", Role: user.RoleChild}, famledger.KindValidation},
		{"child born tomorrow", f.parentC, user.User{Name: "X", Email: "x@example.com", Role: user.RoleChild, DateOfBirth: &future}, famledger.KindValidation},
		{"duplicate email", f.parentC, user.User{Name: "X", Email: "PAT@example.com", Role: user.RoleParent}, famledger.KindConflict},
		{"child with non-parent parent", f.parentC, user.User{Name: "X", Email: "x@example.com", Role: user.RoleChild, DateOfBirth: &dob, Parents: []id.UserID{f.child.ID}}, famledger.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			err := f.ledger.CreateUser(f.ctx, tt.caller, &u)
			if got := famledger.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tt.wantKind)
			}
		})
	}
}

func TestCreateChildLinksCaller(t *testing.T) {
	f := newFixture(t)
	if !f.child.HasParent(f.parent.ID) || !f.child.Parent.IsNil() {
		t.Fatalf("child links = %+v / %v", f.child.Parents, f.child.Parent)
	}
	if f.child.Email != "kim@example.com" {
		t.Errorf("email = %q", f.child.Email)
	}

	ok, err := f.ledger.CanAccess(f.ctx, f.parent.ID, f.child.ID)
	if err != nil || !ok {
		t.Errorf("CanAccess = %v, %v", ok, err)
	}
	children, err := f.ledger.AccessibleChildren(f.ctx, f.parent.ID)
	if err != nil || len(children) != 1 {
		t.Errorf("AccessibleChildren = %d, %v", len(children), err)
	}
}

// Scenario D: a child keeps at least one parent.
func TestRemoveParent(t *testing.T) {
	f := newFixture(t)
	p2, p2C := f.newParent("Robin", "robin@example.com")

	child, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, p2.ID)
	if err != nil {
		t.Fatalf("AddParent: %v", err)
	}
	if len(child.AllParents()) != 2 {
		t.Fatalf("parents = %v", child.AllParents())
	}

	child, err = f.ledger.RemoveParent(f.ctx, f.parentC, f.child.ID, f.parent.ID)
	if err != nil {
		t.Fatalf("RemoveParent(P1): %v", err)
	}
	if ps := child.AllParents(); len(ps) != 1 || !ps[0].Equal(p2.ID) {
		t.Fatalf("parents = %v, want [P2]", ps)
	}

	_, err = f.ledger.RemoveParent(f.ctx, p2C, f.child.ID, p2.ID)
	if !errors.Is(err, famledger.ErrLastParent) {
		t.Fatalf("RemoveParent(P2) error = %v, want ErrLastParent", err)
	}
	if famledger.KindOf(err) != famledger.KindConflict {
		t.Errorf("KindOf = %s, want conflict", famledger.KindOf(err))
	}

	if _, err := f.ledger.GetUser(f.ctx, f.parentC, f.child.ID); !famledger.IsForbidden(err) {
		t.Errorf("removed parent still sees child: %v", err)
	}
	stored, err := f.store.GetUser(f.ctx, f.child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ps := stored.AllParents(); len(ps) != 1 || !ps[0].Equal(p2.ID) {
		t.Errorf("stored parents = %v", ps)
	}
}

func TestConcurrentParentRemovals(t *testing.T) {
	f := newFixture(t)
	extra := make([]id.UserID, 0, 4)
	for _, name := range []string{"Robin", "Sasha", "Toby", "Uma"} {
		p, _ := f.newParent(name, name+"@example.com")
		if _, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, p.ID); err != nil {
			t.Fatalf("AddParent(%s): %v", name, err)
		}
		extra = append(extra, p.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(extra))
	for i, pid := range extra {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ledger.RemoveParent(f.ctx, f.parentC, f.child.ID, pid)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("RemoveParent(%d): %v", i, err)
		}
	}
	stored, err := f.store.GetUser(f.ctx, f.child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ps := stored.AllParents(); len(ps) != 1 || !ps[0].Equal(f.parent.ID) {
		t.Errorf("stored parents = %v, want only %s", ps, f.parent.ID)
	}
}

func TestConcurrentRemovalKeepsLastParent(t *testing.T) {
	f := newFixture(t)
	p2, p2C := f.newParent("Robin", "robin@example.com")
	if _, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, p2.ID); err != nil {
		t.Fatalf("AddParent: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []famledger.Caller{f.parentC, p2C} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ledger.RemoveParent(f.ctx, c, f.child.ID, c.ID)
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			if !errors.Is(err, famledger.ErrLastParent) && !famledger.IsForbidden(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}
	if failed != 1 {
		t.Errorf("%d removals failed, want exactly 1", failed)
	}
	stored, err := f.store.GetUser(f.ctx, f.child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.AllParents()) != 1 {
		t.Errorf("stored parents = %v, want one", stored.AllParents())
	}
}

func TestRemoveParentNotLinked(t *testing.T) {
	f := newFixture(t)
	p2, _ := f.newParent("Robin", "robin@example.com")

	if _, err := f.ledger.RemoveParent(f.ctx, f.parentC, f.child.ID, p2.ID); !famledger.IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
	if _, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, f.child.ID); !famledger.IsValidation(err) {
		t.Errorf("AddParent(child) error = %v, want validation", err)
	}
}

func TestLegacyParentLink(t *testing.T) {
	f := newFixture(t)
	dob := time.Date(2016, 2, 2, 0, 0, 0, 0, time.UTC)
	legacy := &user.User{
		Entity:      types.Entity{CreatedAt: f.now, UpdatedAt: f.now},
		ID:          id.NewUserID(),
		Name:        "Ash",
		Email:       "ash@example.com",
		Role:        user.RoleChild,
		DateOfBirth: &dob,
		Parent:      f.parent.ID,
	}
	if err := f.store.CreateUser(f.ctx, legacy); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ledger.GetUser(f.ctx, f.parentC, legacy.ID); err != nil {
		t.Fatalf("legacy child not visible: %v", err)
	}

	n, err := f.ledger.MigrateLegacyParents(f.ctx)
	if err != nil {
		t.Fatalf("MigrateLegacyParents: %v", err)
	}
	if n != 1 {
		t.Errorf("migrated = %d, want 1", n)
	}
	stored, err := f.store.GetUser(f.ctx, legacy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Parent.IsNil() || len(stored.Parents) != 1 || !stored.Parents[0].Equal(f.parent.ID) {
		t.Errorf("after migration: parent=%v parents=%v", stored.Parent, stored.Parents)
	}

	if n, _ := f.ledger.MigrateLegacyParents(f.ctx); n != 0 {
		t.Errorf("second migration changed %d users", n)
	}
}

func TestScopeIsolation(t *testing.T) {
	f := newFixture(t)
	_, strangerC := f.newParent("Lee", "lee@example.com")

	if _, err := f.ledger.GetAccount(f.ctx, strangerC, f.spending.ID); !famledger.IsForbidden(err) {
		t.Errorf("GetAccount error = %v, want forbidden", err)
	}
	accounts, err := f.ledger.ListAccounts(f.ctx, strangerC, account.ListOpts{OwnerIDs: []id.UserID{f.child.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 0 {
		t.Errorf("stranger sees %d accounts", len(accounts))
	}

	users, err := f.ledger.ListUsers(f.ctx, f.childC)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || !users[0].ID.Equal(f.child.ID) {
		t.Errorf("child sees %d users", len(users))
	}

	users, err = f.ledger.ListUsers(f.ctx, f.parentC)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("parent sees %d users, want 2", len(users))
	}
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	dob := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	name := "Kimberly"

	if _, err := f.ledger.UpdateUser(f.ctx, f.childC, f.child.ID, famledger.UserPatch{DateOfBirth: &dob}); !famledger.IsForbidden(err) {
		t.Errorf("child dob change error = %v, want forbidden", err)
	}
	u, err := f.ledger.UpdateUser(f.ctx, f.childC, f.child.ID, famledger.UserPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.Name != name {
		t.Errorf("name = %q", u.Name)
	}

	taken := "pat@example.com"
	if _, err := f.ledger.UpdateUser(f.ctx, f.parentC, f.child.ID, famledger.UserPatch{Email: &taken}); !errors.Is(err, famledger.ErrAlreadyExists) {
		t.Errorf("email clash error = %v, want ErrAlreadyExists", err)
	}
	if _, err := f.ledger.UpdateUser(f.ctx, f.parentC, f.child.ID, famledger.UserPatch{DateOfBirth: &dob}); err != nil {
		t.Errorf("parent dob change: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)

	if err := f.ledger.DeleteUser(f.ctx, f.parentC, f.child.ID); !errors.Is(err, famledger.ErrUserOwnsAccount) {
		t.Fatalf("delete account owner error = %v, want ErrUserOwnsAccount", err)
	}
	if err := f.ledger.DeleteUser(f.ctx, f.parentC, f.parent.ID); !errors.Is(err, famledger.ErrLastParent) {
		t.Fatalf("delete last parent error = %v, want ErrLastParent", err)
	}

	p2, p2C := f.newParent("Robin", "robin@example.com")
	if _, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, p2.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.DeleteUser(f.ctx, p2C, f.parent.ID); !famledger.IsForbidden(err) {
		t.Fatalf("delete co-parent error = %v, want forbidden", err)
	}
	if err := f.ledger.DeleteUser(f.ctx, f.parentC, f.parent.ID); err != nil {
		t.Fatalf("DeleteUser(P1): %v", err)
	}

	stored, err := f.store.GetUser(f.ctx, f.child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.HasParent(f.parent.ID) || !stored.HasParent(p2.ID) {
		t.Errorf("parents after delete = %v", stored.AllParents())
	}
}

func TestDeleteAccountDeactivatesRecurring(t *testing.T) {
	f := newFixture(t)
	d := f.scheduled("Chores", recurring.TypeOther, f.spending.ID, 100, f.now)

	if err := f.ledger.DeleteAccount(f.ctx, f.parentC, f.spending.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	stored, err := f.store.GetRecurring(f.ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Active {
		t.Error("definition still active")
	}
	if _, err := f.ledger.GetAccount(f.ctx, f.parentC, f.spending.ID); !famledger.IsNotFound(err) {
		t.Errorf("GetAccount error = %v, want not found", err)
	}
}

// parentWatcher records ParentRemoved events.
type parentWatcher struct {
	mu      sync.Mutex
	removed [][2]id.UserID
}

func (w *parentWatcher) Name() string { return "parent-watcher" }

func (w *parentWatcher) OnParentRemoved(_ context.Context, childID, parentID id.UserID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, [2]id.UserID{childID, parentID})
	return nil
}

func TestRemoveParentEmits(t *testing.T) {
	w := &parentWatcher{}
	f := newFixture(t, famledger.WithPlugin(w))
	p2, _ := f.newParent("Robin", "robin@example.com")
	if _, err := f.ledger.AddParent(f.ctx, f.parentC, f.child.ID, p2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.RemoveParent(f.ctx, f.parentC, f.child.ID, p2.ID); err != nil {
		t.Fatal(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.removed) != 1 || !w.removed[0][0].Equal(f.child.ID) || !w.removed[0][1].Equal(p2.ID) {
		t.Errorf("removed = %v", w.removed)
	}
}
