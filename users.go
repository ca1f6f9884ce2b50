package famledger

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/types"
	"github.com/xraph/famledger/user"
)

// UserPatch is a partial user update. Nil fields are left unchanged.
type UserPatch struct {
	Name        *string
	Email       *string
	DateOfBirth *time.Time
}

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

// RegisterParent creates a parent without an acting caller. It is the
// bootstrap path for the first parent of a family.
func (l *Ledger) RegisterParent(ctx context.Context, u *user.User) error {
	u.Role = user.RoleParent
	u.Parent = id.Nil
	u.Parents = nil
	return l.createUser(ctx, u)
}

// CreateUser creates a user on behalf of a parent. A child needs a date of
// birth and at least one parent; the acting parent is always linked.
func (l *Ledger) CreateUser(ctx context.Context, caller Caller, u *user.User) error {
	if err := requireParent(caller); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return invalid("role", "must be parent or child")
	}

	if u.IsChild() {
		u.FoldLegacyParent()
		u.AddParent(caller.ID)
		for _, p := range u.Parents {
			pu, err := l.store.GetUser(ctx, p)
			if err != nil {
				return internal("get parent", err)
			}
			if !pu.IsParent() {
				return invalid("parents", "%s is not a parent", p)
			}
		}
	} else {
		u.Parent = id.Nil
		u.Parents = nil
	}

	return l.createUser(ctx, u)
}

func (l *Ledger) createUser(ctx context.Context, u *user.User) error {
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return invalid("name", "is required")
	}
	email, err := normalizeEmail(u.Email)
	if err != nil {
		return err
	}
	u.Email = email

	now := l.now()
	if u.IsChild() {
		if u.DateOfBirth == nil || u.DateOfBirth.IsZero() {
			return invalid("date_of_birth", "is required for children")
		}
		if u.DateOfBirth.After(now) {
			return invalid("date_of_birth", "must not be in the future")
		}
		if len(u.AllParents()) == 0 {
			return invalid("parents", "a child needs at least one parent")
		}
	}

	if existing, err := l.store.GetUserByEmail(ctx, u.Email); err == nil && existing != nil {
		return fmt.Errorf("%w: email %s", ErrAlreadyExists, u.Email)
	} else if err != nil && !IsNotFound(err) {
		return internal("get user by email", err)
	}

	if u.ID.IsNil() {
		u.ID = id.NewUserID()
	}
	u.Entity = types.EntityAt(now)

	if err := l.store.CreateUser(ctx, u); err != nil {
		return internal("create user", err)
	}

	l.logger.Debug("user created", "user_id", u.ID.String(), "role", string(u.Role))
	return nil
}

// GetUser returns a user visible to caller.
func (l *Ledger) GetUser(ctx context.Context, caller Caller, userID id.UserID) (*user.User, error) {
	if _, err := l.authorizeUser(ctx, caller, userID); err != nil {
		return nil, err
	}
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, internal("get user", err)
	}
	return u, nil
}

// ListUsers lists the users in caller's scope.
func (l *Ledger) ListUsers(ctx context.Context, caller Caller) ([]*user.User, error) {
	s, err := l.Scope(ctx, caller)
	if err != nil {
		return nil, err
	}
	users, err := l.store.ListUsers(ctx, user.ListOpts{IDs: s.UserIDs()})
	if err != nil {
		return nil, internal("list users", err)
	}
	return users, nil
}

// UpdateUser patches a user in caller's scope. A child may edit its own
// name and email but never its date of birth.
func (l *Ledger) UpdateUser(ctx context.Context, caller Caller, userID id.UserID, patch UserPatch) (*user.User, error) {
	if _, err := l.authorizeUser(ctx, caller, userID); err != nil {
		return nil, err
	}
	if !caller.IsParent() && patch.DateOfBirth != nil {
		return nil, fmt.Errorf("%w: a child cannot change its date of birth", ErrForbidden)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, internal("get user", err)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name", "is required")
		}
		u.Name = name
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(email, u.Email) {
			if other, err := l.store.GetUserByEmail(ctx, email); err == nil && !other.ID.Equal(u.ID) {
				return nil, fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
			}
		}
		u.Email = email
	}
	if patch.DateOfBirth != nil {
		if patch.DateOfBirth.After(l.now()) {
			return nil, invalid("date_of_birth", "must not be in the future")
		}
		dob := *patch.DateOfBirth
		u.DateOfBirth = &dob
	}

	u.TouchAt(l.now())
	if err := l.store.UpdateUser(ctx, u); err != nil {
		return nil, internal("update user", err)
	}
	return u, nil
}

// DeleteUser removes a user. Removal is refused while the user owns
// accounts or is the only parent of a child, so nothing is orphaned.
// Recurring definitions for the user are deactivated.
func (l *Ledger) DeleteUser(ctx context.Context, caller Caller, userID id.UserID) error {
	if err := requireParent(caller); err != nil {
		return err
	}
	if _, err := l.authorizeUser(ctx, caller, userID); err != nil {
		return err
	}

	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return internal("get user", err)
	}

	owned, err := l.store.ListAccounts(ctx, account.ListOpts{OwnerIDs: []id.UserID{userID}, Limit: 1})
	if err != nil {
		return internal("list accounts", err)
	}
	if len(owned) > 0 {
		return fmt.Errorf("%w: %s", ErrUserOwnsAccount, userID)
	}

	if u.IsParent() {
		children, err := l.resolver.AccessibleChildren(ctx, userID)
		if err != nil {
			return internal("list children", err)
		}
		for _, c := range children {
			if len(c.AllParents()) <= 1 {
				return fmt.Errorf("%w: %s is the only parent of %s", ErrLastParent, userID, c.ID)
			}
		}
		for _, c := range children {
			if _, err := l.unlinkParent(ctx, c.ID, userID); err != nil {
				return err
			}
		}
	}

	if err := l.deactivateRecurring(ctx, recurring.ListOpts{UserIDs: []id.UserID{userID}}); err != nil {
		return err
	}

	if err := l.store.DeleteUser(ctx, userID); err != nil {
		return internal("delete user", err)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", invalid("email", "%q is not a valid address", raw)
	}
	return strings.ToLower(addr.Address), nil
}

// ──────────────────────────────────────────────────
// Family links
// ──────────────────────────────────────────────────

// AccessibleChildren returns the children linked to parentID.
func (l *Ledger) AccessibleChildren(ctx context.Context, parentID id.UserID) ([]*user.User, error) {
	children, err := l.resolver.AccessibleChildren(ctx, parentID)
	if err != nil {
		return nil, internal("accessible children", err)
	}
	return children, nil
}

// CanAccess reports whether parentID may act on childID.
func (l *Ledger) CanAccess(ctx context.Context, parentID, childID id.UserID) (bool, error) {
	ok, err := l.resolver.CanAccess(ctx, parentID, childID)
	if err != nil {
		return false, internal("can access", err)
	}
	return ok, nil
}

// AddParent links parentID to a child in caller's scope.
func (l *Ledger) AddParent(ctx context.Context, caller Caller, childID, parentID id.UserID) (*user.User, error) {
	unlock := l.locks.lock(childID)
	defer unlock()

	child, err := l.loadChildFor(ctx, caller, childID)
	if err != nil {
		return nil, err
	}

	parent, err := l.store.GetUser(ctx, parentID)
	if err != nil {
		return nil, internal("get parent", err)
	}
	if !parent.IsParent() {
		return nil, invalid("parent_id", "%s is not a parent", parentID)
	}

	folded := child.FoldLegacyParent()
	added := child.AddParent(parentID)
	if !folded && !added {
		return child, nil
	}

	child.TouchAt(l.now())
	if err := l.store.UpdateUser(ctx, child); err != nil {
		return nil, internal("update user", err)
	}
	return child, nil
}

// RemoveParent unlinks parentID from a child in caller's scope. A child's
// last parent cannot be removed.
func (l *Ledger) RemoveParent(ctx context.Context, caller Caller, childID, parentID id.UserID) (*user.User, error) {
	if _, err := l.loadChildFor(ctx, caller, childID); err != nil {
		return nil, err
	}

	child, err := l.unlinkParent(ctx, childID, parentID)
	if err != nil {
		return nil, err
	}

	l.plugins.EmitParentRemoved(ctx, childID, parentID)
	return child, nil
}

// unlinkParent removes parentID from the child's parents under the child's
// lock, re-reading the child so concurrent link changes are not lost.
func (l *Ledger) unlinkParent(ctx context.Context, childID, parentID id.UserID) (*user.User, error) {
	unlock := l.locks.lock(childID)
	defer unlock()

	child, err := l.store.GetUser(ctx, childID)
	if err != nil {
		return nil, internal("get user", err)
	}
	if !child.HasParent(parentID) {
		return nil, invalid("parent_id", "%s is not a parent of %s", parentID, childID)
	}
	if len(child.AllParents()) <= 1 {
		return nil, fmt.Errorf("%w: %s", ErrLastParent, childID)
	}

	child.RemoveParent(parentID)
	child.TouchAt(l.now())
	if err := l.store.UpdateUser(ctx, child); err != nil {
		return nil, internal("update user", err)
	}
	return child, nil
}

// MigrateLegacyParents folds every legacy single-parent link into the
// parents set and returns how many children changed.
func (l *Ledger) MigrateLegacyParents(ctx context.Context) (int, error) {
	children, err := l.store.ListUsers(ctx, user.ListOpts{Role: user.RoleChild})
	if err != nil {
		return 0, internal("list children", err)
	}

	var errs MultiError
	migrated := 0
	for _, c := range children {
		if c.Parent.IsNil() {
			continue
		}
		folded, err := l.foldLegacyParent(ctx, c.ID)
		if err != nil {
			errs.Add(err)
			continue
		}
		if folded {
			migrated++
		}
	}

	l.logger.Info("legacy parent links migrated", "migrated", migrated, "children", len(children))
	return migrated, errs.ErrOrNil()
}

func (l *Ledger) foldLegacyParent(ctx context.Context, childID id.UserID) (bool, error) {
	unlock := l.locks.lock(childID)
	defer unlock()

	c, err := l.store.GetUser(ctx, childID)
	if err != nil {
		return false, internal("migrate "+childID.String(), err)
	}
	if !c.FoldLegacyParent() {
		return false, nil
	}
	c.TouchAt(l.now())
	if err := l.store.UpdateUser(ctx, c); err != nil {
		return false, internal("migrate "+childID.String(), err)
	}
	return true, nil
}

func (l *Ledger) loadChildFor(ctx context.Context, caller Caller, childID id.UserID) (*user.User, error) {
	if err := requireParent(caller); err != nil {
		return nil, err
	}
	child, err := l.store.GetUser(ctx, childID)
	if err != nil {
		return nil, internal("get user", err)
	}
	if !child.IsChild() {
		return nil, invalid("child_id", "%s is not a child", childID)
	}
	if !child.HasParent(caller.ID) {
		return nil, forbidden("user", childID)
	}
	return child, nil
}
