// Package access resolves what a caller may see or change.
//
// A child sees only itself. A parent sees itself and every child that lists
// it as a parent, through either the legacy single-parent link or the
// parents set.
package access

import (
	"context"
	"fmt"

	"github.com/xraph/famledger/account"
	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/user"
)

// Caller is the identity supplied by the host's auth layer. It is trusted.
type Caller struct {
	ID   id.UserID
	Role user.Role
}

// IsParent reports whether the caller holds the privileged role.
func (c Caller) IsParent() bool { return c.Role == user.RoleParent }

// Users is the part of the user store the resolver reads.
type Users interface {
	GetUser(ctx context.Context, userID id.UserID) (*user.User, error)
	ListChildrenOf(ctx context.Context, parentID id.UserID) ([]*user.User, error)
}

// Resolver computes caller scopes.
type Resolver struct {
	users Users
}

// NewResolver returns a Resolver backed by users.
func NewResolver(users Users) *Resolver {
	return &Resolver{users: users}
}

// AccessibleChildren returns the children that list parentID as a parent.
func (r *Resolver) AccessibleChildren(ctx context.Context, parentID id.UserID) ([]*user.User, error) {
	children, err := r.users.ListChildrenOf(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("access: list children of %s: %w", parentID, err)
	}

	// Stores filter by link already; re-check through AllParents so a store
	// that only indexes one of the two fields cannot widen access.
	out := children[:0:0]
	for _, c := range children {
		if c.IsChild() && c.HasParent(parentID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CanAccess reports whether parentID may act on childID.
func (r *Resolver) CanAccess(ctx context.Context, parentID, childID id.UserID) (bool, error) {
	child, err := r.users.GetUser(ctx, childID)
	if err != nil {
		return false, err
	}
	return child.IsChild() && child.HasParent(parentID), nil
}

// Scope resolves the set of users visible to caller.
func (r *Resolver) Scope(ctx context.Context, caller Caller) (*Scope, error) {
	s := &Scope{caller: caller, users: map[string]struct{}{caller.ID.String(): {}}}
	s.ids = append(s.ids, caller.ID)

	if !caller.IsParent() {
		return s, nil
	}

	children, err := r.AccessibleChildren(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if _, ok := s.users[c.ID.String()]; ok {
			continue
		}
		s.users[c.ID.String()] = struct{}{}
		s.ids = append(s.ids, c.ID)
	}
	return s, nil
}

// Scope is a resolved visibility set for one caller.
type Scope struct {
	caller Caller
	users  map[string]struct{}
	ids    []id.UserID
}

// Caller returns the identity the scope was resolved for.
func (s *Scope) Caller() Caller { return s.caller }

// UserIDs lists the visible users, caller first.
func (s *Scope) UserIDs() []id.UserID {
	out := make([]id.UserID, len(s.ids))
	copy(out, s.ids)
	return out
}

// AllowsUser reports whether userID is visible.
func (s *Scope) AllowsUser(userID id.UserID) bool {
	_, ok := s.users[userID.String()]
	return ok
}

// AllowsAccount reports whether the account's owner is visible.
func (s *Scope) AllowsAccount(a *account.Account) bool {
	return a != nil && s.AllowsUser(a.OwnerID)
}

// AllowsTransaction reports whether t, held by account a, is visible.
func (s *Scope) AllowsTransaction(t *transaction.Transaction, a *account.Account) bool {
	return t != nil && a != nil && t.AccountID.Equal(a.ID) && s.AllowsAccount(a)
}
