package user

import (
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/types"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

type User struct {
	types.Entity
	ID          id.UserID  `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	// Parent is the legacy single-parent link. New writes never set it;
	// see AllParents.
	Parent  id.UserID   `json:"parent,omitempty"`
	Parents []id.UserID `json:"parents,omitempty"`
}

func (u *User) IsParent() bool { return u.Role == RoleParent }

func (u *User) IsChild() bool { return u.Role == RoleChild }

// AllParents returns the union of the legacy parent link and the parents
// set, without duplicates, legacy link first.
func (u *User) AllParents() []id.UserID {
	out := make([]id.UserID, 0, len(u.Parents)+1)
	seen := make(map[string]struct{}, len(u.Parents)+1)
	add := func(p id.UserID) {
		if p.IsNil() {
			return
		}
		if _, ok := seen[p.String()]; ok {
			return
		}
		seen[p.String()] = struct{}{}
		out = append(out, p)
	}
	add(u.Parent)
	for _, p := range u.Parents {
		add(p)
	}
	return out
}

// HasParent reports whether parentID is one of the user's parents.
func (u *User) HasParent(parentID id.UserID) bool {
	for _, p := range u.AllParents() {
		if p.Equal(parentID) {
			return true
		}
	}
	return false
}

// FoldLegacyParent moves the legacy link into the parents set. Every write
// to parent links goes through it so the legacy field drains over time.
// It reports whether anything changed.
func (u *User) FoldLegacyParent() bool {
	if u.Parent.IsNil() {
		return false
	}
	u.Parents = u.AllParents()
	u.Parent = id.Nil
	return true
}

// AddParent adds parentID to the parents set. It reports false when the
// parent was already present.
func (u *User) AddParent(parentID id.UserID) bool {
	u.FoldLegacyParent()
	if u.HasParent(parentID) {
		return false
	}
	u.Parents = append(u.Parents, parentID)
	return true
}

// RemoveParent removes parentID from the user's parents. It reports false
// when parentID was not a parent.
func (u *User) RemoveParent(parentID id.UserID) bool {
	u.FoldLegacyParent()
	kept := make([]id.UserID, 0, len(u.Parents))
	removed := false
	for _, p := range u.Parents {
		if p.Equal(parentID) {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	u.Parents = kept
	return removed
}
