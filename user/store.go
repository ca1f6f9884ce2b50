package user

import (
	"context"

	"github.com/xraph/famledger/id"
)

type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID id.UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, opts ListOpts) ([]*User, error)
	// ListChildrenOf returns children whose legacy parent link or parents
	// set contains parentID.
	ListChildrenOf(ctx context.Context, parentID id.UserID) ([]*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, userID id.UserID) error
}

type ListOpts struct {
	Role   Role
	IDs    []id.UserID
	Limit  int
	Offset int
}
