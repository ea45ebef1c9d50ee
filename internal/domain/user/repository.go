package user

import "context"

type Repository interface {
	// Upsert inserts the user or refreshes its display name.
	Upsert(ctx context.Context, u *User) error
	// GetByID returns (nil, nil) for unknown users.
	GetByID(ctx context.Context, id int64) (*User, error)
}
