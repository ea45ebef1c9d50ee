package user

import (
	"fmt"
	"strings"
	"time"
)

// User is a chat actor. Users are created on first interaction and never deleted.
type User struct {
	id          int64
	displayName string
	createdAt   time.Time
	updatedAt   time.Time
}

func NewUser(id int64, displayName string, now time.Time) (*User, error) {
	if id == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	return &User{
		id:          id,
		displayName: normalizeName(displayName, id),
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

func ReconstructUser(id int64, displayName string, createdAt, updatedAt time.Time) *User {
	return &User{id: id, displayName: displayName, createdAt: createdAt, updatedAt: updatedAt}
}

func (u *User) ID() int64            { return u.id }
func (u *User) DisplayName() string  { return u.displayName }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

// Rename updates the display name and reports whether it changed.
func (u *User) Rename(displayName string, now time.Time) bool {
	name := normalizeName(displayName, u.id)
	if name == u.displayName {
		return false
	}
	u.displayName = name
	u.updatedAt = now
	return true
}

func normalizeName(name string, id int64) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("user%d", id)
	}
	return name
}
