package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	u, err := NewUser(42, "  Alice ", now)
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName())

	anon, err := NewUser(7, "", now)
	require.NoError(t, err)
	assert.Equal(t, "user7", anon.DisplayName())

	_, err = NewUser(0, "x", now)
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u, _ := NewUser(42, "Alice", now)

	assert.False(t, u.Rename("Alice", now.Add(time.Hour)))
	assert.Equal(t, now, u.UpdatedAt())

	assert.True(t, u.Rename("Bob", now.Add(time.Hour)))
	assert.Equal(t, "Bob", u.DisplayName())
	assert.Equal(t, now.Add(time.Hour), u.UpdatedAt())
}
