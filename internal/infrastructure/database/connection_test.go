package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, logger.NewNop())
	require.NoError(t, err)
	defer func() { _ = Close(db) }()

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "postgres"}, logger.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN(""))
	assert.Equal(t, "data/keygate.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("data/keygate.db"))
	assert.Equal(t, "file.db?cache=shared", sqliteDSN("file.db?cache=shared"))
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
