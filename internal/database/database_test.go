package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"data/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		SQLiteDSN("data/x.db", true))
	assert.Equal(t,
		"file:t?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		SQLiteDSN("file:t?mode=memory", false))
}

func TestMigrateUpIsRepeatable(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.SQLitePath = filepath.Join(t.TempDir(), "nested", "bridge.db")
	ctx := context.Background()

	db, err := MigrateUp(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, Dialect(db))
	assert.True(t, db.Migrator().HasColumn("messages", "delivered_at"))
	assert.True(t, db.Migrator().HasColumn("tickets", "owner_id"))

	lines, err := Status(ctx, db)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Contains(t, l, "applied")
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err = MigrateUp(ctx, cfg)
	require.NoError(t, err)
	sqlDB, err = db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "mysql"
	_, err := Open(cfg)
	assert.Error(t, err)
}
