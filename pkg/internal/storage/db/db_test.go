package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/db"
)

type note struct {
	ID   string `gorm:"primaryKey"`
	Note string
}

func TestNewSQLiteAppliesPragmas(t *testing.T) {
	cfg := configs.Default().DB
	cfg.Database = filepath.Join(t.TempDir(), "nested", "archive.db")

	client, err := db.New(context.Background(), cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var mode string
	require.NoError(t, client.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	var foreignKeys, busy int
	require.NoError(t, client.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error)
	assert.Equal(t, 1, foreignKeys)
	require.NoError(t, client.Raw("PRAGMA busy_timeout").Scan(&busy).Error)
	assert.Equal(t, cfg.BusyTimeoutMS, busy)

	sqlDB, err := client.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, client.Migrate(context.Background(), &note{}))
	require.NoError(t, client.Create(&note{ID: "a", Note: "x"}).Error)
	require.NoError(t, client.Ping(context.Background()))
}

func TestNewUnsupportedType(t *testing.T) {
	cfg := configs.Default().DB
	cfg.Type = "oracle"

	_, err := db.New(context.Background(), cfg, false)
	require.Error(t, err)
}

func TestRegisteredTypes(t *testing.T) {
	assert.Contains(t, db.GetRegisteredDBTypes(), configs.SQLite)
	assert.Contains(t, db.GetRegisteredDBTypes(), configs.Pg)
}
