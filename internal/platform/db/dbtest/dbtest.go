// Package dbtest opens a migrated sqlite database for ledger tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/platform/db"
	gormzap "github.com/fatflowers/paydesk/pkg/gormlog"
)

// Open returns a fresh database in t's temp dir. A single connection keeps
// sqlite from reporting "database is locked" under concurrent tests.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "paydesk.db") + "?_busy_timeout=5000&_foreign_keys=off"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormzap.New(zap.NewNop().Sugar(), false),
		NowFunc: db.Now,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(zap.NewNop().Sugar(), gdb))
	return gdb
}
