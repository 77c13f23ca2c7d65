package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fieldsense/audioingest/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := OpenSQLite(ctx, ":memory:", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var name string
	err = sqlDB.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'upload_record'`,
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "upload_record", name)
}

func TestMigrate_IsRepeatable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "uploads.db")

	sqlDB, err := OpenSQLite(ctx, path, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(ctx, DialectSQLite, sqlDB, logger.Discard()))
}

func TestMigrate_UnknownDialect(t *testing.T) {
	err := Migrate(context.Background(), Dialect("oracle"), nil, logger.Discard())
	assert.ErrorContains(t, err, "unknown migration dialect")
}
