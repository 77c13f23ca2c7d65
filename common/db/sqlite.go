package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldsense/audioingest/common/logger"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the SQLite record database at path and
// applies pending migrations. ":memory:" gives a private in-process database.
func OpenSQLite(ctx context.Context, path string, log *logger.Logger) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; also keeps one :memory: database alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	if err := Migrate(ctx, DialectSQLite, sqlDB, log); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info("sqlite database opened", "path", path)
	return sqlDB, nil
}
