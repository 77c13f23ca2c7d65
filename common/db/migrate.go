package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/fieldsense/audioingest/common/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Dialect selects the migration set.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Migrate applies every pending migration for the dialect.
func Migrate(ctx context.Context, dialect Dialect, sqlDB *sql.DB, log *logger.Logger) error {
	var gooseDialect goose.Dialect
	switch dialect {
	case DialectPostgres:
		gooseDialect = goose.DialectPostgres
	case DialectSQLite:
		gooseDialect = goose.DialectSQLite3
	default:
		return fmt.Errorf("unknown migration dialect: %s", dialect)
	}

	fsys, err := fs.Sub(migrations, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", dialect, err)
	}

	provider, err := goose.NewProvider(gooseDialect, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply %s migrations: %w", dialect, err)
	}

	for _, r := range results {
		log.Info("migration applied",
			"dialect", dialect,
			"version", r.Source.Version,
			"duration", r.Duration,
		)
	}
	return nil
}
