package persist

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// schemaFS is the flat view of the embedded migration files goose expects.
func schemaFS() (fs.FS, error) {
	return fs.Sub(embedded, "migrations")
}

// RunMigrations applies pending scene_snapshots migrations over db's pool and
// returns the resulting schema version.
func RunMigrations(ctx context.Context, db *DB) (int64, error) {
	files, err := schemaFS()
	if err != nil {
		return 0, fmt.Errorf("migration files: %w", err)
	}
	conn := stdlib.OpenDBFromPool(db.Pool)
	defer conn.Close()

	provider, err := goose.NewProvider(database.DialectPostgres, conn, files)
	if err != nil {
		return 0, fmt.Errorf("migration provider: %w", err)
	}
	applied, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	db.log.Info("schema up to date", zap.Int64("version", version), zap.Int("applied", len(applied)))
	return version, nil
}
