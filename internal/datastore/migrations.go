package datastore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/your-org/healthcareai-go/internal/config"
)

//go:embed migrations
var migrationFS embed.FS

// MigrationDir is the embedded directory holding the migrations of dialect.
func MigrationDir(dialect string) string { return "migrations/" + dialect }

// Migrate applies every pending up migration for dialect to db. The database
// handle stays open.
func Migrate(db *sql.DB, dialect string, logger *zap.Logger) error {
	var (
		drv  database.Driver
		name string
		err  error
	)
	switch dialect {
	case config.DriverSQLite:
		name = "sqlite3"
		drv, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case config.DriverPostgres:
		name = "pgx5"
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case config.DriverMSSQL:
		name = "sqlserver"
		drv, err = sqlserver.WithInstance(db, &sqlserver.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", dialect, err)
	}

	src, err := iofs.New(migrationFS, MigrationDir(dialect))
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("Database schema is up to date", zap.String("dialect", dialect))
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("Applied database migrations",
		zap.String("dialect", dialect),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
