package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"genbot/migrations"
)

// Migrate applies every pending migration in src to the database at
// databaseURL. An up-to-date schema is not an error. It returns the schema
// version after the run.
func Migrate(databaseURL string, src fs.FS) (uint, error) {
	if databaseURL == "" {
		return 0, errors.New("database url is required")
	}
	if src == nil {
		src = migrations.FS
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	source, err := iofs.New(src, ".")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "genbot_schema_migrations"})
	if err != nil {
		return 0, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
