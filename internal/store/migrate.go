package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations
var migrationFS embed.FS

// RunMigrations applies the embedded migrations matching the DSN's database
// and returns the resulting schema version.
func RunMigrations(dsn string) (uint, error) {
	var (
		db     *sql.DB
		driver database.Driver
		dir    string
		name   string
		err    error
	)
	if path, ok := SQLitePath(dsn); ok {
		dir, name = "migrations/sqlite", "sqlite"
		if db, err = sql.Open("sqlite", sqliteDSN(path)); err != nil {
			return 0, fmt.Errorf("open: %w", err)
		}
		driver, err = msqlite.WithInstance(db, &msqlite.Config{})
	} else {
		dir, name = "migrations/postgres", "postgres"
		if db, err = sql.Open("postgres", dsn); err != nil {
			return 0, fmt.Errorf("open: %w", err)
		}
		driver, err = mpostgres.WithInstance(db, &mpostgres.Config{})
	}
	if err != nil {
		db.Close()
		return 0, fmt.Errorf("%s driver: %w", name, err)
	}

	source, err := iofs.New(migrationFS, dir)
	if err != nil {
		db.Close()
		return 0, fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		db.Close()
		return 0, fmt.Errorf("migrate.NewWithInstance: %w", err)
	}
	// m.Close closes the driver, which closes db.
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate.Up: %w", err)
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("migrate.Version: %w", err)
	}
	return version, nil
}
