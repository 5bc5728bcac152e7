package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mumblechat/mumble/internal/store/migrations"
)

// MigrateResult describes the schema after a migration run.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// migrator builds a golang-migrate instance over the embedded schema. It is
// never closed: closing it would close db.DB.
func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration.
func (db *DB) Migrate() (*MigrateResult, error) {
	return db.run("up", func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback undoes the last n applied migrations.
func (db *DB) Rollback(n int) (*MigrateResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("rollback: steps must be positive, got %d", n)
	}
	return db.run("down", func(m *migrate.Migrate) error { return m.Steps(-n) })
}

func (db *DB) run(dir string, fn func(*migrate.Migrate) error) (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	changed := true
	if err := fn(m); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return nil, fmt.Errorf("migration %s: %w", dir, err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty = 0, false
	} else if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}
