package store

import (
	"errors"
	"fmt"

	"github.com/Zain0205/travelin-chat/internal/store/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies all pending migrations of the embedded schema.
func (db *DB) Migrate() (*MigrateResult, error) {
	return db.run("up", func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts every migration, dropping the credentials table.
func (db *DB) Rollback() (*MigrateResult, error) {
	return db.run("down", func(m *migrate.Migrate) error { return m.Down() })
}

// run executes step against the embedded migrations. The migrate instance
// is not closed because closing it would close db.
func (db *DB) run(name string, step func(*migrate.Migrate) error) (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	changed := true
	if err := step(m); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}
