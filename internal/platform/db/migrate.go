package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies every pending up migration found in source. It reports
// whether anything changed.
func Migrate(dsn string, source fs.FS) (bool, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return false, fmt.Errorf("platform/db: open migration conn: %w", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		return false, fmt.Errorf("platform/db: ping migration conn: %w", err)
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return false, fmt.Errorf("platform/db: migration driver: %w", err)
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		return false, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return false, fmt.Errorf("platform/db: migrate instance: %w", err)
	}

	upErr := m.Up()
	sourceErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return false, fmt.Errorf("platform/db: migrate up: %w", upErr)
	}
	if sourceErr != nil {
		return false, fmt.Errorf("platform/db: migration source close: %w", sourceErr)
	}
	if dbErr != nil {
		return false, fmt.Errorf("platform/db: migration db close: %w", dbErr)
	}
	return upErr == nil, nil
}
