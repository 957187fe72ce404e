package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/triagebot/internal/config"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Open builds the store backend selected by config and applies pending
// migrations.
func Open(cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return openSQLite(config.ExpandHome(cfg.Path))
	case "postgres":
		return openPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openSQLite(path string) (*Stores, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLStores(db, bindQuestion), nil
}

func openPostgres(dsn string) (*Stores, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrateUp(db, "postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLStores(db, bindDollar), nil
}

func migrateUp(db *sql.DB, driver string) error {
	m, err := buildMigrator(db, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func buildMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	switch driver {
	case "sqlite":
		d, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "sqlite", d)
		if err != nil {
			return nil, fmt.Errorf("init migrations: %w", err)
		}
		return m, nil
	case "postgres":
		d, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "postgres", d)
		if err != nil {
			return nil, fmt.Errorf("init migrations: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// NewMigrator opens the configured database and returns a migration
// handle for CLI migration management. The caller owns both and should
// close the migrator first.
func NewMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, *sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		path := config.ExpandHome(cfg.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	case "postgres":
		db, err = sql.Open("pgx", cfg.PostgresDSN)
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}

	m, err := buildMigrator(db, driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return m, db, nil
}
