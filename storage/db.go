package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
)

// DB wraps the PostgreSQL connection and implements Store.
type DB struct {
	*sqlx.DB
	queries
	log *zap.Logger
}

// NewDB connects to PostgreSQL and applies pending migrations.
func NewDB(dataSourceName, migrationsDir string, log *zap.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("PostgreSQL connection established")

	if err := runMigrations(db.DB, migrationsDir, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{DB: db, queries: queries{ext: db}, log: log}, nil
}

// runMigrations applies SQL migrations with sql-migrate.
func runMigrations(db *sql.DB, dir string, log *zap.Logger) error {
	migrations := &migrate.FileMigrationSource{Dir: dir}

	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if n > 0 {
		log.Info("applied database migrations", zap.Int("count", n))
	} else {
		log.Info("no new migrations to apply")
	}
	return nil
}

// Transact runs fn inside one database transaction. Ledger calls made inside
// fn are NOT covered by the rollback: a confirmed mint or transfer cannot be
// undone by aborting the local transaction. Known, documented risk.
func (d *DB) Transact(ctx context.Context, fn func(tx Store) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&txStore{queries: queries{ext: tx}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.log.Error("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the Store view handed to Transact closures. Nested Transact
// calls reuse the already-open transaction.
type txStore struct {
	queries
	tx *sqlx.Tx
}

func (t *txStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}
