// Package storage is the relational Ledger Store: persisted expenses, funds,
// contributions, recurring expenses and savings goals.
//
// Every write that touches a fund balance goes through InTx so the dependent
// row and the balance change commit together.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gastos/internal/log"
)

// Options selects and locates the database.
type Options struct {
	Driver Driver
	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string
}

type Store struct {
	db *sql.DB
	d  dialect
}

// Tx is a write transaction handed to InTx callbacks.
type Tx struct {
	tx *sql.Tx
	d  dialect
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("empty %s DSN", d.driver)
	}

	if d.driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(d.driverName, d.dsn(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d.driver, opts.DSN); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Ledger store ready",
		log.FieldComponent, log.ComponentStorage,
		log.FieldOperation, log.OpStartup,
		"driver", d.driver)

	return &Store{db: db, d: d}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver reports which engine backs the store.
func (s *Store) Driver() Driver {
	return s.d.driver
}

// InTx runs fn inside a single write transaction. The transaction commits
// only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.runTx(ctx, nil, fn)
}

// InReadTx runs fn against one consistent snapshot of the ledger. Every read
// made through tx sees the same committed state.
func (s *Store) InReadTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.runTx(ctx, s.d.readTx, fn)
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, d: s.d}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(query), args...)
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func insertReturningID(ctx context.Context, q querier, d dialect, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// expectRow turns a zero-row UPDATE into ErrNotFound.
func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
