package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shardlabs/shardbase/internal/store"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*DB)(nil)

// queryable is the intersection of *sql.DB and *sql.Tx used by the query
// methods, so the same code serves both transactional and direct calls.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB implements store.Store on a single SQLite file.
type DB struct {
	db *sql.DB
	q  queryable // d.db, or the active tx inside Tx/withTx
}

// New opens (or creates) the database at path, applies pending schema
// migrations, and returns a ready store. WAL mode with a single writer
// connection keeps concurrent readers from blocking on writes.
func New(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := prepare(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, q: db}, nil
}

func prepare(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	// Foreign keys are off by default in SQLite; the schema relies on
	// ON DELETE CASCADE.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Tx runs fn against a store whose operations all share one transaction.
// fn returning an error rolls everything back.
func (d *DB) Tx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&DB{db: d.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// withTx is the internal variant of Tx for multi-statement store methods.
// When d is already transactional it reuses the open tx; starting a second
// one would deadlock on the single writer connection.
func (d *DB) withTx(ctx context.Context, fn func(q queryable) error) error {
	if tx, ok := d.q.(*sql.Tx); ok {
		return fn(tx)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}
