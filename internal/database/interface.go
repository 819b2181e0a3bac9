package database

import (
	"context"

	"github.com/koustreak/qgenie/internal/dialect"
)

// Conn is one live connection to a user's target database.
// Layers above this package talk only to this interface; they never import
// the per-driver packages directly. A Conn is not pooled: callers open it,
// use it for one operation and Close it.
type Conn interface {
	// Dialect reports which database product the connection talks to.
	Dialect() dialect.Type

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a statement expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec executes a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Begin starts a transaction on this connection.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction on a Conn. Exactly one of Commit or Rollback must be
// called; Rollback after Commit is a harmless no-op.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}
