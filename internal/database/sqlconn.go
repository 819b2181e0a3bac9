package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/qgenie/internal/dialect"
)

// ErrorMapper translates a driver's native error into an *errs.Error.
type ErrorMapper func(err error, msg string) error

// SQLConn adapts a database/sql handle limited to one physical connection
// to the Conn interface. Drivers other than PostgreSQL are built on it.
type SQLConn struct {
	db      *sql.DB
	dialect dialect.Type
	mapErr  ErrorMapper
}

// NewSQLConn wraps db. It caps the pool at one connection so that every
// statement and transaction runs on the same session.
func NewSQLConn(db *sql.DB, t dialect.Type, mapErr ErrorMapper) *SQLConn {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLConn{db: db, dialect: t, mapErr: mapErr}
}

// OpenSQL pings db within ctx and returns the wrapped connection, closing db on failure.
func OpenSQL(ctx context.Context, db *sql.DB, t dialect.Type, mapErr ErrorMapper) (*SQLConn, error) {
	c := NewSQLConn(db, t, mapErr)
	if err := c.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLConn) Dialect() dialect.Type { return c.dialect }

// DB exposes the underlying handle for driver-specific calls.
func (c *SQLConn) DB() *sql.DB { return c.db }

func (c *SQLConn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return c.mapErr(err, "ping failed")
	}
	return nil
}

func (c *SQLConn) Close() error {
	return c.db.Close()
}

func (c *SQLConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (c *SQLConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlRow{row: c.db.QueryRowContext(ctx, query, args...), mapErr: c.mapErr}
}

func (c *SQLConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, c.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (c *SQLConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, c.mapErr(err, "begin transaction failed")
	}
	return &sqlTx{tx: tx, mapErr: c.mapErr}, nil
}

type sqlTx struct {
	tx     *sql.Tx
	mapErr ErrorMapper
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (t *sqlTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return t.mapErr(err, "commit failed")
	}
	return nil
}

func (t *sqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return t.mapErr(err, "rollback failed")
	}
	return nil
}

// --- sql.DB type wrappers ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

type sqlRow struct {
	row    *sql.Row
	mapErr ErrorMapper
}

func (r *sqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return r.mapErr(err, "scan failed")
	}
	return nil
}

// rowsAffected tolerates drivers that cannot report a count.
func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}
