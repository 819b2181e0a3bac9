// Package postgres opens single pgx connections to PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Driver is a PostgreSQL implementation of database.Conn backed by one pgx.Conn.
// It is not safe for concurrent use.
type Driver struct {
	conn *pgx.Conn
}

// Open connects using connect arguments built by the dialect package and pings.
func Open(ctx context.Context, args dialect.ConnectArgs, opts database.Options) (database.Conn, error) {
	cfg, err := pgx.ParseConfig(buildDSN(args, opts))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid connection parameters", err)
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}

	d := &Driver{conn: conn}
	if err := d.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, err
	}
	return d, nil
}

// buildDSN constructs a keyword/value connection string, quoting every value.
func buildDSN(args dialect.ConnectArgs, opts database.Options) string {
	pairs := []string{
		"host=" + quote(args.Get(dialect.KeyHost)),
		"port=" + quote(args.Get(dialect.KeyPort)),
		"user=" + quote(args.Get(dialect.KeyUser)),
		"password=" + quote(args.Get(dialect.KeyPassword)),
		"sslmode=prefer",
	}
	if db := args.Get(dialect.KeyDBName); db != "" {
		pairs = append(pairs, "dbname="+quote(db))
	} else {
		// Server-level flows still need some database to attach to.
		pairs = append(pairs, "dbname=postgres")
	}
	if opts.ApplicationName != "" {
		pairs = append(pairs, "application_name="+quote(opts.ApplicationName))
	}
	return strings.Join(pairs, " ")
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// QuoteIdent quotes schema-qualified identifiers the way pgx does.
func QuoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// --- database.Conn implementation ---

func (d *Driver) Dialect() dialect.Type { return dialect.PostgreSQL }

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() error {
	return d.conn.Close(context.Background())
}

func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.conn.Query(ctx, sql, withMode(args)...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: d.conn.QueryRow(ctx, sql, args...)}
}

func (d *Driver) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.conn.Exec(ctx, sql, withMode(args)...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "begin transaction failed")
	}
	return &pgxTx{tx: tx}, nil
}

// withMode sends argument-free statements over the simple protocol, which
// accepts several semicolon-separated statements in one call. Parameterised
// statements keep the extended protocol.
func withMode(args []any) []any {
	if len(args) == 0 {
		return []any{pgx.QueryExecModeSimpleProtocol}
	}
	return args
}

// --- pgx type wrappers ---

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, withMode(args)...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, withMode(args)...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err, "commit failed")
	}
	return nil
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapError(err, "rollback failed")
	}
	return nil
}

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// TLS, network and authentication handshake failures.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE code to an error kind.
func classifySQLState(code string) errs.ErrKind {
	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case "08", "28", "3D", "53", "57":
		// connection exception, invalid authorization, invalid catalog,
		// insufficient resources, operator intervention
		return errs.ErrKindConnectionFailed
	case "42":
		if code == "42501" {
			return errs.ErrKindPermissionDenied
		}
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
