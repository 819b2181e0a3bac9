package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/qgenie/internal/errs"
)

// migrate brings the schema in line with tables. It runs on one dedicated
// connection because foreign_keys and legacy_alter_table cannot change
// inside a transaction, and legacy mode keeps a rename from rewriting the
// foreign keys of other tables to point at the renamed copy.
func (s *Store) migrate(ctx context.Context) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return MapError(err, "failed to acquire store connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return MapError(err, "failed to disable foreign keys")
	}
	defer func() {
		if _, perr := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); perr != nil && err == nil {
			err = MapError(perr, "failed to enable foreign keys")
		}
	}()
	if _, err := conn.ExecContext(ctx, "PRAGMA legacy_alter_table = ON"); err != nil {
		return MapError(err, "failed to enable legacy alter table")
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "PRAGMA legacy_alter_table = OFF")
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return MapError(err, "failed to begin migration")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range tables {
		if _, err = tx.ExecContext(ctx, t.createSQL(t.name, true)); err != nil {
			return MapError(err, "failed to create table "+t.name)
		}
	}
	for _, t := range tables {
		if err = s.syncTable(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if _, err = tx.ExecContext(ctx, t.triggerSQL()); err != nil {
			return MapError(err, "failed to create trigger for "+t.name)
		}
	}

	if err = tx.Commit(); err != nil {
		return MapError(err, "failed to commit migration")
	}
	return nil
}

// syncTable rebuilds t when its live columns differ from the definition.
// Columns present in both keep their data; the rest are dropped or start
// from their defaults.
func (s *Store) syncTable(ctx context.Context, tx *sql.Tx, t table) error {
	live, err := liveSignature(ctx, tx, t.name)
	if err != nil {
		return err
	}
	want := t.signature()
	if sameSignature(live, want) {
		return nil
	}

	s.log.With().Str("table", t.name).Logger().Warn("table definition changed, rebuilding")

	var common []string
	for _, c := range t.columns {
		if _, ok := live[c.name]; ok {
			common = append(common, quote(c.name))
		}
	}

	tmp := t.name + "_temp_old"
	stmts := []string{
		"DROP TABLE IF EXISTS " + quote(tmp),
		"DROP TRIGGER IF EXISTS " + quote(t.triggerName()),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(t.name), quote(tmp)),
		t.createSQL(t.name, false),
	}
	if len(common) > 0 {
		cols := strings.Join(common, ", ")
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quote(t.name), cols, cols, quote(tmp)))
	}
	stmts = append(stmts, "DROP TABLE "+quote(tmp))

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, "failed to rebuild table "+t.name, MapError(err, q))
		}
	}
	return nil
}

func liveSignature(ctx context.Context, q Querier, name string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, name)
	if err != nil {
		return nil, MapError(err, "failed to read table info for "+name)
	}
	defer rows.Close()

	sig := map[string]string{}
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, MapError(err, "failed to scan table info")
		}
		sig[col] = firstToken(typ)
	}
	return sig, MapError(rows.Err(), "failed to read table info for "+name)
}

func sameSignature(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
