package schema

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// SQLiteIntrospector implements Introspector for SQLite via the pragma
// table-valued functions. SQLite has the single schema "main".
type SQLiteIntrospector struct {
	catalog
}

// ListSchemas always returns ["main"].
func (s *SQLiteIntrospector) ListSchemas(context.Context, string) ([]string, error) {
	return []string{"main"}, nil
}

func (s *SQLiteIntrospector) ListTables(ctx context.Context, _ string) ([]string, error) {
	const q = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	return s.list(ctx, q)
}

// ListColumns reads pragma_table_info; ordinal is cid + 1.
func (s *SQLiteIntrospector) ListColumns(ctx context.Context, _ string, table string) ([]ColumnInfo, error) {
	const q = `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := s.conn.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col         ColumnInfo
			cid         int64
			notNull, pk int64
		)
		if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &col.DefaultValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Ordinal = int(cid) + 1
		col.IsPrimaryKey = pk > 0
		col.IsNullable = notNull == 0 && pk == 0
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ListConstraints assembles constraints from several pragmas because SQLite
// keeps no constraint catalog. Unnamed constraints get synthesized names.
func (s *SQLiteIntrospector) ListConstraints(ctx context.Context, _ string, table string) ([]ConstraintInfo, error) {
	var out []ConstraintInfo

	pk, err := s.primaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	if pk != nil {
		out = append(out, *pk)
	}

	uniques, err := s.indexList(ctx, table, "u")
	if err != nil {
		return nil, err
	}
	for _, idx := range uniques {
		out = append(out, ConstraintInfo{Name: idx.Name, Type: Unique, Columns: idx.Columns})
	}

	fks, err := s.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	out = append(out, fks...)

	checks, err := s.checks(ctx, table)
	if err != nil {
		return nil, err
	}
	out = append(out, checks...)

	return out, nil
}

// ListIndexes returns explicit indexes and those backing UNIQUE constraints.
func (s *SQLiteIntrospector) ListIndexes(ctx context.Context, _ string, table string) ([]IndexInfo, error) {
	return s.indexList(ctx, table, "c", "u")
}

func (s *SQLiteIntrospector) primaryKey(ctx context.Context, table string) (*ConstraintInfo, error) {
	const q = `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`
	cols, err := s.list(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return &ConstraintInfo{Name: "pk_" + table, Type: PrimaryKey, Columns: cols}, nil
}

// indexList returns the indexes of table whose origin is one of origins.
// The list is read completely before per-index column lookups run, since
// the connection serves one statement at a time.
func (s *SQLiteIntrospector) indexList(ctx context.Context, table string, origins ...string) ([]IndexInfo, error) {
	const q = `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`

	rows, err := s.conn.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}

	var indexes []IndexInfo
	for rows.Next() {
		var (
			idx    IndexInfo
			unique int64
			origin string
		)
		if err := rows.Scan(&idx.Name, &unique, &origin); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan index: %w", err)
		}
		if !contains(origins, origin) {
			continue
		}
		idx.IsUnique = unique == 1
		indexes = append(indexes, idx)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	const colQ = `SELECT name FROM pragma_index_info(?) ORDER BY seqno`
	for i := range indexes {
		cols, err := s.list(ctx, colQ, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}
	return indexes, nil
}

func (s *SQLiteIntrospector) foreignKeys(ctx context.Context, table string) ([]ConstraintInfo, error) {
	const q = `
		SELECT id, "table", "from", "to", on_update, on_delete
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := s.conn.Query(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyRow
	for rows.Next() {
		var (
			r  keyRow
			id int64
		)
		if err := rows.Scan(&id, &r.refTable, &r.column, &r.refColumn, &r.onUpdate, &r.onDelete); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		r.name = fmt.Sprintf("fk_%s_%d", table, id)
		r.kind = string(ForeignKey)
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupConstraints(keys, standardConstraintType), nil
}

// checks extracts CHECK clauses from the stored CREATE TABLE statement.
func (s *SQLiteIntrospector) checks(ctx context.Context, table string) ([]ConstraintInfo, error) {
	const q = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
	stmts, err := s.list(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, nil
	}

	var out []ConstraintInfo
	for i, c := range ParseCheckClauses(stmts[0]) {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("ck_%s_%d", table, i+1)
		}
		out = append(out, ConstraintInfo{Name: name, Type: Check, Columns: []string{}, Expression: c.Expression})
	}
	return out, nil
}

// CheckClause is one CHECK found in a CREATE TABLE statement.
type CheckClause struct {
	Name       string
	Expression string
}

// ParseCheckClauses finds CHECK (...) clauses outside string literals,
// together with the name of a preceding CONSTRAINT <name>.
func ParseCheckClauses(createSQL string) []CheckClause {
	var out []CheckClause
	upper := strings.ToUpper(createSQL)

	for i := 0; i < len(createSQL); i++ {
		switch createSQL[i] {
		case '\'', '"', '`':
			i = skipQuoted(createSQL, i)
			continue
		}
		if !keywordAt(upper, i, "CHECK") {
			continue
		}
		j := i + len("CHECK")
		for j < len(createSQL) && unicode.IsSpace(rune(createSQL[j])) {
			j++
		}
		if j >= len(createSQL) || createSQL[j] != '(' {
			continue
		}
		end := matchParen(createSQL, j)
		if end < 0 {
			break
		}
		out = append(out, CheckClause{
			Name:       constraintNameBefore(createSQL, upper, i),
			Expression: strings.TrimSpace(createSQL[j+1 : end]),
		})
		i = end
	}
	return out
}

func keywordAt(upper string, i int, kw string) bool {
	if !strings.HasPrefix(upper[i:], kw) {
		return false
	}
	if i > 0 && isIdentChar(upper[i-1]) {
		return false
	}
	end := i + len(kw)
	return end >= len(upper) || !isIdentChar(upper[end])
}

func isIdentChar(b byte) bool {
	return b == '_' || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}

func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j
		}
	}
	return len(s)
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			i = skipQuoted(s, i)
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// constraintNameBefore returns X for "... CONSTRAINT X CHECK".
func constraintNameBefore(s, upper string, checkAt int) string {
	fields := strings.Fields(s[:checkAt])
	upperFields := strings.Fields(upper[:checkAt])
	n := len(fields)
	if n >= 2 && upperFields[n-2] == "CONSTRAINT" {
		return strings.Trim(fields[n-1], "\"`[]")
	}
	return ""
}
