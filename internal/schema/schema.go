package schema

import (
	"context"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Introspector enumerates the structure of a live database. There is one
// implementation per dialect; all of them run on a single open connection.
type Introspector interface {
	// ListDatabases returns databases visible on the server.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListSchemas returns user schemas. database narrows the result where the
	// dialect treats databases as schemas (MySQL).
	ListSchemas(ctx context.Context, database string) ([]string, error)

	// ListTables returns base tables in schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// ListColumns returns columns in ordinal order.
	ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error)

	// ListConstraints returns primary, unique, foreign and check constraints.
	ListConstraints(ctx context.Context, schema, table string) ([]ConstraintInfo, error)

	// ListIndexes returns indexes other than the primary-key index.
	ListIndexes(ctx context.Context, schema, table string) ([]IndexInfo, error)

	// SampleQuery returns a statement selecting at most limit rows of table.
	SampleQuery(schema, table string, limit int) string
}

// New returns the Introspector for the connection's dialect.
func New(conn database.Conn) (Introspector, error) {
	spec, err := dialect.Lookup(conn.Dialect())
	if err != nil {
		return nil, err
	}
	base := catalog{conn: conn, spec: spec}

	switch spec.Type {
	case dialect.PostgreSQL:
		return &PgIntrospector{base}, nil
	case dialect.MySQL, dialect.MariaDB:
		return &MySQLIntrospector{base}, nil
	case dialect.Oracle:
		return &OracleIntrospector{base}, nil
	case dialect.SQLServer:
		return &SQLServerIntrospector{base}, nil
	case dialect.SQLite:
		return &SQLiteIntrospector{base}, nil
	default:
		return nil, errs.Newf(errs.ErrKindUnsupportedDatabaseType, "no introspector for %q", string(spec.Type)).
			WithCode(errs.CodeInvalidDBDriver)
	}
}

// catalog holds what every dialect implementation shares.
type catalog struct {
	conn database.Conn
	spec dialect.Spec
}

func (c catalog) list(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanStrings(rows)
}

func (c catalog) SampleQuery(schema, table string, limit int) string {
	if c.spec.Type == dialect.SQLite {
		schema = ""
	}
	return c.spec.LimitQuery(schema, table, limit)
}

// ListDatabases runs the dialect's database listing query.
func (c catalog) ListDatabases(ctx context.Context) ([]string, error) {
	if c.spec.DatabasesQuery == "" {
		return nil, nil
	}
	return c.list(ctx, c.spec.DatabasesQuery)
}

// keyRow is one (constraint or index, column) pair as returned by the
// catalog queries, which emit one row per member column.
type keyRow struct {
	name       string
	kind       string
	column     *string
	refTable   *string
	refColumn  *string
	onUpdate   *string
	onDelete   *string
	expression *string
	unique     bool
}

// groupConstraints folds keyRows into ConstraintInfo values, keeping the
// first-seen order of names and the row order of columns.
func groupConstraints(rows []keyRow, kind func(string) (ConstraintType, bool)) []ConstraintInfo {
	byName := map[string]*ConstraintInfo{}
	var order []string

	for _, r := range rows {
		typ, ok := kind(r.kind)
		if !ok {
			continue
		}
		c, seen := byName[r.name]
		if !seen {
			c = &ConstraintInfo{Name: r.name, Type: typ, Columns: []string{}}
			byName[r.name] = c
			order = append(order, r.name)
		}
		if r.column != nil && !contains(c.Columns, *r.column) {
			c.Columns = append(c.Columns, *r.column)
		}
		if typ == ForeignKey {
			c.RefTable = deref(r.refTable)
			if r.refColumn != nil {
				c.RefColumns = append(c.RefColumns, *r.refColumn)
			}
			c.OnUpdate = deref(r.onUpdate)
			c.OnDelete = deref(r.onDelete)
		}
		if typ == Check && r.expression != nil {
			c.Expression = *r.expression
		}
	}

	out := make([]ConstraintInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// groupIndexes folds keyRows into IndexInfo values in first-seen order.
func groupIndexes(rows []keyRow) []IndexInfo {
	byName := map[string]*IndexInfo{}
	var order []string

	for _, r := range rows {
		idx, seen := byName[r.name]
		if !seen {
			idx = &IndexInfo{Name: r.name, IsUnique: r.unique, Columns: []string{}}
			byName[r.name] = idx
			order = append(order, r.name)
		}
		if r.column != nil {
			idx.Columns = append(idx.Columns, *r.column)
		}
	}

	out := make([]IndexInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
