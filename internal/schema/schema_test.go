package schema

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestFormatOracleType(t *testing.T) {
	tests := []struct {
		name      string
		dataType  string
		length    int
		precision *int
		scale     *int
		want      string
	}{
		{"integer alias", "NUMBER", 22, intp(38), intp(0), "NUMBER"},
		{"precision and scale", "NUMBER", 22, intp(10), intp(2), "NUMBER(10, 2)"},
		{"precision only", "NUMBER", 22, intp(5), nil, "NUMBER(5)"},
		{"bare number", "NUMBER", 22, nil, nil, "NUMBER"},
		{"varchar2", "VARCHAR2", 100, nil, nil, "VARCHAR2(100)"},
		{"float", "FLOAT", 22, intp(126), nil, "FLOAT(126)"},
		{"date", "DATE", 7, nil, nil, "DATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatOracleType(tt.dataType, tt.length, tt.precision, tt.scale))
		})
	}
}

func TestPgIntrospector_SampleQuery(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		table  string
		want   string
	}{
		{"qualified", "public", "orders", `SELECT * FROM "public"."orders" LIMIT 5`},
		{"embedded quote", "sales", `we"ird`, `SELECT * FROM "sales"."we""ird" LIMIT 5`},
		{"mixed case", "Reporting", "Daily Totals", `SELECT * FROM "Reporting"."Daily Totals" LIMIT 5`},
		{"no schema", "", "orders", `SELECT * FROM "orders" LIMIT 5`},
	}
	p := &PgIntrospector{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.SampleQuery(tt.schema, tt.table, 5))
		})
	}
}

func TestNames(t *testing.T) {
	tables := []TableInfo{
		{Schema: "sales", Name: "orders"},
		{Schema: "archive", Name: "orders"},
		{Schema: "sales", Name: "customers"},
		{Name: "plain"},
	}
	names := NewNames(tables)

	tests := []struct {
		table TableInfo
		key   string
		name  string
	}{
		{tables[0], "sales.orders", "sales.orders"},
		{tables[1], "archive.orders", "archive.orders"},
		{tables[2], "sales.customers", "customers"},
		{tables[3], "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.table.Key())
			assert.Equal(t, tt.name, names.Of(tt.table))
		})
	}

	fk := ConstraintInfo{Type: ForeignKey, RefTable: "orders"}
	assert.Equal(t, "archive.orders", names.Ref(tables[1], fk))
	assert.Equal(t, "sales.orders", names.Ref(tables[2], fk))
	assert.Equal(t, "customers", names.Ref(tables[0], ConstraintInfo{RefTable: "customers"}))
	assert.Equal(t, "plain", names.Ref(tables[0], ConstraintInfo{RefTable: "plain"}))
	assert.Equal(t, "elsewhere", names.Ref(tables[0], ConstraintInfo{RefTable: "elsewhere"}))
}

func TestIsNotNullCheck(t *testing.T) {
	assert.True(t, IsNotNullCheck(`"EMAIL" IS NOT NULL`))
	assert.True(t, IsNotNullCheck(`email is not null`))
	assert.False(t, IsNotNullCheck(`salary > 0`))
	assert.False(t, IsNotNullCheck(`"A" IS NOT NULL AND "B" > 1`))
}

func TestParseCheckClauses(t *testing.T) {
	sql := `CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		note TEXT DEFAULT 'check (this)',
		price REAL CHECK (price > 0),
		qty INTEGER,
		CONSTRAINT qty_positive CHECK ((qty >= 0) AND (qty < 1000))
	)`

	got := ParseCheckClauses(sql)
	require.Len(t, got, 2)
	assert.Equal(t, CheckClause{Name: "", Expression: "price > 0"}, got[0])
	assert.Equal(t, CheckClause{Name: "qty_positive", Expression: "(qty >= 0) AND (qty < 1000)"}, got[1])
}

func TestGroupConstraints_CompositeForeignKey(t *testing.T) {
	s := func(v string) *string { return &v }
	rows := []keyRow{
		{name: "fk_line", kind: "FOREIGN KEY", column: s("order_id"), refTable: s("orders"), refColumn: s("id"), onDelete: s("CASCADE")},
		{name: "fk_line", kind: "FOREIGN KEY", column: s("order_rev"), refTable: s("orders"), refColumn: s("rev"), onDelete: s("CASCADE")},
		{name: "pk", kind: "PRIMARY KEY", column: s("id")},
		{name: "weird", kind: "EXCLUDE"},
	}

	got := groupConstraints(rows, standardConstraintType)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"order_id", "order_rev"}, got[0].Columns)
	assert.Equal(t, []string{"id", "rev"}, got[0].RefColumns)
	assert.Equal(t, "CASCADE", got[0].OnDelete)
	assert.Equal(t, PrimaryKey, got[1].Type)
}

// seedSQLite creates a small shop database and returns its profile params.
func seedSQLite(t *testing.T) dialect.Params {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.sqlite")
	db, err := sqlite.OpenDB(path, time.Second)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE customers (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT DEFAULT 'anon'
		)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
			total REAL CHECK (total >= 0)
		)`,
		`CREATE INDEX idx_orders_customer ON orders(customer_id, total)`,
		`INSERT INTO customers (email, name) VALUES ('a@x.io', 'a'), ('b@x.io', 'b')`,
		`INSERT INTO orders (customer_id, total) VALUES (1, 10.5)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return dialect.Params{Type: dialect.SQLite, Name: path}
}

func newScanner() *Scanner {
	return NewScanner(registry.NewConnector(database.DefaultOptions()), logger.Nop())
}

func TestScanner_FullScanSQLite(t *testing.T) {
	p := seedSQLite(t)
	tables, err := newScanner().FullScan(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	customers, orders := tables[0], tables[1]
	assert.Equal(t, "customers", customers.Name)
	assert.Equal(t, "main", customers.Schema)
	require.Len(t, customers.Columns, 3)
	assert.Equal(t, "id", customers.Columns[0].Name)
	assert.Equal(t, 1, customers.Columns[0].Ordinal)
	assert.True(t, customers.Columns[0].IsPrimaryKey)
	assert.False(t, customers.Columns[1].IsNullable)
	require.NotNil(t, customers.Columns[2].DefaultValue)
	assert.Equal(t, "'anon'", *customers.Columns[2].DefaultValue)

	var kinds []ConstraintType
	for _, c := range customers.Constraints {
		kinds = append(kinds, c.Type)
	}
	assert.Contains(t, kinds, PrimaryKey)
	assert.Contains(t, kinds, Unique)

	fks := orders.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "customers", fks[0].RefTable)
	assert.Equal(t, []string{"customer_id"}, fks[0].Columns)
	assert.Equal(t, []string{"id"}, fks[0].RefColumns)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)

	var check *ConstraintInfo
	for i := range orders.Constraints {
		if orders.Constraints[i].Type == Check {
			check = &orders.Constraints[i]
		}
	}
	require.NotNil(t, check)
	assert.Equal(t, "total >= 0", check.Expression)

	require.Len(t, orders.Indexes, 1)
	assert.Equal(t, "idx_orders_customer", orders.Indexes[0].Name)
	assert.Equal(t, []string{"customer_id", "total"}, orders.Indexes[0].Columns)
	assert.False(t, orders.Indexes[0].IsUnique)
}

func TestScanner_SampleRowsIsolatesFailures(t *testing.T) {
	p := seedSQLite(t)
	tables := []TableInfo{{Name: "customers"}, {Name: "ghost"}, {Name: "orders"}}

	samples, err := newScanner().SampleRows(context.Background(), p, tables, 0)
	require.NoError(t, err)

	assert.Len(t, samples["customers"], 2)
	assert.Equal(t, "a@x.io", samples["customers"][0]["email"])
	assert.Empty(t, samples["ghost"])
	assert.NotNil(t, samples["ghost"])
	assert.Len(t, samples["orders"], 1)
}

func TestScanner_SampleRowsRespectsLimit(t *testing.T) {
	p := seedSQLite(t)
	samples, err := newScanner().SampleRows(context.Background(), p, []TableInfo{{Name: "customers"}}, 1)
	require.NoError(t, err)
	assert.Len(t, samples["customers"], 1)
}

func TestScanner_Hierarchy(t *testing.T) {
	p := seedSQLite(t)
	dbs, err := newScanner().Hierarchy(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, p.Name, dbs[0].Name)
	require.Len(t, dbs[0].Schemas, 1)
	assert.Equal(t, "main", dbs[0].Schemas[0].Name)
	assert.Len(t, dbs[0].Schemas[0].Tables, 2)
}

func TestScanner_ListHelpers(t *testing.T) {
	ctx := context.Background()
	p := seedSQLite(t)
	s := newScanner()

	schemas, err := s.ListSchemas(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, schemas)

	tables, err := s.ListTables(ctx, p, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)

	cols, err := s.ListColumns(ctx, p, "main", "orders")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
}
