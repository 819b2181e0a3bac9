package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/qgenie/internal/database/postgres"
)

// PgIntrospector implements Introspector for PostgreSQL using
// information_schema and pg_catalog.
type PgIntrospector struct {
	catalog
}

// SampleQuery selects up to limit rows, quoting names through pgx.
func (p *PgIntrospector) SampleQuery(schema, table string, limit int) string {
	name := postgres.QuoteIdent(table)
	if schema != "" {
		name = postgres.QuoteIdent(schema, table)
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, limit)
}

// ListSchemas returns every non-system schema.
func (p *PgIntrospector) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	const q = `
		SELECT schema_name::text
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY schema_name`
	return p.list(ctx, q)
}

// ListTables returns all user-defined table names in the given schema
func (p *PgIntrospector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	return p.list(ctx, q, schema)
}

// ListColumns returns column details with the primary-key flag and the
// column comment from pg_description.
func (p *PgIntrospector) ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	const q = `
		SELECT
			c.column_name::text,
			c.data_type::text,
			c.is_nullable = 'YES'                 AS is_nullable,
			c.column_default::text,
			pgd.description                       AS comment,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			)                                     AS is_pk,
			c.character_maximum_length::int,
			c.numeric_precision::int,
			c.numeric_scale::int,
			c.ordinal_position::int
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_stat_all_tables st
			ON c.table_schema = st.schemaname AND c.table_name = st.relname
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := p.conn.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col                     ColumnInfo
			maxLen, precision, scale *int
		)
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.Comment,
			&col.IsPrimaryKey,
			&maxLen,
			&precision,
			&scale,
			&col.Ordinal,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.DataType = formatPgType(col.DataType, maxLen, precision, scale)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ListConstraints reads pg_constraint, one row per member column.
func (p *PgIntrospector) ListConstraints(ctx context.Context, schema, table string) ([]ConstraintInfo, error) {
	const q = `
		SELECT
			con.conname::text,
			con.contype::text,
			a.attname::text,
			ref.relname::text,
			ra.attname::text,
			con.confupdtype::text,
			con.confdeltype::text,
			pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		LEFT JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		LEFT JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		LEFT JOIN pg_class ref ON ref.oid = con.confrelid
		LEFT JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = con.confkey[k.ord]
		WHERE n.nspname = $1
		  AND rel.relname = $2
		  AND con.contype IN ('p', 'f', 'u', 'c')
		ORDER BY con.conname, k.ord`

	rows, err := p.conn.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyRow
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.name, &r.kind, &r.column, &r.refTable, &r.refColumn, &r.onUpdate, &r.onDelete, &r.expression); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		r.onUpdate = pgAction(r.onUpdate)
		r.onDelete = pgAction(r.onDelete)
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupConstraints(keys, pgConstraintType), nil
}

// ListIndexes reads pg_index, skipping the primary-key index.
func (p *PgIntrospector) ListIndexes(ctx context.Context, schema, table string) ([]IndexInfo, error) {
	const q = `
		SELECT
			i.relname::text,
			ix.indisunique,
			a.attname::text
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class i ON i.oid = ix.indexrelid
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
		LEFT JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND NOT ix.indisprimary
		ORDER BY i.relname, k.ord`

	rows, err := p.conn.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyRow
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.name, &r.unique, &r.column); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupIndexes(keys), nil
}

func pgConstraintType(code string) (ConstraintType, bool) {
	switch code {
	case "p":
		return PrimaryKey, true
	case "f":
		return ForeignKey, true
	case "u":
		return Unique, true
	case "c":
		return Check, true
	}
	return "", false
}

// pgAction expands pg_constraint action codes. Non-FK rows carry a blank.
func pgAction(code *string) *string {
	if code == nil {
		return nil
	}
	var s string
	switch strings.TrimSpace(*code) {
	case "a":
		s = "NO ACTION"
	case "r":
		s = "RESTRICT"
	case "c":
		s = "CASCADE"
	case "n":
		s = "SET NULL"
	case "d":
		s = "SET DEFAULT"
	default:
		return nil
	}
	return &s
}

// formatPgType appends length or precision to the information_schema name.
func formatPgType(dataType string, maxLen, precision, scale *int) string {
	switch dataType {
	case "character varying", "character", "bit", "bit varying":
		if maxLen != nil {
			return fmt.Sprintf("%s(%d)", dataType, *maxLen)
		}
	case "numeric":
		if precision != nil && scale != nil && *scale > 0 {
			return fmt.Sprintf("numeric(%d, %d)", *precision, *scale)
		}
		if precision != nil {
			return fmt.Sprintf("numeric(%d)", *precision)
		}
	}
	return dataType
}
