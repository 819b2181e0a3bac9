package schema

import (
	"context"
	"fmt"
)

// MySQLIntrospector implements Introspector for MySQL and MariaDB using
// information_schema. A MySQL schema is a database.
type MySQLIntrospector struct {
	catalog
}

// ListSchemas returns dbName when it exists, or every non-system schema
// when no database is bound.
func (m *MySQLIntrospector) ListSchemas(ctx context.Context, dbName string) ([]string, error) {
	if dbName != "" {
		const q = `SELECT schema_name FROM information_schema.schemata WHERE schema_name = ?`
		return m.list(ctx, q, dbName)
	}
	const q = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY schema_name`
	return m.list(ctx, q)
}

// ListTables returns all user-defined table names in the given database
func (m *MySQLIntrospector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	return m.list(ctx, q, schema)
}

// ListColumns returns column details. column_type already carries length
// and precision, e.g. varchar(255) or decimal(10,2).
func (m *MySQLIntrospector) ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	const q = `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable = 'YES'  AS is_nullable,
			c.column_default,
			c.column_comment,
			c.column_key = 'PRI'   AS is_primary_key,
			c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = ?
		  AND c.table_name   = ?
		ORDER BY c.ordinal_position`

	rows, err := m.conn.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.Comment,
			&col.IsPrimaryKey,
			&col.Ordinal,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Comment = nonEmpty(col.Comment)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ListConstraints joins table_constraints with key_column_usage,
// referential_constraints and check_constraints.
func (m *MySQLIntrospector) ListConstraints(ctx context.Context, schema, table string) ([]ConstraintInfo, error) {
	const q = `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.update_rule,
			rc.delete_rule,
			cc.check_clause
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_name = tc.table_name
		LEFT JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = tc.constraint_schema
			AND rc.constraint_name = tc.constraint_name
		LEFT JOIN information_schema.check_constraints cc
			ON cc.constraint_schema = tc.constraint_schema
			AND cc.constraint_name = tc.constraint_name
		WHERE tc.table_schema = ?
		  AND tc.table_name = ?
		ORDER BY tc.constraint_name, kcu.ordinal_position`

	rows, err := m.conn.Query(ctx, q, schema, table)
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
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupConstraints(keys, standardConstraintType), nil
}

// ListIndexes reads information_schema.statistics without the PRIMARY index.
func (m *MySQLIntrospector) ListIndexes(ctx context.Context, schema, table string) ([]IndexInfo, error) {
	const q = `
		SELECT index_name, non_unique = 0 AS is_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = ?
		  AND table_name = ?
		  AND index_name <> 'PRIMARY'
		ORDER BY index_name, seq_in_index`

	rows, err := m.conn.Query(ctx, q, schema, table)
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

// standardConstraintType maps information_schema constraint_type values.
func standardConstraintType(s string) (ConstraintType, bool) {
	switch ConstraintType(s) {
	case PrimaryKey, ForeignKey, Unique, Check:
		return ConstraintType(s), true
	}
	return "", false
}
