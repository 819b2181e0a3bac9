package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLServerIntrospector implements Introspector for Microsoft SQL Server
// using INFORMATION_SCHEMA and the sys catalog views.
type SQLServerIntrospector struct {
	catalog
}

func (s *SQLServerIntrospector) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	const q = `
		SELECT SCHEMA_NAME
		FROM INFORMATION_SCHEMA.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
		  AND SCHEMA_NAME NOT LIKE 'db[_]%'
		ORDER BY SCHEMA_NAME`
	return s.list(ctx, q)
}

func (s *SQLServerIntrospector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`
	return s.list(ctx, q, schema)
}

// ListColumns reads INFORMATION_SCHEMA.COLUMNS with MS_Description comments.
func (s *SQLServerIntrospector) ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	const q = `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			CAST(ep.value AS NVARCHAR(4000)),
			CASE WHEN pk.COLUMN_NAME IS NULL THEN 0 ELSE 1 END,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
				AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			  AND tc.TABLE_SCHEMA = @p1
			  AND tc.TABLE_NAME = @p2
		) pk ON pk.COLUMN_NAME = c.COLUMN_NAME
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
			AND ep.minor_id = COLUMNPROPERTY(ep.major_id, c.COLUMN_NAME, 'ColumnId')
			AND ep.name = 'MS_Description'
		WHERE c.TABLE_SCHEMA = @p1
		  AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION`

	rows, err := s.conn.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col                      ColumnInfo
			nullable                 string
			isPK                     int64
			maxLen, precision, scale sql.NullInt64
			ordinal                  int64
		)
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&nullable,
			&col.DefaultValue,
			&col.Comment,
			&isPK,
			&maxLen,
			&precision,
			&scale,
			&ordinal,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.IsNullable = nullable == "YES"
		col.IsPrimaryKey = isPK == 1
		col.Ordinal = int(ordinal)
		col.DataType = formatSQLServerType(col.DataType, maxLen, precision, scale)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ListConstraints matches foreign-key columns to the referenced unique
// constraint by ordinal position.
func (s *SQLServerIntrospector) ListConstraints(ctx context.Context, schema, table string) ([]ConstraintInfo, error) {
	const q = `
		SELECT
			tc.CONSTRAINT_NAME,
			tc.CONSTRAINT_TYPE,
			kcu.COLUMN_NAME,
			rk.TABLE_NAME,
			rk.COLUMN_NAME,
			rc.UPDATE_RULE,
			rc.DELETE_RULE,
			cc.CHECK_CLAUSE
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
			AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			ON rc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
			AND rc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE rk
			ON rk.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA
			AND rk.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
			AND rk.ORDINAL_POSITION = kcu.ORDINAL_POSITION
		LEFT JOIN INFORMATION_SCHEMA.CHECK_CONSTRAINTS cc
			ON cc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
			AND cc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		WHERE tc.TABLE_SCHEMA = @p1
		  AND tc.TABLE_NAME = @p2
		ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

	rows, err := s.conn.Query(ctx, q, schema, table)
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

func (s *SQLServerIntrospector) ListIndexes(ctx context.Context, schema, table string) ([]IndexInfo, error) {
	const q = `
		SELECT i.name, i.is_unique, c.name
		FROM sys.indexes i
		JOIN sys.index_columns ic
			ON ic.object_id = i.object_id
			AND ic.index_id = i.index_id
		JOIN sys.columns c
			ON c.object_id = ic.object_id
			AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
		  AND i.is_primary_key = 0
		  AND i.name IS NOT NULL
		  AND ic.is_included_column = 0
		ORDER BY i.name, ic.key_ordinal`

	rows, err := s.conn.Query(ctx, q, schema, table)
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

func formatSQLServerType(dataType string, maxLen, precision, scale sql.NullInt64) string {
	switch dataType {
	case "varchar", "nvarchar", "char", "nchar", "varbinary", "binary":
		if !maxLen.Valid {
			return dataType
		}
		if maxLen.Int64 == -1 {
			return dataType + "(max)"
		}
		return fmt.Sprintf("%s(%d)", dataType, maxLen.Int64)
	case "decimal", "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("%s(%d, %d)", dataType, precision.Int64, scale.Int64)
		}
	}
	return dataType
}
