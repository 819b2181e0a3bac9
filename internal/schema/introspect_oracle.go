package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// OracleIntrospector implements Introspector for Oracle using the ALL_*
// dictionary views. An Oracle schema is a user; names are upper case.
type OracleIntrospector struct {
	catalog
}

// ListSchemas returns users that are not maintained by Oracle.
func (o *OracleIntrospector) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	const q = `SELECT username FROM all_users WHERE oracle_maintained = 'N' ORDER BY username`
	return o.list(ctx, q)
}

func (o *OracleIntrospector) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `SELECT table_name FROM all_tables WHERE owner = :1 ORDER BY table_name`
	return o.list(ctx, q, strings.ToUpper(schema))
}

// ListColumns joins all_tab_columns with all_col_comments and a primary-key
// sub-select. Binds are positional, so repeated values are passed twice.
func (o *OracleIntrospector) ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			c.data_length,
			c.data_precision,
			c.data_scale,
			c.nullable,
			c.data_default,
			cc.comments,
			c.column_id,
			CASE WHEN pk.column_name IS NULL THEN 0 ELSE 1 END
		FROM all_tab_columns c
		LEFT JOIN all_col_comments cc
			ON cc.owner = c.owner
			AND cc.table_name = c.table_name
			AND cc.column_name = c.column_name
		LEFT JOIN (
			SELECT acc.column_name
			FROM all_constraints ac
			JOIN all_cons_columns acc
				ON acc.owner = ac.owner
				AND acc.constraint_name = ac.constraint_name
			WHERE ac.constraint_type = 'P'
			  AND ac.owner = :1
			  AND ac.table_name = :2
		) pk ON pk.column_name = c.column_name
		WHERE c.owner = :3
		  AND c.table_name = :4
		ORDER BY c.column_id`

	owner := strings.ToUpper(schema)
	rows, err := o.conn.Query(ctx, q, owner, table, owner, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col              ColumnInfo
			dataType         string
			length           sql.NullInt64
			precision, scale sql.NullInt64
			nullable         string
			ordinal, isPK    int64
		)
		if err := rows.Scan(
			&col.Name,
			&dataType,
			&length,
			&precision,
			&scale,
			&nullable,
			&col.DefaultValue,
			&col.Comment,
			&ordinal,
			&isPK,
		); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.DataType = FormatOracleType(dataType, int(length.Int64), nullInt(precision), nullInt(scale))
		col.IsNullable = nullable == "Y"
		col.IsPrimaryKey = isPK == 1
		col.Ordinal = int(ordinal)
		if col.DefaultValue != nil {
			trimmed := strings.TrimSpace(*col.DefaultValue)
			col.DefaultValue = nonEmpty(&trimmed)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ListConstraints reads all_constraints. Oracle records NOT NULL as a check
// constraint; those are dropped since nullability lives on ColumnInfo.
func (o *OracleIntrospector) ListConstraints(ctx context.Context, schema, table string) ([]ConstraintInfo, error) {
	const q = `
		SELECT
			ac.constraint_name,
			ac.constraint_type,
			acc.column_name,
			rc.table_name,
			rcc.column_name,
			ac.delete_rule,
			ac.search_condition
		FROM all_constraints ac
		LEFT JOIN all_cons_columns acc
			ON acc.owner = ac.owner
			AND acc.constraint_name = ac.constraint_name
		LEFT JOIN all_constraints rc
			ON rc.owner = ac.r_owner
			AND rc.constraint_name = ac.r_constraint_name
		LEFT JOIN all_cons_columns rcc
			ON rcc.owner = rc.owner
			AND rcc.constraint_name = rc.constraint_name
			AND rcc.position = acc.position
		WHERE ac.owner = :1
		  AND ac.table_name = :2
		  AND ac.constraint_type IN ('P', 'U', 'R', 'C')
		ORDER BY ac.constraint_name, acc.position`

	rows, err := o.conn.Query(ctx, q, strings.ToUpper(schema), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyRow
	for rows.Next() {
		var r keyRow
		if err := rows.Scan(&r.name, &r.kind, &r.column, &r.refTable, &r.refColumn, &r.onDelete, &r.expression); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		if r.kind == "C" && r.expression != nil && IsNotNullCheck(*r.expression) {
			continue
		}
		if r.kind == "R" {
			// Oracle has no ON UPDATE clause.
			noAction := "NO ACTION"
			r.onUpdate = &noAction
		}
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupConstraints(keys, oracleConstraintType), nil
}

// ListIndexes skips indexes that back the primary key.
func (o *OracleIntrospector) ListIndexes(ctx context.Context, schema, table string) ([]IndexInfo, error) {
	const q = `
		SELECT ai.index_name, ai.uniqueness, aic.column_name
		FROM all_indexes ai
		JOIN all_ind_columns aic
			ON aic.index_owner = ai.owner
			AND aic.index_name = ai.index_name
		WHERE ai.table_owner = :1
		  AND ai.table_name = :2
		  AND NOT EXISTS (
			SELECT 1 FROM all_constraints c
			WHERE c.owner = ai.table_owner
			  AND c.table_name = ai.table_name
			  AND c.constraint_type = 'P'
			  AND c.index_name = ai.index_name
		  )
		ORDER BY ai.index_name, aic.column_position`

	rows, err := o.conn.Query(ctx, q, strings.ToUpper(schema), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyRow
	for rows.Next() {
		var (
			r          keyRow
			uniqueness string
		)
		if err := rows.Scan(&r.name, &uniqueness, &r.column); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		r.unique = uniqueness == "UNIQUE"
		keys = append(keys, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupIndexes(keys), nil
}

func oracleConstraintType(code string) (ConstraintType, bool) {
	switch code {
	case "P":
		return PrimaryKey, true
	case "R":
		return ForeignKey, true
	case "U":
		return Unique, true
	case "C":
		return Check, true
	}
	return "", false
}

var notNullCheck = regexp.MustCompile(`^"?[^"\s]+"?\s+IS\s+NOT\s+NULL$`)

// IsNotNullCheck reports whether a check condition is Oracle's synthetic
// `"COL" IS NOT NULL`.
func IsNotNullCheck(expr string) bool {
	return notNullCheck.MatchString(strings.ToUpper(strings.TrimSpace(expr)))
}

// FormatOracleType rebuilds a declared type from its dictionary parts.
// NUMBER(38,0) is Oracle's INTEGER and prints as bare NUMBER.
func FormatOracleType(dataType string, length int, precision, scale *int) string {
	switch strings.ToUpper(dataType) {
	case "NUMBER":
		if precision == nil {
			return "NUMBER"
		}
		if *precision == 38 && scale != nil && *scale == 0 {
			return "NUMBER"
		}
		if scale == nil || *scale == 0 {
			return fmt.Sprintf("NUMBER(%d)", *precision)
		}
		return fmt.Sprintf("NUMBER(%d, %d)", *precision, *scale)
	case "FLOAT":
		if precision != nil {
			return fmt.Sprintf("FLOAT(%d)", *precision)
		}
	case "VARCHAR2", "NVARCHAR2", "CHAR", "NCHAR", "RAW", "VARCHAR":
		if length > 0 {
			return fmt.Sprintf("%s(%d)", dataType, length)
		}
	}
	return dataType
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
