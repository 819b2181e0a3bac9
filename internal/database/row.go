package database

import (
	"fmt"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
)

// ScanRows reads all rows from the result set and returns the column names
// plus each row as a slice of display-ready values in column order.
//
// The returned row slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows.
func ScanRows(rows Rows) ([]string, [][]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([][]any, 0)
	for rows.Next() {
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		for i := range dest {
			dest[i] = Normalize(dest[i])
		}
		result = append(result, dest)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return columns, result, nil
}

// ScanMaps is ScanRows keyed by column name.
func ScanMaps(rows Rows) ([]map[string]any, error) {
	columns, values, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = v[i]
		}
		out = append(out, row)
	}
	return out, nil
}

// ScanStrings collects the first column of every row as a string.
func ScanStrings(rows Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan value", err)
		}
		if v == nil {
			continue
		}
		out = append(out, fmt.Sprint(Normalize(v)))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return out, nil
}

// Normalize converts driver values into JSON-friendly ones: byte slices become
// strings and times are rendered in RFC 3339.
func Normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return v
	}
}
