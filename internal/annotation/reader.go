package annotation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/store"
)

// Reader rebuilds persisted annotation trees.
type Reader struct {
	db store.Querier
}

// NewReader creates a Reader over the store.
func NewReader(db store.Querier) *Reader {
	return &Reader{db: db}
}

// Full returns the per-table detail of annotation id, one query per level.
func (r *Reader) Full(ctx context.Context, id string) (*FullAnnotation, error) {
	var (
		a    FullAnnotation
		desc sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, db_profile_id, database_name, description, created_at, updated_at
		FROM database_annotation WHERE id = ?`, id).
		Scan(&a.ID, &a.DBProfileID, &a.DatabaseName, &desc, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, annotationNotFound(id)
	}
	if err != nil {
		return nil, findError(err)
	}
	a.Description = desc.String

	a.Tables, err = r.tables(ctx, a.ID)
	if err != nil {
		return nil, findError(err)
	}
	for i := range a.Tables {
		t := &a.Tables[i]
		if t.Columns, err = r.columns(ctx, t.ID); err != nil {
			return nil, findError(err)
		}
		if t.Constraints, err = r.constraints(ctx, t.ID); err != nil {
			return nil, findError(err)
		}
		if t.Indexes, err = r.indexes(ctx, t.ID); err != nil {
			return nil, findError(err)
		}
	}
	return &a, nil
}

// ByProfile returns the full annotation linked to a profile.
func (r *Reader) ByProfile(ctx context.Context, profileID string) (*FullAnnotation, error) {
	var annotationID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT annotation_id FROM db_profile WHERE id = ?`, profileID).Scan(&annotationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.ErrKindNotFound, "profile %s not found", profileID).WithCode(errs.CodeNoSearchData)
	}
	if err != nil {
		return nil, findError(err)
	}
	if !annotationID.Valid {
		return nil, noAnnotation(profileID)
	}
	return r.Full(ctx, annotationID.String)
}

// Hierarchical returns the DBMS → database → table tree of the profile's
// annotation, with relationships rebuilt from foreign-key constraints.
func (r *Reader) Hierarchical(ctx context.Context, profileID string) (*Tree, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dp.type, da.id, da.db_profile_id, da.database_name, da.description, da.created_at, da.updated_at,
		       ta.id, ta.table_name, ta.description, ca.column_name, ca.description, ca.data_type
		FROM db_profile dp
		JOIN database_annotation da ON dp.annotation_id = da.id
		LEFT JOIN table_annotation ta ON ta.database_annotation_id = da.id
		LEFT JOIN column_annotation ca ON ca.table_annotation_id = ta.id
		WHERE dp.id = ?
		ORDER BY ta.table_name, ca.ordinal_position`, profileID)
	if err != nil {
		return nil, findError(err)
	}

	var (
		tree   *Tree
		db     TreeDatabase
		tables []TreeTable
		lastID string
	)
	for rows.Next() {
		var (
			dbType, rootID, ownerID, dbName string
			dbDesc                          sql.NullString
			tableID, tableName, tableDesc   sql.NullString
			colName, colDesc, colType       sql.NullString
			created, updated                time.Time
		)
		if err := rows.Scan(&dbType, &rootID, &ownerID, &dbName, &dbDesc, &created, &updated,
			&tableID, &tableName, &tableDesc, &colName, &colDesc, &colType); err != nil {
			rows.Close()
			return nil, findError(err)
		}
		if tree == nil {
			tree = &Tree{
				DBMSType:     dbType,
				AnnotationID: rootID,
				DBProfileID:  ownerID,
				CreatedAt:    created,
				UpdatedAt:    updated,
			}
			db = TreeDatabase{DBName: dbName, Description: dbDesc.String}
		}
		if !tableID.Valid {
			continue
		}
		if tableID.String != lastID {
			tables = append(tables, TreeTable{TableName: tableName.String, Description: tableDesc.String, Columns: []TreeColumn{}})
			lastID = tableID.String
		}
		if colName.Valid {
			t := &tables[len(tables)-1]
			t.Columns = append(t.Columns, TreeColumn{
				ColumnName:  colName.String,
				Description: colDesc.String,
				DataType:    colType.String,
			})
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, findError(err)
	}

	if tree == nil {
		return nil, r.missingTree(ctx, profileID)
	}

	rels, err := r.relationships(ctx, tree.AnnotationID)
	if err != nil {
		return nil, findError(err)
	}
	if tables == nil {
		tables = []TreeTable{}
	}
	db.Tables = tables
	db.Relationships = rels
	tree.Databases = []TreeDatabase{db}
	return tree, nil
}

// Delete removes annotation id; descendants cascade. It reports whether a
// row existed.
func (r *Reader) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM database_annotation WHERE id = ?`, id)
	if err != nil {
		return false, deleteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, deleteError(err)
	}
	return n > 0, nil
}

// missingTree tells an unknown profile from one without an annotation.
func (r *Reader) missingTree(ctx context.Context, profileID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM db_profile WHERE id = ?`, profileID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Newf(errs.ErrKindNotFound, "profile %s not found", profileID).WithCode(errs.CodeNoSearchData)
	}
	if err != nil {
		return findError(err)
	}
	return noAnnotation(profileID)
}

func (r *Reader) tables(ctx context.Context, rootID string) ([]TableDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, table_name, description FROM table_annotation
		WHERE database_annotation_id = ? ORDER BY table_name`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TableDetail{}
	for rows.Next() {
		var (
			t    TableDetail
			desc sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TableName, &desc); err != nil {
			return nil, err
		}
		t.Description = desc.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Reader) columns(ctx context.Context, tableID string) ([]ColumnDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, column_name, description, data_type, is_nullable, default_value, ordinal_position
		FROM column_annotation WHERE table_annotation_id = ? ORDER BY ordinal_position, column_name`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ColumnDetail{}
	for rows.Next() {
		var (
			c                  ColumnDetail
			desc, typ, deflt   sql.NullString
			nullable, position sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.ColumnName, &desc, &typ, &nullable, &deflt, &position); err != nil {
			return nil, err
		}
		c.Description = desc.String
		c.DataType = typ.String
		c.IsNullable = nullable.Int64 != 0
		c.OrdinalPosition = int(position.Int64)
		if deflt.Valid {
			c.DefaultValue = &deflt.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// constraints yields one row per constraint column; rows are grouped by
// constraint id in first-seen order.
func (r *Reader) constraints(ctx context.Context, tableID string) ([]ConstraintDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tc.id, tc.name, tc.constraint_type, tc.description, tc.expression, tc.ref_table,
		       ca.column_name, cc.referenced_column_name
		FROM table_constraint tc
		LEFT JOIN constraint_column cc ON cc.constraint_id = tc.id
		LEFT JOIN column_annotation ca ON ca.id = cc.column_annotation_id
		WHERE tc.table_annotation_id = ?
		ORDER BY tc.constraint_type, tc.name, tc.id, cc.position`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ConstraintDetail{}
	index := map[string]int{}
	for rows.Next() {
		var (
			id, typ                              string
			name, desc, expr, refTable, col, ref sql.NullString
		)
		if err := rows.Scan(&id, &name, &typ, &desc, &expr, &refTable, &col, &ref); err != nil {
			return nil, err
		}
		i, seen := index[id]
		if !seen {
			out = append(out, ConstraintDetail{
				Name:        name.String,
				Type:        typ,
				Columns:     []string{},
				Description: desc.String,
				Expression:  expr.String,
				RefTable:    refTable.String,
			})
			i = len(out) - 1
			index[id] = i
		}
		if col.Valid {
			out[i].Columns = append(out[i].Columns, col.String)
		}
		if ref.Valid {
			out[i].RefColumns = append(out[i].RefColumns, ref.String)
		}
	}
	return out, rows.Err()
}

func (r *Reader) indexes(ctx context.Context, tableID string) ([]IndexDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ia.id, ia.name, ia.is_unique, ca.column_name
		FROM index_annotation ia
		LEFT JOIN index_column ic ON ic.index_id = ia.id
		LEFT JOIN column_annotation ca ON ca.id = ic.column_annotation_id
		WHERE ia.table_annotation_id = ?
		ORDER BY ia.name, ia.id, ic.position`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []IndexDetail{}
	index := map[string]int{}
	for rows.Next() {
		var (
			id        string
			name, col sql.NullString
			unique    int64
		)
		if err := rows.Scan(&id, &name, &unique, &col); err != nil {
			return nil, err
		}
		i, seen := index[id]
		if !seen {
			out = append(out, IndexDetail{Name: name.String, Columns: []string{}, IsUnique: unique != 0})
			i = len(out) - 1
			index[id] = i
		}
		if col.Valid {
			out[i].Columns = append(out[i].Columns, col.String)
		}
	}
	return out, rows.Err()
}

// relationships groups foreign-key column rows by constraint into ordered
// from/to column lists.
func (r *Reader) relationships(ctx context.Context, rootID string) ([]TreeRelationship, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tc.id, ta_from.table_name, ca_from.column_name, tc.ref_table, cc.referenced_column_name, tc.description
		FROM table_constraint tc
		JOIN table_annotation ta_from ON ta_from.id = tc.table_annotation_id
		JOIN constraint_column cc ON cc.constraint_id = tc.id
		JOIN column_annotation ca_from ON ca_from.id = cc.column_annotation_id
		WHERE ta_from.database_annotation_id = ? AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY ta_from.table_name, tc.name, tc.id, cc.position`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TreeRelationship{}
	index := map[string]int{}
	for rows.Next() {
		var (
			id, fromTable, fromCol string
			toTable, toCol, desc   sql.NullString
		)
		if err := rows.Scan(&id, &fromTable, &fromCol, &toTable, &toCol, &desc); err != nil {
			return nil, err
		}
		i, seen := index[id]
		if !seen {
			out = append(out, TreeRelationship{
				FromTable:   fromTable,
				FromColumns: []string{},
				ToTable:     toTable.String,
				ToColumns:   []string{},
				Description: desc.String,
			})
			i = len(out) - 1
			index[id] = i
		}
		out[i].FromColumns = append(out[i].FromColumns, fromCol)
		if toCol.Valid {
			out[i].ToColumns = append(out[i].ToColumns, toCol.String)
		}
	}
	return out, rows.Err()
}

func annotationNotFound(id string) error {
	return errs.Newf(errs.ErrKindNotFound, "annotation %s not found", id).WithCode(errs.CodeNoSearchData)
}

func noAnnotation(profileID string) error {
	return errs.Newf(errs.ErrKindNotFound, "profile %s has no annotation", profileID).
		WithCode(errs.CodeNoAnnotationForProfile)
}

func findError(err error) error {
	err = store.MapError(err, "failed to find annotation")
	if errs.IsStoreBusy(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindUnknown, "failed to find annotation", err).WithCode(errs.CodeFailFindAnnotation)
}

func deleteError(err error) error {
	err = store.MapError(err, "failed to delete annotation")
	if errs.IsStoreBusy(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindUnknown, "failed to delete annotation", err).WithCode(errs.CodeFailDeleteAnnotation)
}
