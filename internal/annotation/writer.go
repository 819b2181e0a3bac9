package annotation

import (
	"context"
	"database/sql"
	"strings"

	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/schema"
	"github.com/koustreak/qgenie/internal/store"
)

// writer inserts one annotation tree. All statements run on q, which the
// orchestrator binds to a single transaction.
type writer struct {
	q   store.Querier
	log *logger.Logger
}

// persisted reports what a write produced, for logging.
type persisted struct {
	tables, columns, constraints, indexes, relationships int
}

// replace deletes the profile's previous tree; descendants cascade.
func (w *writer) replace(ctx context.Context, profileID string) error {
	res, err := w.q.ExecContext(ctx, `DELETE FROM database_annotation WHERE db_profile_id = ?`, profileID)
	if err != nil {
		return store.MapError(err, "failed to remove previous annotation")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		w.log.InfoWith("replacing previous annotation", map[string]any{"profile_id": profileID, "rows": n})
	}
	return nil
}

// write persists db against the live snapshot and returns the new root id.
// AI tables or columns absent from the snapshot are skipped.
func (w *writer) write(ctx context.Context, profileID string, db DatabaseResponse, live []schema.TableInfo) (string, persisted, error) {
	var stats persisted

	rootID := store.NewID(store.PrefixDatabaseAnnotation)
	_, err := w.q.ExecContext(ctx,
		`INSERT INTO database_annotation (id, db_profile_id, database_name, description) VALUES (?, ?, ?, ?)`,
		rootID, profileID, db.DatabaseName, nullable(db.Description))
	if err != nil {
		return "", stats, store.MapError(err, "failed to insert database annotation")
	}

	names := schema.NewNames(live)
	byName := make(map[string]schema.TableInfo, len(live))
	for _, t := range live {
		if _, dup := byName[names.Of(t)]; !dup {
			byName[names.Of(t)] = t
		}
	}

	tableIDs := make(map[string]string, len(db.Tables))
	for _, at := range db.Tables {
		t, ok := byName[at.TableName]
		if !ok {
			w.log.Warnf("table %q is not in the live schema, skipping", at.TableName)
			continue
		}
		name := names.Of(t)
		if _, dup := tableIDs[name]; dup {
			continue
		}
		id, err := w.writeTable(ctx, rootID, at, t, names, db.Relationships, &stats)
		if err != nil {
			return "", stats, err
		}
		tableIDs[name] = id
	}

	for _, r := range db.Relationships {
		from, okFrom := tableIDs[r.FromTable]
		to, okTo := tableIDs[r.ToTable]
		if !okFrom || !okTo {
			w.log.Debugf("relationship %s -> %s references an unpersisted table, skipping", r.FromTable, r.ToTable)
			continue
		}
		_, err := w.q.ExecContext(ctx,
			`INSERT INTO table_relationship (id, database_annotation_id, from_table_id, to_table_id, relationship_type, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			store.NewID(store.PrefixRelationship), rootID, from, to, string(schema.ForeignKey), nullable(r.Description))
		if err != nil {
			return "", stats, store.MapError(err, "failed to insert relationship")
		}
		stats.relationships++
	}
	return rootID, stats, nil
}

func (w *writer) writeTable(ctx context.Context, rootID string, at TableResponse, t schema.TableInfo,
	names schema.Names, rels []RelationshipResponse, stats *persisted) (string, error) {
	tableID := store.NewID(store.PrefixTableAnnotation)
	_, err := w.q.ExecContext(ctx,
		`INSERT INTO table_annotation (id, database_annotation_id, table_name, description) VALUES (?, ?, ?, ?)`,
		tableID, rootID, names.Of(t), nullable(at.Description))
	if err != nil {
		return "", store.MapError(err, "failed to insert table annotation")
	}
	stats.tables++

	// Column ids exist only for columns that got a row.
	colIDs := make(map[string]string, len(at.Columns))
	checks := checkExpressions(t)
	for _, ac := range at.Columns {
		col, ok := t.Column(ac.ColumnName)
		if !ok {
			w.log.Debugf("column %s.%s is not in the live schema, skipping", t.Name, ac.ColumnName)
			continue
		}
		if _, dup := colIDs[col.Name]; dup {
			continue
		}
		id := store.NewID(store.PrefixColumnAnnotation)
		_, err := w.q.ExecContext(ctx,
			`INSERT INTO column_annotation
			   (id, table_annotation_id, column_name, data_type, is_nullable, default_value, check_expression, ordinal_position, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, tableID, col.Name, col.DataType, boolInt(col.IsNullable), col.DefaultValue,
			nullable(checks[col.Name]), col.Ordinal, nullable(ac.Description))
		if err != nil {
			return "", store.MapError(err, "failed to insert column annotation")
		}
		colIDs[col.Name] = id
		stats.columns++
	}

	for _, c := range t.Constraints {
		if err := w.writeConstraint(ctx, tableID, names.Of(t), names.Ref(t, c), c, colIDs, rels); err != nil {
			return "", err
		}
		stats.constraints++
	}

	for _, idx := range t.Indexes {
		written, err := w.writeIndex(ctx, tableID, idx, colIDs)
		if err != nil {
			return "", err
		}
		if written {
			stats.indexes++
		}
	}
	return tableID, nil
}

func (w *writer) writeConstraint(ctx context.Context, tableID, table, refTable string, c schema.ConstraintInfo,
	colIDs map[string]string, rels []RelationshipResponse) error {
	var description string
	if c.Type == schema.ForeignKey {
		description = relationshipDescription(rels, table, refTable, c)
	}

	id := store.NewID(store.PrefixConstraint)
	_, err := w.q.ExecContext(ctx,
		`INSERT INTO table_constraint
		   (id, table_annotation_id, constraint_type, name, description, expression, ref_table, on_update_action, on_delete_action)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, tableID, string(c.Type), c.Name, nullable(description), nullable(c.Expression),
		nullable(c.RefTable), nullable(c.OnUpdate), nullable(c.OnDelete))
	if err != nil {
		return store.MapError(err, "failed to insert constraint")
	}

	for pos, name := range c.Columns {
		colID, ok := colIDs[name]
		if !ok {
			continue
		}
		var ref sql.NullString
		if pos < len(c.RefColumns) {
			ref = nullable(c.RefColumns[pos])
		}
		_, err := w.q.ExecContext(ctx,
			`INSERT INTO constraint_column (id, constraint_id, column_annotation_id, position, referenced_column_name)
			 VALUES (?, ?, ?, ?, ?)`,
			store.NewID(store.PrefixConstraintColumn), id, colID, pos+1, ref)
		if err != nil {
			return store.MapError(err, "failed to insert constraint column")
		}
	}
	return nil
}

// writeIndex skips indexes none of whose columns were persisted.
func (w *writer) writeIndex(ctx context.Context, tableID string, idx schema.IndexInfo, colIDs map[string]string) (bool, error) {
	var ids []string
	for _, name := range idx.Columns {
		if id, ok := colIDs[name]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	id := store.NewID(store.PrefixIndex)
	_, err := w.q.ExecContext(ctx,
		`INSERT INTO index_annotation (id, table_annotation_id, name, is_unique) VALUES (?, ?, ?, ?)`,
		id, tableID, idx.Name, boolInt(idx.IsUnique))
	if err != nil {
		return false, store.MapError(err, "failed to insert index")
	}
	for pos, colID := range ids {
		_, err := w.q.ExecContext(ctx,
			`INSERT INTO index_column (id, index_id, column_annotation_id, position) VALUES (?, ?, ?, ?)`,
			store.NewID(store.PrefixIndexColumn), id, colID, pos+1)
		if err != nil {
			return false, store.MapError(err, "failed to insert index column")
		}
	}
	return true, nil
}

func (w *writer) link(ctx context.Context, profileID, rootID string) error {
	return profile.NewRepository(w.q).SetAnnotation(ctx, profileID, rootID)
}

// relationshipDescription finds the AI relationship matching a live FK.
func relationshipDescription(rels []RelationshipResponse, table, refTable string, fk schema.ConstraintInfo) string {
	for _, r := range rels {
		if r.FromTable == table && r.ToTable == refTable && equalFold(r.FromColumns, fk.Columns) {
			return r.Description
		}
	}
	return ""
}

// checkExpressions maps a column to the expression of a single-column CHECK.
func checkExpressions(t schema.TableInfo) map[string]string {
	out := map[string]string{}
	for _, c := range t.Constraints {
		if c.Type == schema.Check && len(c.Columns) == 1 {
			out[c.Columns[0]] = c.Expression
		}
	}
	return out
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
