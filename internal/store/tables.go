package store

import (
	"fmt"
	"strings"
)

type column struct {
	name string
	decl string
}

// table is the expected definition of one store table.
type table struct {
	name        string
	columns     []column
	foreignKeys []string
}

const (
	idColumn      = "VARCHAR(64) PRIMARY KEY NOT NULL"
	timestampDecl = "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"
)

func withTimestamps(cols ...column) []column {
	return append(cols,
		column{"created_at", timestampDecl},
		column{"updated_at", timestampDecl},
	)
}

// tables lists every store table in creation order.
var tables = []table{
	{
		name: "db_profile",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"type", "VARCHAR(32) NOT NULL"},
			column{"host", "VARCHAR(255)"},
			column{"port", "INTEGER"},
			column{"name", "VARCHAR(255)"},
			column{"username", "VARCHAR(128)"},
			column{"password", "TEXT"},
			column{"view_name", "VARCHAR(64)"},
			column{"annotation_id", "VARCHAR(64)"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (annotation_id) REFERENCES database_annotation(id) ON DELETE SET NULL",
		},
	},
	{
		name: "ai_credential",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"service_name", "VARCHAR(32) NOT NULL UNIQUE"},
			column{"api_key", "TEXT NOT NULL"},
		),
	},
	{
		name: "chat_tab",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"name", "VARCHAR(128)"},
		),
	},
	{
		name: "chat_message",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"chat_tab_id", "VARCHAR(64) NOT NULL"},
			column{"sender", "VARCHAR(1) NOT NULL"},
			column{"message", "TEXT NOT NULL"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (chat_tab_id) REFERENCES chat_tab(id) ON DELETE CASCADE",
		},
	},
	{
		name: "query_history",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"chat_message_id", "VARCHAR(64)"},
			column{"query_text", "TEXT NOT NULL"},
			column{"db_type", "VARCHAR(32)"},
			column{"is_success", "VARCHAR(1) NOT NULL"},
			column{"error_message", "TEXT"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (chat_message_id) REFERENCES chat_message(id) ON DELETE CASCADE",
		},
	},
	{
		name: "database_annotation",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"db_profile_id", "VARCHAR(64) NOT NULL"},
			column{"database_name", "VARCHAR(255) NOT NULL"},
			column{"description", "TEXT"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (db_profile_id) REFERENCES db_profile(id) ON DELETE CASCADE",
		},
	},
	{
		name: "table_annotation",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"database_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"table_name", "VARCHAR(255) NOT NULL"},
			column{"description", "TEXT"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (database_annotation_id) REFERENCES database_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "column_annotation",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"table_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"column_name", "VARCHAR(255) NOT NULL"},
			column{"data_type", "VARCHAR(64)"},
			column{"is_nullable", "INTEGER NOT NULL DEFAULT 1"},
			column{"default_value", "TEXT"},
			column{"check_expression", "TEXT"},
			column{"ordinal_position", "INTEGER"},
			column{"description", "TEXT"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (table_annotation_id) REFERENCES table_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "table_relationship",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"database_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"from_table_id", "VARCHAR(64) NOT NULL"},
			column{"to_table_id", "VARCHAR(64) NOT NULL"},
			column{"relationship_type", "VARCHAR(32) NOT NULL"},
			column{"description", "TEXT"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (database_annotation_id) REFERENCES database_annotation(id) ON DELETE CASCADE",
			"FOREIGN KEY (from_table_id) REFERENCES table_annotation(id) ON DELETE CASCADE",
			"FOREIGN KEY (to_table_id) REFERENCES table_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "table_constraint",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"table_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"constraint_type", "VARCHAR(16) NOT NULL"},
			column{"name", "VARCHAR(255)"},
			column{"description", "TEXT"},
			column{"expression", "TEXT"},
			column{"ref_table", "VARCHAR(255)"},
			column{"on_update_action", "VARCHAR(16)"},
			column{"on_delete_action", "VARCHAR(16)"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (table_annotation_id) REFERENCES table_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "constraint_column",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"constraint_id", "VARCHAR(64) NOT NULL"},
			column{"column_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"position", "INTEGER"},
			column{"referenced_column_name", "VARCHAR(255)"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (constraint_id) REFERENCES table_constraint(id) ON DELETE CASCADE",
			"FOREIGN KEY (column_annotation_id) REFERENCES column_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "index_annotation",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"table_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"name", "VARCHAR(255)"},
			column{"is_unique", "INTEGER NOT NULL DEFAULT 0"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (table_annotation_id) REFERENCES table_annotation(id) ON DELETE CASCADE",
		},
	},
	{
		name: "index_column",
		columns: withTimestamps(
			column{"id", idColumn},
			column{"index_id", "VARCHAR(64) NOT NULL"},
			column{"column_annotation_id", "VARCHAR(64) NOT NULL"},
			column{"position", "INTEGER"},
		),
		foreignKeys: []string{
			"FOREIGN KEY (index_id) REFERENCES index_annotation(id) ON DELETE CASCADE",
			"FOREIGN KEY (column_annotation_id) REFERENCES column_annotation(id) ON DELETE CASCADE",
		},
	},
}

// createSQL renders CREATE TABLE for t under the given name.
func (t table) createSQL(name string, ifNotExists bool) string {
	parts := make([]string, 0, len(t.columns)+len(t.foreignKeys))
	for _, c := range t.columns {
		parts = append(parts, quote(c.name)+" "+c.decl)
	}
	parts = append(parts, t.foreignKeys...)

	guard := ""
	if ifNotExists {
		guard = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE TABLE %s%s (\n\t%s\n)", guard, quote(name), strings.Join(parts, ",\n\t"))
}

// signature maps column name to the first token of its declared type,
// upper-cased. Two tables with equal signatures need no migration.
func (t table) signature() map[string]string {
	sig := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		sig[c.name] = firstToken(c.decl)
	}
	return sig
}

func (t table) triggerSQL() string {
	return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s
AFTER UPDATE ON %[2]s FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
	UPDATE %[2]s SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END`, quote(t.triggerName()), quote(t.name))
}

func (t table) triggerName() string {
	return "update_" + t.name + "_updated_at"
}

func firstToken(decl string) string {
	fields := strings.Fields(decl)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
