package schema

// ConstraintType is the kind of a table constraint.
type ConstraintType string

const (
	PrimaryKey ConstraintType = "PRIMARY KEY"
	ForeignKey ConstraintType = "FOREIGN KEY"
	Unique     ConstraintType = "UNIQUE"
	Check      ConstraintType = "CHECK"
)

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"` // dialect-native, with length/precision where known
	IsNullable   bool    `json:"is_nullable"`
	DefaultValue *string `json:"default_value,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	Ordinal      int     `json:"ordinal_position"`
	Comment      *string `json:"comment,omitempty"`
}

// ConstraintInfo describes a constraint and its ordered columns.
type ConstraintInfo struct {
	Name    string         `json:"name"`
	Type    ConstraintType `json:"type"`
	Columns []string       `json:"columns"`

	// Foreign keys only.
	RefTable   string   `json:"referenced_table,omitempty"`
	RefColumns []string `json:"referenced_columns,omitempty"`
	OnUpdate   string   `json:"on_update,omitempty"`
	OnDelete   string   `json:"on_delete,omitempty"`

	// Check constraints only.
	Expression string `json:"check_expression,omitempty"`
}

// IndexInfo describes a secondary index. Primary-key indexes are never listed.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// TableInfo describes a table with its columns, constraints and indexes.
type TableInfo struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Columns     []ColumnInfo     `json:"columns"`
	Constraints []ConstraintInfo `json:"constraints"`
	Indexes     []IndexInfo      `json:"indexes"`
	Comment     *string          `json:"comment,omitempty"`
}

// SchemaDetail groups the tables of one schema.
type SchemaDetail struct {
	Name   string      `json:"schema_name"`
	Tables []TableInfo `json:"tables"`
}

// DatabaseDetail is one database of a hierarchical scan.
type DatabaseDetail struct {
	Name    string         `json:"db_name"`
	Type    string         `json:"db_type"`
	Schemas []SchemaDetail `json:"schemas"`
}

// ForeignKeys returns the foreign-key constraints of t.
func (t TableInfo) ForeignKeys() []ConstraintInfo {
	var out []ConstraintInfo
	for _, c := range t.Constraints {
		if c.Type == ForeignKey {
			out = append(out, c)
		}
	}
	return out
}

// Column looks up a column by name.
func (t TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Key identifies the table within a scan: schema.name, or the bare name when
// the table has no schema.
func (t TableInfo) Key() string {
	return qualify(t.Schema, t.Name)
}

func qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// Names gives each table of a scan the name shown outside the scanner. A
// table keeps its bare name unless another schema has a table of the same
// name, in which case both become schema.name.
type Names struct {
	display map[string]string
}

// NewNames assigns display names to tables.
func NewNames(tables []TableInfo) Names {
	seen := make(map[string]int, len(tables))
	for _, t := range tables {
		seen[t.Name]++
	}
	display := make(map[string]string, len(tables))
	for _, t := range tables {
		if seen[t.Name] > 1 {
			display[t.Key()] = t.Key()
		} else {
			display[t.Key()] = t.Name
		}
	}
	return Names{display: display}
}

// Of returns the display name of t.
func (n Names) Of(t TableInfo) string {
	if name, ok := n.display[t.Key()]; ok {
		return name
	}
	return t.Name
}

// Ref returns the display name of the table fk points at. Foreign keys carry
// only the bare referenced name, so a table in from's own schema wins.
func (n Names) Ref(from TableInfo, fk ConstraintInfo) string {
	if name, ok := n.display[qualify(from.Schema, fk.RefTable)]; ok {
		return name
	}
	if name, ok := n.display[fk.RefTable]; ok {
		return name
	}
	return fk.RefTable
}
