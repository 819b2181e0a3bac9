// Package annotation turns a live schema snapshot into AI-written
// descriptions, persists them as one tree in the store and reads the tree
// back either per table or as a nested DBMS → database → table hierarchy.
package annotation

import "time"

// Request is the payload sent to the annotation service.
type Request struct {
	DBMSType  string            `json:"dbms_type"`
	Databases []DatabaseRequest `json:"databases"`
}

type DatabaseRequest struct {
	DatabaseName  string         `json:"database_name"`
	Tables        []TableRequest `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

type TableRequest struct {
	TableName  string           `json:"table_name"`
	Columns    []ColumnRequest  `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
}

type ColumnRequest struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// Relationship is a foreign key expressed as ordered column lists.
type Relationship struct {
	FromTable   string   `json:"from_table"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
}

// Response mirrors Request with a description at every level.
type Response struct {
	DBMSType  string             `json:"dbms_type"`
	Databases []DatabaseResponse `json:"databases"`
}

type DatabaseResponse struct {
	DatabaseName  string                 `json:"database_name"`
	Description   string                 `json:"description"`
	Tables        []TableResponse        `json:"tables"`
	Relationships []RelationshipResponse `json:"relationships"`
}

type TableResponse struct {
	TableName   string           `json:"table_name"`
	Description string           `json:"description"`
	Columns     []ColumnResponse `json:"columns"`
}

type ColumnResponse struct {
	ColumnName  string `json:"column_name"`
	DataType    string `json:"data_type"`
	Description string `json:"description"`
}

type RelationshipResponse struct {
	FromTable   string   `json:"from_table"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
	Description string   `json:"description"`
}

// FullAnnotation is the per-table detail view of one database annotation.
type FullAnnotation struct {
	ID           string        `json:"id" yaml:"id"`
	DBProfileID  string        `json:"db_profile_id" yaml:"db_profile_id"`
	DatabaseName string        `json:"database_name" yaml:"database_name"`
	Description  string        `json:"description" yaml:"description"`
	Tables       []TableDetail `json:"tables" yaml:"tables"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at"`
}

type TableDetail struct {
	ID          string             `json:"id" yaml:"id"`
	TableName   string             `json:"table_name" yaml:"table_name"`
	Description string             `json:"description" yaml:"description"`
	Columns     []ColumnDetail     `json:"columns" yaml:"columns"`
	Constraints []ConstraintDetail `json:"constraints" yaml:"constraints"`
	Indexes     []IndexDetail      `json:"indexes" yaml:"indexes"`
}

type ColumnDetail struct {
	ID              string  `json:"id" yaml:"id"`
	ColumnName      string  `json:"column_name" yaml:"column_name"`
	Description     string  `json:"description" yaml:"description"`
	DataType        string  `json:"data_type" yaml:"data_type"`
	IsNullable      bool    `json:"is_nullable" yaml:"is_nullable"`
	DefaultValue    *string `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	OrdinalPosition int     `json:"ordinal_position" yaml:"ordinal_position"`
}

type ConstraintDetail struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Columns     []string `json:"columns" yaml:"columns"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Expression  string   `json:"expression,omitempty" yaml:"expression,omitempty"`
	RefTable    string   `json:"ref_table,omitempty" yaml:"ref_table,omitempty"`
	RefColumns  []string `json:"ref_columns,omitempty" yaml:"ref_columns,omitempty"`
}

type IndexDetail struct {
	Name     string   `json:"name" yaml:"name"`
	Columns  []string `json:"columns" yaml:"columns"`
	IsUnique bool     `json:"is_unique" yaml:"is_unique"`
}

// Tree is the hierarchical view of the annotation linked to one profile.
type Tree struct {
	DBMSType     string         `json:"dbms_type"`
	Databases    []TreeDatabase `json:"databases"`
	AnnotationID string         `json:"annotation_id"`
	DBProfileID  string         `json:"db_profile_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type TreeDatabase struct {
	DBName        string             `json:"db_name"`
	Description   string             `json:"description"`
	Tables        []TreeTable        `json:"tables"`
	Relationships []TreeRelationship `json:"relationships"`
}

type TreeTable struct {
	TableName   string       `json:"table_name"`
	Description string       `json:"description"`
	Columns     []TreeColumn `json:"columns"`
}

type TreeColumn struct {
	ColumnName  string `json:"column_name"`
	Description string `json:"description"`
	DataType    string `json:"data_type"`
}

type TreeRelationship struct {
	FromTable   string   `json:"from_table"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
	Description string   `json:"description"`
}
