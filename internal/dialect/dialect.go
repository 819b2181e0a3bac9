// Package dialect is the registry of supported database products: what each
// one is called, how its connection arguments are shaped and how its SQL
// placeholders are written. It holds no state and opens no connections.
package dialect

import (
	"fmt"
	"strings"

	"github.com/koustreak/qgenie/internal/errs"
)

// Type identifies a database product.
type Type string

const (
	PostgreSQL Type = "postgresql"
	MySQL      Type = "mysql"
	MariaDB    Type = "mariadb"
	Oracle     Type = "oracle"
	SQLServer  Type = "sqlserver"
	SQLite     Type = "sqlite"
)

// Spec describes one registered dialect.
type Spec struct {
	Type Type

	// DriverName is the database/sql (or pgx) driver the connector opens.
	DriverName string

	DefaultPort int

	// DatabaseKey is the connect-argument key carrying the database name.
	DatabaseKey string

	// Required lists profile fields that must be non-blank.
	Required []string

	// DatabasesQuery lists databases on the server. Empty when the dialect
	// has a single implicit database (SQLite, SQL Server handled natively).
	DatabasesQuery string
}

var registry = map[Type]Spec{
	PostgreSQL: {
		Type:           PostgreSQL,
		DriverName:     "pgx",
		DefaultPort:    5432,
		DatabaseKey:    KeyDBName,
		Required:       []string{"host", "port", "username", "password"},
		DatabasesQuery: "SELECT datname FROM pg_database WHERE datistemplate = false",
	},
	MySQL: {
		Type:           MySQL,
		DriverName:     "mysql",
		DefaultPort:    3306,
		DatabaseKey:    KeyDatabase,
		Required:       []string{"host", "port", "username", "password"},
		DatabasesQuery: "SHOW DATABASES",
	},
	MariaDB: {
		Type:           MariaDB,
		DriverName:     "mysql",
		DefaultPort:    3306,
		DatabaseKey:    KeyDatabase,
		Required:       []string{"host", "port", "username", "password"},
		DatabasesQuery: "SHOW DATABASES",
	},
	Oracle: {
		Type:           Oracle,
		DriverName:     "oracle",
		DefaultPort:    1521,
		DatabaseKey:    KeyServiceName,
		Required:       []string{"host", "port", "username", "password", "name"},
		DatabasesQuery: "SELECT global_name FROM global_name",
	},
	SQLServer: {
		Type:           SQLServer,
		DriverName:     "sqlserver",
		DefaultPort:    1433,
		DatabaseKey:    "DATABASE", // ODBC attribute name
		Required:       []string{"host", "port", "username", "password"},
		DatabasesQuery: "SELECT name FROM sys.databases WHERE database_id > 4",
	},
	SQLite: {
		Type:        SQLite,
		DriverName:  "sqlite",
		DatabaseKey: KeyDatabase,
		Required:    []string{"name"},
	},
}

var aliases = map[string]Type{
	"postgres":  PostgreSQL,
	"pg":        PostgreSQL,
	"mssql":     SQLServer,
	"sqlite3":   SQLite,
	"oracledb":  Oracle,
	"cx_oracle": Oracle,
}

// Parse resolves a user-supplied type name, case-insensitively.
func Parse(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "database type is required").WithCode(errs.CodeNoDBDriver)
	}
	if t, ok := aliases[name]; ok {
		return t, nil
	}
	if _, ok := registry[Type(name)]; ok {
		return Type(name), nil
	}
	return "", errs.Newf(errs.ErrKindUnsupportedDatabaseType, "unsupported database type %q", s).
		WithCode(errs.CodeInvalidDBDriver)
}

// Lookup returns the registered Spec for t.
func Lookup(t Type) (Spec, error) {
	spec, ok := registry[t]
	if !ok {
		return Spec{}, errs.Newf(errs.ErrKindUnsupportedDatabaseType, "unsupported database type %q", string(t)).
			WithCode(errs.CodeInvalidDBDriver)
	}
	return spec, nil
}

// Types returns every registered dialect in a stable order.
func Types() []Type {
	return []Type{PostgreSQL, MySQL, MariaDB, Oracle, SQLServer, SQLite}
}

// QuoteIdent quotes a single identifier for the dialect.
func (s Spec) QuoteIdent(name string) string {
	switch s.Type {
	case MySQL, MariaDB:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QualifiedTable quotes schema.table, dropping the schema when empty.
func (s Spec) QualifiedTable(schema, table string) string {
	if schema == "" {
		return s.QuoteIdent(table)
	}
	return s.QuoteIdent(schema) + "." + s.QuoteIdent(table)
}

// LimitQuery returns a query selecting at most limit rows from a table.
func (s Spec) LimitQuery(schema, table string, limit int) string {
	qualified := s.QualifiedTable(schema, table)
	switch s.Type {
	case Oracle:
		return fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", qualified, limit)
	case SQLServer:
		return fmt.Sprintf("SELECT TOP %d * FROM %s", limit, qualified)
	default:
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualified, limit)
	}
}
