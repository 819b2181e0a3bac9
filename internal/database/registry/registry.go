// Package registry wires every compiled-in driver into a database.Connector.
package registry

import (
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/mysql"
	"github.com/koustreak/qgenie/internal/database/oracle"
	"github.com/koustreak/qgenie/internal/database/postgres"
	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/database/sqlserver"
	"github.com/koustreak/qgenie/internal/dialect"
)

// Openers returns the opener table for all supported dialects.
func Openers() map[dialect.Type]database.Opener {
	return map[dialect.Type]database.Opener{
		dialect.PostgreSQL: postgres.Open,
		dialect.MySQL:      mysql.Open,
		dialect.MariaDB:    mysql.Open,
		dialect.Oracle:     oracle.Open,
		dialect.SQLServer:  sqlserver.Open,
		dialect.SQLite:     sqlite.Open,
	}
}

// NewConnector returns a Connector able to open every dialect.
func NewConnector(opts database.Options) *database.Connector {
	return database.NewConnector(Openers(), opts)
}
