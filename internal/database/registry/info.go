package registry

import (
	"runtime"
	"runtime/debug"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
)

// driverModules maps each dialect to the Go module implementing its driver.
var driverModules = map[dialect.Type]string{
	dialect.PostgreSQL: "github.com/jackc/pgx/v5",
	dialect.MySQL:      "github.com/go-sql-driver/mysql",
	dialect.MariaDB:    "github.com/go-sql-driver/mysql",
	dialect.Oracle:     "github.com/sijms/go-ora/v2",
	dialect.SQLServer:  "github.com/denisenkom/go-mssqldb",
	dialect.SQLite:     "modernc.org/sqlite",
}

// DriverInfo describes the driver compiled in for one dialect.
type DriverInfo struct {
	DBType      dialect.Type `json:"db_type"`
	DriverName  string       `json:"driver_name"`
	Module      string       `json:"module"`
	Version     string       `json:"version"`
	Available   bool         `json:"available"`
	DefaultPort int          `json:"default_port,omitempty"`
	Platform    string       `json:"platform"`
}

// Describe reports the driver behind t and whether c can open it.
func Describe(c *database.Connector, t dialect.Type) (DriverInfo, error) {
	spec, err := dialect.Lookup(t)
	if err != nil {
		return DriverInfo{}, err
	}
	module := driverModules[t]
	return DriverInfo{
		DBType:      t,
		DriverName:  spec.DriverName,
		Module:      module,
		Version:     moduleVersion(module),
		Available:   c.Supports(t),
		DefaultPort: spec.DefaultPort,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return "unknown"
}
