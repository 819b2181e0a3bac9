// Package mysql opens connections to MySQL and MariaDB through
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Open connects to MySQL or MariaDB and pings.
func Open(ctx context.Context, args dialect.ConnectArgs, opts database.Options) (database.Conn, error) {
	db, err := sql.Open("mysql", buildConfig(args, opts).FormatDSN())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	return database.OpenSQL(ctx, db, args.Type, mapError)
}

func buildConfig(args dialect.ConnectArgs, opts database.Options) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = args.Get(dialect.KeyUser)
	cfg.Passwd = args.Get(dialect.KeyPassword)
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(args.Get(dialect.KeyHost), args.Get(dialect.KeyPort))
	cfg.DBName = args.Get(dialect.KeyDatabase)
	cfg.ParseTime = true
	cfg.Timeout = opts.ConnectTimeout
	if opts.ApplicationName != "" {
		cfg.ConnectionAttributes = "program_name:" + opts.ApplicationName
	}
	return cfg
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1046, 1049, 1040, 1203, 1129, 1130:
		return errs.ErrKindConnectionFailed
	case 1142, 1143, 1227:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
