// Package sqlserver opens connections to Microsoft SQL Server through
// denisenkom/go-mssqldb.
package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Open connects to SQL Server using the single connection-string argument.
func Open(ctx context.Context, args dialect.ConnectArgs, opts database.Options) (database.Conn, error) {
	dsn, err := ToURL(args.Get(dialect.KeyConnectionString), opts)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid connection string", err)
	}
	return database.OpenSQL(ctx, db, dialect.SQLServer, mapError)
}

// ToURL converts a DRIVER=…;SERVER=host,port;UID=…;PWD=…;DATABASE=…; string
// into the sqlserver:// URL go-mssqldb expects.
func ToURL(connString string, opts database.Options) (string, error) {
	kv := dialect.ParseConnString(connString)
	server := kv["SERVER"]
	if server == "" {
		return "", errs.New(errs.ErrKindConnectionFailed, "connection string has no SERVER")
	}

	host, port, _ := strings.Cut(server, ",")
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", errs.Wrap(errs.ErrKindConnectionFailed, "invalid SERVER port", err)
		}
		host = host + ":" + port
	}

	q := url.Values{}
	if db := kv["DATABASE"]; db != "" {
		q.Set("database", db)
	}
	if opts.ConnectTimeout > 0 {
		q.Set("dial timeout", strconv.Itoa(int(opts.ConnectTimeout.Seconds())))
	}
	if opts.ApplicationName != "" {
		q.Set("app name", opts.ApplicationName)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(kv["UID"], kv["PWD"]),
		Host:     host,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// mapError translates go-mssqldb errors into *errs.Error.
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

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return errs.Wrap(classifyNumber(msErr.Number), fmt.Sprintf("%s: %s", msg, msErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyNumber maps SQL Server error numbers to ErrKind.
func classifyNumber(n int32) errs.ErrKind {
	switch n {
	case 18456, 18452, 4060, 4064, 18486, 18487, 18488:
		return errs.ErrKindConnectionFailed
	case 229, 230, 262, 300:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
