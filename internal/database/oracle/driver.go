// Package oracle opens connections to Oracle through sijms/go-ora.
package oracle

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Open connects to Oracle and pings. A "mode=SYSDBA" argument requests the
// administrator privilege.
func Open(ctx context.Context, args dialect.ConnectArgs, opts database.Options) (database.Conn, error) {
	db, err := sql.Open("oracle", BuildURL(args, opts))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid connection parameters", err)
	}
	return database.OpenSQL(ctx, db, dialect.Oracle, mapError)
}

// BuildURL renders the go-ora connection URL.
func BuildURL(args dialect.ConnectArgs, opts database.Options) string {
	urlOptions := map[string]string{}
	if args.Get(dialect.KeyMode) == dialect.ModeSYSDBA {
		urlOptions["DBA PRIVILEGE"] = "SYSDBA"
	}
	if opts.ConnectTimeout > 0 {
		urlOptions["CONNECTION TIMEOUT"] = strconv.Itoa(int(opts.ConnectTimeout.Seconds()))
	}
	if opts.ApplicationName != "" {
		urlOptions["PROGRAM"] = opts.ApplicationName
	}
	return go_ora.BuildUrl(
		args.Get(dialect.KeyHost),
		args.Port(),
		args.Get(dialect.KeyServiceName),
		args.Get(dialect.KeyUser),
		args.Get(dialect.KeyPassword),
		urlOptions,
	)
}

var oraCode = regexp.MustCompile(`ORA-(\d{5})`)

// mapError translates go-ora errors into *errs.Error by their ORA- code.
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

	m := oraCode.FindStringSubmatch(err.Error())
	if m == nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	code, _ := strconv.Atoi(m[1])
	return errs.Wrap(classifyOraCode(code), msg, err)
}

// classifyOraCode maps ORA- numbers to ErrKind.
func classifyOraCode(code int) errs.ErrKind {
	switch {
	case code == 1017, code == 28000, code == 28001, code == 1034, code == 1033, code == 1005:
		return errs.ErrKindConnectionFailed
	case code >= 12500 && code <= 12599:
		// TNS listener and network errors
		return errs.ErrKindConnectionFailed
	case code == 1031, code == 1749:
		return errs.ErrKindPermissionDenied
	case code == 1013:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
