// Package sqlite opens SQLite database files through the pure-Go
// modernc.org/sqlite driver. It serves both user target databases and the
// embedded application store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultBusyTimeout is how long a statement waits on a locked file.
const DefaultBusyTimeout = 10 * time.Second

// Open connects to an existing SQLite file named by the "database" argument.
// Unlike the library default it never creates a missing file.
func Open(ctx context.Context, args dialect.ConnectArgs, _ database.Options) (database.Conn, error) {
	path := args.Get(dialect.KeyDatabase)
	if path == "" {
		return nil, errs.New(errs.ErrKindConnectionFailed, "sqlite file path is empty")
	}
	if path != MemoryPath {
		if _, err := os.Stat(path); err != nil {
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("sqlite file %q is not accessible", path), err)
		}
	}

	db, err := OpenDB(path, DefaultBusyTimeout)
	if err != nil {
		return nil, err
	}
	return database.OpenSQL(ctx, db, dialect.SQLite, MapError)
}

// OpenDB returns a *sql.DB for path with foreign keys enforced and the given
// busy timeout. The file is created if missing.
func OpenDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path, busyTimeout))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open sqlite file", err)
	}
	return db, nil
}

// DSN renders the driver data source name with connection pragmas.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
}

// MapError translates modernc sqlite errors into *errs.Error. Busy and
// locked results become ErrKindStoreBusy so callers can retry.
func MapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	if IsBusy(err) {
		return errs.Wrap(errs.ErrKindStoreBusy, msg, err).WithCode(errs.CodeStoreBusy)
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
