// Package store is the embedded SQLite store that holds connection profiles,
// AI credentials, chat history, query history and the annotation tree.
//
// The store is a single file opened with foreign keys enforced. Open brings
// its schema up to date: missing tables are created, tables whose column set
// drifted are rebuilt with their common columns copied over, and
// updated_at triggers are installed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
)

// Options configures Open.
type Options struct {
	Path        string
	BusyTimeout time.Duration
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx, so repository
// calls run the same inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the handle to the embedded database. It is safe for concurrent
// use; SQLite serializes writers.
type Store struct {
	db   *sql.DB
	path string
	log  *logger.Logger
}

// Open opens (creating if needed) the store file and migrates its schema.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("store")

	if opts.Path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "store path is empty").WithCode(errs.CodeNoValue)
	}
	if opts.Path != sqlite.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create store directory", err)
		}
	}

	db, err := sqlite.OpenDB(opts.Path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	// One writer connection: SQLite serializes writes anyway and a single
	// connection keeps per-connection pragmas consistent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: opts.Path, log: log}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.With().Str("path", opts.Path).Logger().Info("store ready")
	return s, nil
}

// DB exposes the underlying handle for repositories.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside one transaction. fn's error, or a failed commit,
// rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MapError(err, "begin transaction failed")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.WarnWith("rollback failed", rbErr, nil)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return MapError(err, "commit failed")
	}
	return nil
}

// MapError translates store errors. Lock contention becomes
// errs.ErrKindStoreBusy so callers can retry.
func MapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return sqlite.MapError(err, msg)
}
