// Package query runs user SQL against a target database, for real or as a
// rolled-back dry run, and records executions in the query history.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
)

// Kind tells whether a Result carries rows or an affected-row count.
type Kind string

const (
	KindSelect   Kind = "select"
	KindMutation Kind = "mutation"
)

const (
	modeExecute = "execute"
	modeTest    = "test"
)

// Connector opens one connection to a target database.
type Connector interface {
	Connect(ctx context.Context, args dialect.ConnectArgs) (database.Conn, error)
}

// Request is one statement to run.
type Request struct {
	SQL    string
	Params dialect.Params
	// Database overrides the profile's database name when set.
	Database string
	// ChatMessageID ties the history record to a chat message.
	ChatMessageID string
}

// Result is the outcome of a statement.
type Result struct {
	Kind         Kind     `json:"kind"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
}

// Executor runs statements. Each call opens and closes its own connection.
type Executor struct {
	connector Connector
	history   *History
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each execution, connect included.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMetrics records executions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an Executor. history may be nil to skip recording.
func NewExecutor(c Connector, history *History, log *logger.Logger, opts ...Option) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	e := &Executor{connector: c, history: history, log: log.Component("query")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req and commits. Every attempt, successful or not, is
// appended to the history after the target transaction has finished.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.run(ctx, req, false)

	e.observe(req, modeExecute, res, err, time.Since(start))
	e.record(ctx, req, err)
	return res, err
}

// ExecuteTest runs req inside a transaction that is always rolled back.
// Nothing is recorded in the history.
func (e *Executor) ExecuteTest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.run(ctx, req, true)

	e.observe(req, modeTest, res, err, time.Since(start))
	return res, err
}

func (e *Executor) run(ctx context.Context, req Request, dryRun bool) (res *Result, err error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "query text is empty").WithCode(errs.CodeNoValue)
	}
	if dryRun && HasTxControl(req.SQL) {
		return nil, errs.New(errs.ErrKindInvalidInput, "transaction control statements are not allowed in a test run").
			WithCode(errs.CodeInvalidParameter)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args, err := dialect.BuildConnectArgs(req.Params, req.Database, false)
	if err != nil {
		return nil, err
	}
	conn, err := e.connector.Connect(ctx, args)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, classify(err)
	}

	committed := false
	defer func() {
		// Rollback after Commit is a no-op, so a dry run and a failed real
		// run share the same cleanup.
		if dryRun || !committed {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil {
				e.log.WarnWith("rollback failed", rbErr, nil)
				if dryRun && err == nil {
					res = nil
					err = errs.Wrap(errs.ErrKindQueryFailed, "test run could not be rolled back", rbErr).
						WithCode(errs.CodeFailExecuteQuery)
				}
			}
		}
		if cerr := conn.Close(); cerr != nil {
			e.log.WarnWith("failed to close connection", cerr, nil)
		}
	}()

	res, err = execute(ctx, tx, req.SQL)
	if err != nil {
		return nil, classify(err)
	}

	if !dryRun {
		if err := tx.Commit(ctx); err != nil {
			return nil, classify(err)
		}
		committed = true
	}
	return res, nil
}

func execute(ctx context.Context, tx database.Tx, sql string) (*Result, error) {
	if IsSelect(sql) {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return nil, err
		}
		cols, values, err := database.ScanRows(rows)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindSelect, Columns: cols, Rows: values, RowsAffected: int64(len(values))}, nil
	}

	n, err := tx.Exec(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindMutation, RowsAffected: n}, nil
}

// classify keeps connection-level failures distinct and folds everything
// else into a query failure.
func classify(err error) error {
	switch errs.KindOf(err) {
	case errs.ErrKindConnectionFailed, errs.ErrKindTimeout, errs.ErrKindPermissionDenied:
		return err
	default:
		return errs.Wrap(errs.ErrKindQueryFailed, "query execution failed", err).WithCode(errs.CodeFailExecuteQuery)
	}
}

func (e *Executor) record(ctx context.Context, req Request, execErr error) {
	if e.history == nil || errs.IsInvalidInput(execErr) {
		return
	}
	rec := Record{
		ChatMessageID: req.ChatMessageID,
		QueryText:     req.SQL,
		DBType:        req.Params.Type,
		Success:       execErr == nil,
	}
	if execErr != nil {
		rec.ErrorMessage = execErr.Error()
	}
	if _, err := e.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		e.log.ErrorWith("failed to record query history", err, map[string]any{"db_type": string(req.Params.Type)})
	}
}

func (e *Executor) observe(req Request, mode string, res *Result, err error, d time.Duration) {
	log := e.log.With().Str("db_type", string(req.Params.Type)).Str("mode", mode).Logger()
	if err != nil {
		log.WarnWith("statement failed", err, map[string]any{"duration_ms": d.Milliseconds()})
		e.metrics.RecordQuery(string(req.Params.Type), mode, "", false, 0, d)
		return
	}
	log.InfoWith("statement executed", map[string]any{
		"kind":        string(res.Kind),
		"rows":        res.RowsAffected,
		"duration_ms": d.Milliseconds(),
	})
	e.metrics.RecordQuery(string(req.Params.Type), mode, string(res.Kind), true, res.RowsAffected, d)
}
