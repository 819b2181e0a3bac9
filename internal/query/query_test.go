package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/qgenie/internal/chat"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
	"github.com/koustreak/qgenie/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSelect(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"plain", "SELECT 1", true},
		{"comment line first", "  -- comment\nselect 1", true},
		{"insert", "insert into t values (1)", false},
		{"any segment", "insert into t values (1); SeLeCt * from t", true},
		{"only comments", "-- select 1", false},
		{"leading whitespace", "\n\t  select now()", true},
		{"with cte", "WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"update", "UPDATE t SET a = 1", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSelect(tt.sql))
		})
	}
}

func TestHasTxControl(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"plain insert", "INSERT INTO t VALUES (1)", false},
		{"trailing commit", "INSERT INTO t VALUES (1); COMMIT", true},
		{"end", "update t set a = 1;\nend;", true},
		{"begin first", "BEGIN; DELETE FROM t", true},
		{"start transaction", "start transaction; select 1", true},
		{"rollback to savepoint", "select 1; ROLLBACK TO SAVEPOINT s1", true},
		{"release", "release savepoint s1", true},
		{"commented commit", "select 1; -- commit", false},
		{"column named end", "SELECT begin_at, end_at FROM t", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasTxControl(tt.sql))
		})
	}
}

func BenchmarkIsSelect(b *testing.B) {
	sql := "-- fetch orders\n-- for the dashboard\nSELECT id, total FROM orders WHERE total > 10; UPDATE x SET y = 1"
	for i := 0; i < b.N; i++ {
		IsSelect(sql)
	}
}

type fixture struct {
	exec    *Executor
	history *History
	metrics *metrics.Metrics
	target  dialect.Params
	tabID   string
	msgID   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	targetPath := filepath.Join(dir, "target.sqlite")
	db, err := sqlite.OpenDB(targetPath, time.Second)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (label) VALUES ('a'), ('b')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := store.Open(ctx, store.Options{Path: filepath.Join(dir, "store.sqlite")}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	chats := chat.NewRepository(s.DB())
	tab, err := chats.CreateTab(ctx, "t")
	require.NoError(t, err)
	msg, err := chats.AddMessage(ctx, tab.ID, chat.SenderUser, "count items")
	require.NoError(t, err)

	m := metrics.New()
	h := NewHistory(s.DB())
	exec := NewExecutor(registry.NewConnector(database.DefaultOptions()), h, logger.Nop(),
		WithTimeout(5*time.Second), WithMetrics(m))

	return fixture{
		exec:    exec,
		history: h,
		metrics: m,
		target:  dialect.Params{Type: dialect.SQLite, Name: targetPath},
		tabID:   tab.ID,
		msgID:   msg.ID,
	}
}

func (f fixture) count(t *testing.T) int64 {
	t.Helper()
	res, err := f.exec.ExecuteTest(context.Background(), Request{SQL: "SELECT COUNT(*) AS n FROM items", Params: f.target})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	return res.Rows[0][0].(int64)
}

func TestExecuteTest_NeverCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.exec.ExecuteTest(ctx, Request{SQL: "INSERT INTO items (label) VALUES ('dry')", Params: f.target})
	require.NoError(t, err)
	assert.Equal(t, KindMutation, res.Kind)
	assert.Equal(t, int64(1), res.RowsAffected)

	got, err := f.exec.Execute(ctx, Request{SQL: "SELECT COUNT(*) FROM items", Params: f.target})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Rows[0][0])
}

func TestExecuteTest_RejectsTransactionControl(t *testing.T) {
	f := newFixture(t)

	for _, sql := range []string{
		"INSERT INTO items (label) VALUES ('leak'); COMMIT",
		"INSERT INTO items (label) VALUES ('leak'); END",
		"COMMIT; INSERT INTO items (label) VALUES ('leak')",
	} {
		_, err := f.exec.ExecuteTest(context.Background(), Request{SQL: sql, Params: f.target})
		require.Error(t, err, sql)
		assert.Equal(t, errs.CodeInvalidParameter, errs.CodeOf(err))
	}
	assert.Equal(t, int64(2), f.count(t))
}

type stubTx struct {
	rollbackErr error
}

func (stubTx) Query(context.Context, string, ...any) (database.Rows, error) { return nil, nil }
func (stubTx) Exec(context.Context, string, ...any) (int64, error)          { return 1, nil }
func (stubTx) Commit(context.Context) error                                 { return nil }
func (tx stubTx) Rollback(context.Context) error                            { return tx.rollbackErr }

type stubConn struct {
	database.Conn
	tx stubTx
}

func (c stubConn) Begin(context.Context) (database.Tx, error) { return c.tx, nil }
func (stubConn) Close() error                                 { return nil }

type stubConnector struct{ conn stubConn }

func (c stubConnector) Connect(context.Context, dialect.ConnectArgs) (database.Conn, error) {
	return c.conn, nil
}

func TestExecuteTest_FailedRollbackIsAnError(t *testing.T) {
	broken := stubConnector{conn: stubConn{tx: stubTx{rollbackErr: errors.New("connection reset")}}}
	exec := NewExecutor(broken, nil, logger.Nop())
	req := Request{SQL: "DELETE FROM items", Params: dialect.Params{Type: dialect.SQLite, Name: "target.sqlite"}}

	res, err := exec.ExecuteTest(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errs.CodeFailExecuteQuery, errs.CodeOf(err))
	assert.ErrorContains(t, err, "connection reset")

	// A committed real run does not roll back, so the stub error never surfaces.
	res, err = exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestExecute_CommitsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.exec.Execute(ctx, Request{SQL: "INSERT INTO items (label) VALUES ('c')", Params: f.target, ChatMessageID: f.msgID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(3), f.count(t))

	sel, err := f.exec.Execute(ctx, Request{SQL: "-- all\nSELECT id, label FROM items ORDER BY id", Params: f.target, ChatMessageID: f.msgID})
	require.NoError(t, err)
	assert.Equal(t, KindSelect, sel.Kind)
	assert.Equal(t, []string{"id", "label"}, sel.Columns)
	assert.Len(t, sel.Rows, 3)

	recs, err := f.history.Latest(ctx, f.tabID, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.Success)
		assert.Equal(t, dialect.SQLite, r.DBType)
		assert.Equal(t, f.msgID, r.ChatMessageID)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.QueryTotal.WithLabelValues("sqlite", "execute", "success")))
}

func TestExecute_FailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, Request{SQL: "INSERT INTO missing VALUES (1)", Params: f.target, ChatMessageID: f.msgID})
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, errs.CodeFailExecuteQuery, errs.CodeOf(err))

	recs, err := f.history.Latest(ctx, f.tabID, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Success)
	assert.Contains(t, recs[0].ErrorMessage, "missing")
}

func TestExecute_ConnectionFailure(t *testing.T) {
	f := newFixture(t)
	params := dialect.Params{Type: dialect.SQLite, Name: filepath.Join(t.TempDir(), "nope.sqlite")}

	_, err := f.exec.Execute(context.Background(), Request{SQL: "SELECT 1", Params: params})
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestExecute_EmptySQL(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec.Execute(context.Background(), Request{SQL: "  ", Params: f.target, ChatMessageID: f.msgID})
	assert.Equal(t, errs.CodeNoValue, errs.CodeOf(err))

	recs, err := f.history.Latest(context.Background(), f.tabID, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHistory_LatestLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := f.history.Append(ctx, Record{ChatMessageID: f.msgID, QueryText: "SELECT 1", DBType: dialect.SQLite, Success: true})
		require.NoError(t, err)
	}
	recs, err := f.history.Latest(ctx, f.tabID, 0)
	require.NoError(t, err)
	assert.Len(t, recs, DefaultHistoryLimit)
}
