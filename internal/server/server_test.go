package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/qgenie/internal/annotation"
	"github.com/koustreak/qgenie/internal/chat"
	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/database/sqlite"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/query"
	"github.com/koustreak/qgenie/internal/schema"
	"github.com/koustreak/qgenie/internal/store"
)

type mockAI struct{}

func (mockAI) Annotate(_ context.Context, req *annotation.Request) (*annotation.Response, error) {
	return annotation.MockResponse(req), nil
}

func targetDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.sqlite")
	db, err := sqlite.OpenDB(path, time.Second)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range []string{
		`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`,
		`INSERT INTO items (label) VALUES ('a'), ('b')`,
	} {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "store.sqlite")}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	key, err := credential.GenerateKey()
	require.NoError(t, err)
	c, err := credential.NewCipher(key)
	require.NoError(t, err)

	connector := registry.NewConnector(database.DefaultOptions())
	m := metrics.New()
	profiles := profile.NewService(profile.NewRepository(st.DB()), c, connector, logger.Nop())
	scanner := schema.NewScanner(connector, logger.Nop())
	history := query.NewHistory(st.DB())
	chats := chat.NewRepository(st.DB())

	srv := New(Deps{
		Profiles:    profiles,
		Schemas:     scanner,
		Annotations: annotation.NewService(profiles, scanner, mockAI{}, st, m, logger.Nop()),
		Queries:     query.NewExecutor(connector, history, logger.Nop(), query.WithMetrics(m)),
		History:     history,
		Credentials: credential.NewVault(st.DB(), c, logger.Nop()),
		Chats:       chats,
		Assistant:   chat.NewService(chats, echoAssistant{}, logger.Nop()),
		Connector:   connector,
		Metrics:     m,
	}, logger.Nop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, targetDB(t)
}

// echoAssistant answers with the question and the size of the history.
type echoAssistant struct{}

func (echoAssistant) Answer(_ context.Context, question string, history []chat.Turn) (string, error) {
	return fmt.Sprintf("%s (%d earlier)", question, len(history)), nil
}

type reply struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, ts *httptest.Server, method, path, body string) (int, reply) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func createProfile(t *testing.T, ts *httptest.Server, path string) string {
	t.Helper()
	status, r := call(t, ts, http.MethodPost, "/api/v1/profiles", mustJSON(t, map[string]any{"type": "sqlite", "name": path}))
	require.Equal(t, http.StatusCreated, status, r.Message)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(r.Data, &p))
	return p.ID
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	status, r := call(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, codeSuccess, r.Code)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `route="/healthz"`)
}

func TestProfiles(t *testing.T) {
	ts, target := newTestServer(t)
	id := createProfile(t, ts, target)

	status, r := call(t, ts, http.MethodGet, "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, status)
	var list []profile.Profile
	require.NoError(t, json.Unmarshal(r.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	status, _ = call(t, ts, http.MethodPost, "/api/v1/profiles/"+id+"/test", "")
	assert.Equal(t, http.StatusOK, status)

	status, r = call(t, ts, http.MethodGet, "/api/v1/profiles/"+id+"/schemas/main/tables", "")
	require.Equal(t, http.StatusOK, status)
	var tables []string
	require.NoError(t, json.Unmarshal(r.Data, &tables))
	assert.Equal(t, []string{"items"}, tables)

	status, _ = call(t, ts, http.MethodDelete, "/api/v1/profiles/"+id, "")
	assert.Equal(t, http.StatusOK, status)

	status, r = call(t, ts, http.MethodGet, "/api/v1/profiles/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_SEARCH_DATA", r.Code)
}

func TestRequestValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty body", http.MethodPost, "/api/v1/profiles", "", http.StatusBadRequest, "NO_VALUE"},
		{"unknown field", http.MethodPost, "/api/v1/profiles", `{"kind":"sqlite"}`, http.StatusUnprocessableEntity, "INVALID_PARAMETER"},
		{"missing annotation profile", http.MethodPost, "/api/v1/annotations", `{}`, http.StatusUnprocessableEntity, "INVALID_ANNOTATION_REQUEST"},
		{"history without tab", http.MethodGet, "/api/v1/query/history", "", http.StatusBadRequest, "NO_VALUE"},
		{"bad history limit", http.MethodGet, "/api/v1/query/history?chat_tab_id=x&limit=-1", "", http.StatusUnprocessableEntity, "INVALID_PARAMETER"},
		{"unknown provider", http.MethodDelete, "/api/v1/credentials/Nope", "", http.StatusUnprocessableEntity, "INVALID_PARAMETER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, r := call(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, r.Code)
			assert.Empty(t, r.Data)
		})
	}
}

func TestAnnotationFlow(t *testing.T) {
	ts, target := newTestServer(t)
	id := createProfile(t, ts, target)

	status, r := call(t, ts, http.MethodGet, "/api/v1/profiles/"+id+"/annotation", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_ANNOTATION_FOR_PROFILE", r.Code)

	status, r = call(t, ts, http.MethodPost, "/api/v1/annotations", mustJSON(t, map[string]string{"db_profile_id": id}))
	require.Equal(t, http.StatusCreated, status, r.Message)
	var full annotation.FullAnnotation
	require.NoError(t, json.Unmarshal(r.Data, &full))
	require.Len(t, full.Tables, 1)
	assert.Equal(t, "items", full.Tables[0].TableName)

	status, r = call(t, ts, http.MethodGet, "/api/v1/profiles/"+id+"/annotation/tree", "")
	require.Equal(t, http.StatusOK, status)
	var tree annotation.Tree
	require.NoError(t, json.Unmarshal(r.Data, &tree))
	assert.Equal(t, full.ID, tree.AnnotationID)
	require.Len(t, tree.Databases, 1)
	require.Len(t, tree.Databases[0].Tables, 1)
	assert.Equal(t, "Mock: 'items' table description.", tree.Databases[0].Tables[0].Description)

	status, _ = call(t, ts, http.MethodDelete, "/api/v1/annotations/"+full.ID, "")
	assert.Equal(t, http.StatusOK, status)
	status, r = call(t, ts, http.MethodGet, "/api/v1/annotations/"+full.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_SEARCH_DATA", r.Code)
}

func TestQueryAndHistory(t *testing.T) {
	ts, target := newTestServer(t)
	id := createProfile(t, ts, target)

	status, r := call(t, ts, http.MethodPost, "/api/v1/query/execute-test",
		mustJSON(t, map[string]string{"db_profile_id": id, "query_text": "DELETE FROM items"}))
	require.Equal(t, http.StatusOK, status, r.Message)
	var res query.Result
	require.NoError(t, json.Unmarshal(r.Data, &res))
	assert.Equal(t, query.KindMutation, res.Kind)
	assert.EqualValues(t, 2, res.RowsAffected)

	// The dry run left both rows in place.
	status, r = call(t, ts, http.MethodPost, "/api/v1/query/execute",
		mustJSON(t, map[string]string{"db_profile_id": id, "query_text": "SELECT label FROM items ORDER BY id"}))
	require.Equal(t, http.StatusOK, status, r.Message)
	require.NoError(t, json.Unmarshal(r.Data, &res))
	assert.Equal(t, query.KindSelect, res.Kind)
	assert.Equal(t, []string{"label"}, res.Columns)
	assert.Equal(t, [][]any{{"a"}, {"b"}}, res.Rows)

	status, r = call(t, ts, http.MethodPost, "/api/v1/query/execute",
		mustJSON(t, map[string]string{"db_profile_id": id, "query_text": "SELECT nope FROM items"}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "FAIL_EXECUTE_QUERY", r.Code)
}

func TestChatTabs(t *testing.T) {
	ts, _ := newTestServer(t)

	status, r := call(t, ts, http.MethodPost, "/api/v1/chat/tabs", `{"name":"scratch"}`)
	require.Equal(t, http.StatusCreated, status, r.Message)
	var tab chat.Tab
	require.NoError(t, json.Unmarshal(r.Data, &tab))

	status, _ = call(t, ts, http.MethodPost, "/api/v1/chat/tabs/"+tab.ID+"/messages", `{"sender":"U","message":"how many items?"}`)
	assert.Equal(t, http.StatusCreated, status)

	status, r = call(t, ts, http.MethodPost, "/api/v1/chat/tabs/"+tab.ID+"/messages", `{"sender":"X","message":"hi"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_PARAMETER", r.Code)

	status, r = call(t, ts, http.MethodPatch, "/api/v1/chat/tabs/"+tab.ID, `{"name":"renamed"}`)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(r.Data, &tab))
	assert.Equal(t, "renamed", tab.Name)

	status, r = call(t, ts, http.MethodGet, "/api/v1/chat/tabs/"+tab.ID, "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(r.Data, &tab))
	require.Len(t, tab.Messages, 1)
	assert.Equal(t, chat.SenderUser, tab.Messages[0].Sender)
}

func TestChatAsk(t *testing.T) {
	ts, _ := newTestServer(t)

	status, r := call(t, ts, http.MethodPost, "/api/v1/chat/tabs", `{"name":"ask"}`)
	require.Equal(t, http.StatusCreated, status, r.Message)
	var tab chat.Tab
	require.NoError(t, json.Unmarshal(r.Data, &tab))

	status, r = call(t, ts, http.MethodPost, "/api/v1/chat/tabs/"+tab.ID+"/ask", `{"message":"count items"}`)
	require.Equal(t, http.StatusCreated, status, r.Message)
	var ex chat.Exchange
	require.NoError(t, json.Unmarshal(r.Data, &ex))
	assert.Equal(t, "count items (0 earlier)", ex.Answer.Message)

	status, r = call(t, ts, http.MethodPost, "/api/v1/chat/tabs/"+tab.ID+"/ask", `{"message":"again"}`)
	require.Equal(t, http.StatusCreated, status, r.Message)
	require.NoError(t, json.Unmarshal(r.Data, &ex))
	assert.Equal(t, "again (2 earlier)", ex.Answer.Message)

	status, r = call(t, ts, http.MethodPost, "/api/v1/chat/tabs/"+tab.ID+"/ask", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NO_VALUE", r.Code)
}

func TestDrivers(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
		module string
	}{
		{"postgres alias", "/api/v1/drivers/postgres", http.StatusOK, "SUCCESS", "github.com/jackc/pgx/v5"},
		{"sqlserver", "/api/v1/drivers/sqlserver", http.StatusOK, "SUCCESS", "github.com/denisenkom/go-mssqldb"},
		{"unknown type", "/api/v1/drivers/db2", http.StatusUnprocessableEntity, "INVALID_DB_DRIVER", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, r := call(t, ts, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, r.Code)
			if tt.module == "" {
				return
			}
			var info registry.DriverInfo
			require.NoError(t, json.Unmarshal(r.Data, &info))
			assert.Equal(t, tt.module, info.Module)
			assert.True(t, info.Available)
		})
	}

	status, r := call(t, ts, http.MethodGet, "/api/v1/drivers", "")
	require.Equal(t, http.StatusOK, status)
	var all []registry.DriverInfo
	require.NoError(t, json.Unmarshal(r.Data, &all))
	assert.Len(t, all, len(dialect.Types()))
}

func TestUnexpectedErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	fail(rec, req, logger.Nop(), io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var r reply
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&r))
	assert.Equal(t, "FAIL", r.Code)
	assert.Equal(t, "internal failure", r.Message)
}
