package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
)

func sampleRequest() *Request {
	return &Request{
		DBMSType: "postgresql",
		Databases: []DatabaseRequest{{
			DatabaseName: "shop",
			Tables: []TableRequest{{
				TableName:  "orders",
				Columns:    []ColumnRequest{{ColumnName: "id", DataType: "integer"}, {ColumnName: "customer_id", DataType: "integer"}},
				SampleRows: []map[string]any{{"id": 1, "customer_id": 7}},
			}},
			Relationships: []Relationship{{
				FromTable: "orders", FromColumns: []string{"customer_id"},
				ToTable: "customers", ToColumns: []string{"id"},
			}},
		}},
	}
}

// describe answers a request the way a live service would.
func describe(req *Request) *Response {
	resp := MockResponse(req)
	for i := range resp.Databases {
		db := &resp.Databases[i]
		db.Description = "desc:" + db.DatabaseName
		for j := range db.Tables {
			t := &db.Tables[j]
			t.Description = "desc:" + t.TableName
			for k := range t.Columns {
				t.Columns[k].Description = "desc:" + t.TableName + "." + t.Columns[k].ColumnName
			}
		}
		for j := range db.Relationships {
			r := &db.Relationships[j]
			r.Description = fmt.Sprintf("desc:%s->%s", r.FromTable, r.ToTable)
		}
	}
	return resp
}

func TestMockResponse(t *testing.T) {
	resp := MockResponse(sampleRequest())

	assert.Equal(t, "postgresql", resp.DBMSType)
	require.Len(t, resp.Databases, 1)
	db := resp.Databases[0]
	assert.Equal(t, "Mock: 'shop' database description.", db.Description)
	require.Len(t, db.Tables, 1)
	assert.Equal(t, "Mock: 'orders' table description.", db.Tables[0].Description)
	assert.Equal(t, "Mock: 'customer_id' column description.", db.Tables[0].Columns[1].Description)
	assert.Equal(t, "integer", db.Tables[0].Columns[1].DataType)
	require.Len(t, db.Relationships, 1)
	assert.Equal(t, "Mock: relationship between 'orders' and 'customers'.", db.Relationships[0].Description)
}

func aiServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_Success(t *testing.T) {
	srv := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "shop", req.Databases[0].DatabaseName)
		assert.Equal(t, []string{"customer_id"}, req.Databases[0].Relationships[0].FromColumns)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(describe(&req))
	})

	m := metrics.New()
	resp, err := NewHTTPClient(srv.URL, time.Second, m, logger.Nop()).Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "desc:shop", resp.Databases[0].Description)
	assert.Equal(t, "desc:orders.id", resp.Databases[0].Tables[0].Columns[0].Description)
	assert.Equal(t, 0, testutil.CollectAndCount(m.AIFallbacks))
}

func TestHTTPClient_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  string
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, reasonStatus},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"databases": [`))
		}, reasonDecode},
		{"no databases", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"dbms_type": "postgresql", "databases": []}`))
		}, reasonEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := aiServer(t, tt.handler)
			m := metrics.New()

			resp, err := NewHTTPClient(srv.URL, time.Second, m, logger.Nop()).Annotate(context.Background(), sampleRequest())
			require.NoError(t, err)
			assert.Equal(t, MockResponse(sampleRequest()), resp)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFallbacks.WithLabelValues("http", tt.reason)))
		})
	}
}

func TestHTTPClient_UnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := metrics.New()
	resp, err := NewHTTPClient(url, time.Second, m, nil).Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Mock: 'shop' database description.", resp.Databases[0].Description)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFallbacks.WithLabelValues("http", reasonTransport)))
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	srv := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(srv.URL, time.Second, nil, nil).Annotate(ctx, sampleRequest())
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

// chatCompletion wraps content in a minimal chat completion body.
func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestOpenAIClient_Success(t *testing.T) {
	srv := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, DefaultModel, body.Model)

		var req Request
		require.NoError(t, json.Unmarshal([]byte(body.Messages[1].Content), &req))
		out, err := json.Marshal(describe(&req))
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion("```json\n" + string(out) + "\n```"))
	})

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Timeout: time.Second}, nil, nil, nil)
	resp, err := c.Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "desc:orders->customers", resp.Databases[0].Relationships[0].Description)
}

type staticKeys map[credential.Provider]string

func (k staticKeys) Key(_ context.Context, p credential.Provider) (string, error) {
	if v, ok := k[p]; ok {
		return v, nil
	}
	return "", errs.New(errs.ErrKindNotFound, "no key").WithCode(errs.CodeNoSearchData)
}

func TestOpenAIClient_KeyFromVault(t *testing.T) {
	srv := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-vault", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion("not json at all"))
	})

	m := metrics.New()
	keys := staticKeys{credential.ProviderOpenAI: "sk-vault"}
	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, keys, m, nil)

	resp, err := c.Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, MockResponse(sampleRequest()), resp)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFallbacks.WithLabelValues("openai", reasonDecode)))
}

func TestOpenAIClient_FallbackWithoutKey(t *testing.T) {
	m := metrics.New()
	resp, err := NewOpenAIClient(OpenAIConfig{}, staticKeys{}, m, nil).Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Mock: 'shop' database description.", resp.Databases[0].Description)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFallbacks.WithLabelValues("openai", reasonAuth)))
}

func TestOpenAIClient_UnauthorizedFallsBack(t *testing.T) {
	srv := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	})

	m := metrics.New()
	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL + "/", Timeout: time.Second}, nil, m, nil)
	_, err := c.Annotate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFallbacks.WithLabelValues("openai", reasonAuth)))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1} "))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}```"))
}
