package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AskRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	tab, err := r.CreateTab(ctx, "orders")
	require.NoError(t, err)
	_, err = r.AddMessage(ctx, tab.ID, SenderUser, "what tables exist?")
	require.NoError(t, err)
	_, err = r.AddMessage(ctx, tab.ID, SenderAI, "orders and customers")
	require.NoError(t, err)

	var got askRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"answer": "SELECT COUNT(*) FROM orders"})
	}))
	defer srv.Close()

	svc := NewService(r, NewHTTPAssistant(srv.URL, time.Second, logger.Nop()), logger.Nop())
	ex, err := svc.Ask(ctx, tab.ID, "how many orders?")
	require.NoError(t, err)

	assert.Equal(t, "how many orders?", got.Question)
	assert.Equal(t, []Turn{
		{Role: SenderUser, Content: "what tables exist?"},
		{Role: SenderAI, Content: "orders and customers"},
	}, got.ChatHistory)

	assert.Equal(t, SenderUser, ex.Question.Sender)
	assert.Equal(t, SenderAI, ex.Answer.Sender)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", ex.Answer.Message)

	stored, err := r.GetTab(ctx, tab.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 4)
	assert.Equal(t, "how many orders?", stored.Messages[2].Message)
	assert.Equal(t, ex.Answer.ID, stored.Messages[3].ID)
}

func TestService_AskFirstQuestionSendsEmptyHistory(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	tab, err := r.CreateTab(ctx, "")
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"answer":"hi"}`))
	}))
	defer srv.Close()

	_, err = NewService(r, NewHTTPAssistant(srv.URL, time.Second, nil), nil).Ask(ctx, tab.ID, "hello")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw["chat_history"]))
}

func TestService_AskFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		closed  bool
		want    errs.Code
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "boom", http.StatusInternalServerError) },
			want:    errs.CodeFailAIProcessing,
		},
		{
			name:    "unreadable body",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("not json")) },
			want:    errs.CodeFailAIProcessing,
		},
		{
			name:    "empty answer",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"answer":"  "}`)) },
			want:    errs.CodeFailAIProcessing,
		},
		{
			name:    "unreachable",
			handler: func(http.ResponseWriter, *http.Request) {},
			closed:  true,
			want:    errs.CodeFailAIConnection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := newRepo(t)
			tab, err := r.CreateTab(ctx, "t")
			require.NoError(t, err)

			srv := httptest.NewServer(tt.handler)
			if tt.closed {
				srv.Close()
			} else {
				defer srv.Close()
			}

			_, err = NewService(r, NewHTTPAssistant(srv.URL, time.Second, nil), nil).Ask(ctx, tab.ID, "q")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.CodeOf(err))
			assert.Equal(t, 502, errs.HTTPStatus(err))

			stored, err := r.GetTab(ctx, tab.ID)
			require.NoError(t, err)
			require.Len(t, stored.Messages, 1)
			assert.Equal(t, SenderUser, stored.Messages[0].Sender)
		})
	}
}

func TestService_AskValidatesBeforeCalling(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	tab, err := r.CreateTab(ctx, "t")
	require.NoError(t, err)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"answer":"x"}`))
	}))
	defer srv.Close()
	svc := NewService(r, NewHTTPAssistant(srv.URL, time.Second, nil), nil)

	_, err = svc.Ask(ctx, tab.ID, "   ")
	assert.Equal(t, errs.CodeNoValue, errs.CodeOf(err))

	_, err = svc.Ask(ctx, "CHAT-TAB-missing", "q")
	assert.True(t, errs.IsNotFound(err))

	_, err = svc.Ask(ctx, "bogus", "q")
	assert.Equal(t, errs.CodeInvalidParameter, errs.CodeOf(err))

	assert.Zero(t, calls)
}
