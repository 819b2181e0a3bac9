package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
)

const (
	// DefaultAssistantURL is where the chat service listens by default.
	DefaultAssistantURL = "http://localhost:35816/api/v1/chat"
	// DefaultAssistantTimeout bounds one question round trip.
	DefaultAssistantTimeout = 60 * time.Second
)

// Turn is one earlier message handed to the assistant as context.
type Turn struct {
	Role    Sender `json:"role"`
	Content string `json:"content"`
}

type askRequest struct {
	Question    string `json:"question"`
	ChatHistory []Turn `json:"chat_history"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Assistant answers a question given the conversation so far.
type Assistant interface {
	Answer(ctx context.Context, question string, history []Turn) (string, error)
}

// HTTPAssistant posts {question, chat_history} to the chat service and
// reads {answer} back.
type HTTPAssistant struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

// NewHTTPAssistant creates an HTTPAssistant. Empty url and zero timeout
// select the defaults.
func NewHTTPAssistant(url string, timeout time.Duration, log *logger.Logger) *HTTPAssistant {
	if url == "" {
		url = DefaultAssistantURL
	}
	if timeout <= 0 {
		timeout = DefaultAssistantTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPAssistant{url: url, client: &http.Client{Timeout: timeout}, log: log.Component("chat.assistant")}
}

func (a *HTTPAssistant) Answer(ctx context.Context, question string, history []Turn) (string, error) {
	if history == nil {
		history = []Turn{}
	}
	body, err := json.Marshal(askRequest{Question: question, ChatHistory: history})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode chat request", err).
			WithCode(errs.CodeFailAIProcessing)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid chat service url", err).
			WithCode(errs.CodeFailAIConnection)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrKindTimeout, "chat request cancelled", ctx.Err())
		}
		return "", errs.Wrap(errs.ErrKindConnectionFailed, "chat service is unreachable", err).
			WithCode(errs.CodeFailAIConnection)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		a.log.WarnWith("chat service rejected the question", nil,
			map[string]any{"url": a.url, "status": res.StatusCode, "body": string(snippet)})
		return "", errs.Newf(errs.ErrKindUnknown, "chat service returned status %d", res.StatusCode).
			WithCode(errs.CodeFailAIProcessing)
	}

	var out askResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", errs.Wrap(errs.ErrKindUnknown, "chat service sent an unreadable answer", err).
			WithCode(errs.CodeFailAIProcessing)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", errs.New(errs.ErrKindUnknown, "chat service sent an empty answer").
			WithCode(errs.CodeFailAIProcessing)
	}
	return out.Answer, nil
}

// Exchange is a stored question with its stored answer.
type Exchange struct {
	Question *Message `json:"question"`
	Answer   *Message `json:"answer"`
}

// Service runs question and answer round trips on top of the Repository.
type Service struct {
	repo      *Repository
	assistant Assistant
	log       *logger.Logger
}

// NewService creates a Service.
func NewService(repo *Repository, assistant Assistant, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, assistant: assistant, log: log.Component("chat")}
}

// Ask stores question as a user message, sends it with the tab's earlier
// messages to the assistant and stores the answer as an AI message. When the
// assistant fails the question stays stored and the error is returned.
func (s *Service) Ask(ctx context.Context, tabID, question string) (*Exchange, error) {
	tab, err := s.repo.GetTab(ctx, tabID)
	if err != nil {
		return nil, err
	}
	asked, err := s.repo.AddMessage(ctx, tabID, SenderUser, question)
	if err != nil {
		return nil, err
	}

	history := make([]Turn, 0, len(tab.Messages))
	for _, m := range tab.Messages {
		history = append(history, Turn{Role: m.Sender, Content: m.Message})
	}

	start := time.Now()
	answer, err := s.assistant.Answer(ctx, question, history)
	if err != nil {
		return nil, err
	}
	s.log.InfoWith("assistant answered", map[string]any{
		"tab_id":      tabID,
		"history":     len(history),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	reply, err := s.repo.AddMessage(ctx, tabID, SenderAI, answer)
	if err != nil {
		return nil, err
	}
	return &Exchange{Question: asked, Answer: reply}, nil
}
