package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You document relational databases for analysts.
You receive a JSON object describing a database: its tables, columns, sample rows and foreign-key relationships.
Answer with JSON only, no prose and no code fences. Return the same structure with a "description" string added to
every database, table, column and relationship. Keep names and the order of every list unchanged.
Descriptions are one or two plain sentences.`

// KeySource supplies stored provider keys.
type KeySource interface {
	Key(ctx context.Context, p credential.Provider) (string, error)
}

// OpenAIConfig configures OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient asks a chat-completion model for the descriptions. The key
// comes from the config, else from the credential vault at call time.
type OpenAIClient struct {
	cfg     OpenAIConfig
	keys    KeySource
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewOpenAIClient creates an OpenAIClient. keys and m may be nil.
func NewOpenAIClient(cfg OpenAIConfig, keys KeySource, m *metrics.Metrics, log *logger.Logger) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAITimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAIClient{cfg: cfg, keys: keys, metrics: m, log: log.Component("ai.openai")}
}

func (c *OpenAIClient) Annotate(ctx context.Context, req *Request) (*Response, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return c.fallback(req, reasonAuth, err), nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode annotation request", err).
			WithCode(errs.CodeFailCreateAnnotation)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(c.cfg.Timeout),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "annotation request cancelled", ctx.Err())
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			reason := reasonStatus
			if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
				reason = reasonAuth
			}
			return c.fallback(req, reason, err), nil
		}
		return c.fallback(req, reasonTransport, err), nil
	}
	if len(completion.Choices) == 0 {
		return c.fallback(req, reasonEmpty, fmt.Errorf("completion has no choices")), nil
	}

	var out Response
	if err := json.Unmarshal([]byte(stripFences(completion.Choices[0].Message.Content)), &out); err != nil {
		return c.fallback(req, reasonDecode, err), nil
	}
	if len(out.Databases) == 0 {
		return c.fallback(req, reasonEmpty, fmt.Errorf("response has no databases")), nil
	}
	if out.DBMSType == "" {
		out.DBMSType = req.DBMSType
	}

	c.log.With().Str("model", c.cfg.Model).Logger().Debug("completion decoded")
	return &out, nil
}

func (c *OpenAIClient) apiKey(ctx context.Context) (string, error) {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey, nil
	}
	if c.keys == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "no OpenAI api key configured").WithCode(errs.CodeNoValue)
	}
	return c.keys.Key(ctx, credential.ProviderOpenAI)
}

func (c *OpenAIClient) fallback(req *Request, reason string, cause error) *Response {
	c.log.WarnWith("openai completion unavailable, using mock descriptions", cause,
		map[string]any{"model": c.cfg.Model, "reason": reason})
	c.metrics.RecordFallback("openai", reason)
	return MockResponse(req)
}

// stripFences removes a ```json ... ``` wrapper some models add anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
