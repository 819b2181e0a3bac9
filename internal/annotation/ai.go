package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/metrics"
)

const (
	// DefaultAIURL is where the annotation service listens by default.
	DefaultAIURL = "http://localhost:35816/api/v1/annotator"
	// DefaultAITimeout bounds one annotation round trip.
	DefaultAITimeout = 60 * time.Second
)

// Fallback reasons, used as metric labels.
const (
	reasonTransport = "transport"
	reasonStatus    = "status"
	reasonDecode    = "decode"
	reasonEmpty     = "empty"
	reasonAuth      = "auth"
)

// Annotator produces descriptions for a schema snapshot. Implementations
// degrade to MockResponse when the backing service misbehaves; an error is
// returned only when ctx itself is done.
type Annotator interface {
	Annotate(ctx context.Context, req *Request) (*Response, error)
}

// MockResponse answers req with template descriptions. It keeps the request
// shape so the persisted tree is complete even without a live service.
func MockResponse(req *Request) *Response {
	resp := &Response{DBMSType: req.DBMSType, Databases: make([]DatabaseResponse, 0, len(req.Databases))}
	for _, db := range req.Databases {
		out := DatabaseResponse{
			DatabaseName:  db.DatabaseName,
			Description:   fmt.Sprintf("Mock: '%s' database description.", db.DatabaseName),
			Tables:        make([]TableResponse, 0, len(db.Tables)),
			Relationships: make([]RelationshipResponse, 0, len(db.Relationships)),
		}
		for _, t := range db.Tables {
			tr := TableResponse{
				TableName:   t.TableName,
				Description: fmt.Sprintf("Mock: '%s' table description.", t.TableName),
				Columns:     make([]ColumnResponse, 0, len(t.Columns)),
			}
			for _, c := range t.Columns {
				tr.Columns = append(tr.Columns, ColumnResponse{
					ColumnName:  c.ColumnName,
					DataType:    c.DataType,
					Description: fmt.Sprintf("Mock: '%s' column description.", c.ColumnName),
				})
			}
			out.Tables = append(out.Tables, tr)
		}
		for _, r := range db.Relationships {
			out.Relationships = append(out.Relationships, RelationshipResponse{
				FromTable:   r.FromTable,
				FromColumns: r.FromColumns,
				ToTable:     r.ToTable,
				ToColumns:   r.ToColumns,
				Description: fmt.Sprintf("Mock: relationship between '%s' and '%s'.", r.FromTable, r.ToTable),
			})
		}
		resp.Databases = append(resp.Databases, out)
	}
	return resp
}

// HTTPClient posts the request JSON to the annotation service.
type HTTPClient struct {
	url     string
	client  *http.Client
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewHTTPClient creates an HTTPClient. Empty url and zero timeout select
// the defaults; m may be nil.
func NewHTTPClient(url string, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *HTTPClient {
	if url == "" {
		url = DefaultAIURL
	}
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPClient{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
		log:     log.Component("ai.http"),
	}
}

func (c *HTTPClient) Annotate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode annotation request", err).
			WithCode(errs.CodeFailCreateAnnotation)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid annotation service url", err).
			WithCode(errs.CodeFailCreateAnnotation)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "annotation request cancelled", ctx.Err())
		}
		return c.fallback(req, reasonTransport, err), nil
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return c.fallback(req, reasonStatus, fmt.Errorf("status %d: %s", res.StatusCode, snippet)), nil
	}

	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return c.fallback(req, reasonDecode, err), nil
	}
	if len(out.Databases) == 0 {
		return c.fallback(req, reasonEmpty, fmt.Errorf("response has no databases")), nil
	}
	return &out, nil
}

func (c *HTTPClient) fallback(req *Request, reason string, cause error) *Response {
	c.log.WarnWith("annotation service unavailable, using mock descriptions", cause,
		map[string]any{"url": c.url, "reason": reason})
	c.metrics.RecordFallback("http", reason)
	return MockResponse(req)
}
