package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertengine/internal/domain"
	"alertengine/internal/permanent"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBodyLen  = 512
)

// OversizeError reports a response body larger than the client accepts.
// It is permanent: the same endpoint keeps returning the same body.
type OversizeError struct {
	Limit int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.Limit)
}

// StatusError reports a non-2xx response. It is transient: callers retry it.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status=%d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// Client speaks the remote alert service's HTTP/JSON protocol.
// One call is one attempt; retries belong to the transport layer.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a client for baseURL.
// Params: absolute base URL, per-request timeout (0 disables), and optional HTTP client.
// Returns: client or URL parse error.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remote base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{base: parsed, http: httpClient}, nil
}

// QueryAlertDefinitions fetches every alert definition.
// Params: request context.
// Returns: definitions, transient transport error, or permanent decode error.
func (c *Client) QueryAlertDefinitions(ctx context.Context) ([]domain.AlertDefinition, error) {
	var payload []alertPayload
	if err := c.do(ctx, "list alerts", http.MethodGet, c.endpoint("alerts", nil), nil, &payload); err != nil {
		return nil, err
	}
	definitions := make([]domain.AlertDefinition, 0, len(payload))
	for _, item := range payload {
		definitions = append(definitions, item.definition())
	}
	return definitions, nil
}

// EvaluateQuery runs one query and returns its sample.
// Params: request context and query name.
// Returns: metric value, transient transport error, or permanent decode error.
func (c *Client) EvaluateQuery(ctx context.Context, query domain.QueryName) (domain.MetricValue, error) {
	var payload queryPayload
	endpoint := c.endpoint("query", url.Values{"target": []string{string(query)}})
	if err := c.do(ctx, "query", http.MethodGet, endpoint, nil, &payload); err != nil {
		return 0, err
	}
	if payload.Value == nil {
		return 0, permanent.Mark("query", fmt.Errorf("response for %q has no value", query))
	}
	return domain.MetricValue(*payload.Value), nil
}

// Notify reports an active alert.
func (c *Client) Notify(ctx context.Context, alert domain.AlertName, message string) error {
	body := notifyPayload{AlertName: string(alert), Message: message}
	return c.do(ctx, "notify", http.MethodPost, c.endpoint("notify", nil), body, nil)
}

// Resolve reports that an alert returned to normal.
func (c *Client) Resolve(ctx context.Context, alert domain.AlertName) error {
	body := resolvePayload{AlertName: string(alert)}
	return c.do(ctx, "resolve", http.MethodPost, c.endpoint("resolve", nil), body, nil)
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.base.JoinPath(path)
	if query != nil {
		target.RawQuery = query.Encode()
	}
	return target.String()
}

// do performs one request. The body is read in full before decoding, so a connection dropped
// mid-body is a transient read error. Encode, decode and oversize failures are permanent.
// Params: context, operation label, method, URL, optional JSON body, optional decode target.
// Returns: operation error.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return permanent.Mark(op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return permanent.Mark(op, fmt.Errorf("build request: %w", err))
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedStatus(op, response)
	}
	if out == nil {
		// A 2xx status is the acknowledgement; the body is drained best-effort.
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseBytes))
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if len(raw) > maxResponseBytes {
		return permanent.Mark(op, &OversizeError{Limit: maxResponseBytes})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return permanent.Mark(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func unexpectedStatus(op string, response *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyLen))
	return &StatusError{Op: op, StatusCode: response.StatusCode, Body: strings.TrimSpace(string(raw))}
}
