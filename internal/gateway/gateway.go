// Package gateway is the single JSON-over-HTTP entry point of the chat client.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/pkg/utils"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend returned status %s", e.Status)
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Gateway posts and fetches JSON relative to a base URL. It does not retry.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = utils.OrNop(l) }
}

// WithBearerToken sends an Authorization header on every request.
func WithBearerToken(token string) Option {
	return func(g *Gateway) { g.token = token }
}

func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PostJSON sends body as JSON to path and decodes the response into out.
// out may be nil when the response body is not needed.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return g.do(ctx, http.MethodPost, path, bytes.NewReader(data), out)
}

// GetJSON fetches path and decodes the response into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	return g.do(ctx, http.MethodGet, path, nil, out)
}

func (g *Gateway) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	url := g.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	g.logger.Debug("gateway request", zap.String("method", method), zap.String("url", url))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
