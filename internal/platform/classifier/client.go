package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/task"
)

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 512

// Client calls the classifier service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ task.Classifier     = (*Client)(nil)
	_ task.ModelDescriber = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, log *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("classifier url cannot be empty")
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		baseURL: baseURL,
		// Per-call deadlines come from the worker's context; this is a backstop.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     log.With("component", "classifier_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type predictRequest struct {
	Texts []string `json:"texts"`
}

type predictResponse struct {
	Predictions []domain.Prediction `json:"predictions"`
}

// Predict classifies texts. The predictions come back in input order.
func (c *Client) Predict(ctx context.Context, texts []string) ([]domain.Prediction, error) {
	body, err := json.Marshal(predictRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", task.ErrPermanentBackend, err)
	}

	var resp predictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", body, &resp); err != nil {
		return nil, err
	}

	logger.FromContextOrDefault(ctx, c.logger).Debug("classifier returned predictions",
		"texts", len(texts),
		"predictions", len(resp.Predictions))
	return resp.Predictions, nil
}

// ModelsInfo describes the model loaded by the service.
func (c *Client) ModelsInfo(ctx context.Context) (*task.ModelsInfo, error) {
	var info task.ModelsInfo
	if err := c.do(ctx, http.MethodGet, "/models", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", task.ErrPermanentBackend, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Connection failures and timeouts.
		return fmt.Errorf("%w: %s %s: %v", task.ErrTransientBackend, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(method, path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if interruptedRead(ctx, err) {
			return fmt.Errorf("%w: %s %s: response body interrupted: %v", task.ErrTransientBackend, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: invalid response body: %v", task.ErrPermanentBackend, method, path, err)
	}
	return nil
}

// interruptedRead reports whether a body read failed because the deadline hit
// or the connection broke, rather than because the payload was malformed.
func interruptedRead(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier responded %d: %s", e.StatusCode, e.Body)
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}

	kind := task.ErrPermanentBackend
	if IsTransientStatus(resp.StatusCode) {
		kind = task.ErrTransientBackend
	}
	return fmt.Errorf("%w: %s %s: %w", kind, method, path, se)
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
