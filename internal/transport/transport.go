// Package transport performs authenticated HTTP requests against the
// Commcell server API.
package transport

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

	"github.com/google/uuid"
)

// Sentinel errors for transport-level failures.
var (
	ErrUnreachable = errors.New("server unreachable")
	ErrTimeout     = errors.New("request timeout")
	ErrStatus      = errors.New("unexpected http status")
)

// Response is the outcome of a request that reached the server.
// On an error status both the Response and an error are returned, so
// callers can extract the raw body for error reporting.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Empty reports whether the body carries no usable payload.
func (r *Response) Empty() bool {
	body := bytes.TrimSpace(r.Body)
	return len(body) == 0 || bytes.Equal(body, []byte("{}")) || bytes.Equal(body, []byte("null"))
}

// Text returns the raw body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Requester is the interface for issuing API calls. A nil error means
// the server answered with a success status; any transport problem or
// error status is reported through the error, with the Response still
// populated when a body was received.
type Requester interface {
	Do(ctx context.Context, method, endpoint string, body any) (*Response, error)
}

// MetricsRecorder is an optional interface for recording API call metrics.
type MetricsRecorder interface {
	RecordAPIRequest(ctx context.Context, method, endpoint string, statusCode int, durationSeconds float64)
}

// HTTPRequester implements Requester against a Commcell web service.
type HTTPRequester struct {
	baseURL string
	token   string
	client  *http.Client
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewHTTPRequester creates a requester for the service rooted at baseURL,
// authenticating every call with the given token. metrics may be nil.
func NewHTTPRequester(baseURL, token string, timeout time.Duration, metrics MetricsRecorder) *HTTPRequester {
	return &HTTPRequester{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: metrics,
		logger:  slog.With("component", "transport"),
	}
}

// Do issues one API call. endpoint is a path relative to the base URL,
// already expanded by the session's service table. A non-nil body is
// JSON-encoded.
func (c *HTTPRequester) Do(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authtoken", c.token)
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.record(ctx, method, endpoint, 0, start)
		c.logger.Debug("request failed", "method", method, "endpoint", endpoint, "requestId", requestID, "error", err)
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(ctx, method, endpoint, resp.StatusCode, start)
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.record(ctx, method, endpoint, resp.StatusCode, start)
	out := &Response{StatusCode: resp.StatusCode, Body: payload}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("error status", "method", method, "endpoint", endpoint, "requestId", requestID, "status", resp.StatusCode)
		return out, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return out, nil
}

// Ready verifies the server is reachable and answering.
func (c *HTTPRequester) Ready(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodGet, "CommServ/Ping", nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("server not ready (status %d)", resp.StatusCode)
		}
		return err
	}
	return nil
}

func (c *HTTPRequester) record(ctx context.Context, method, endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, method, endpoint, status, time.Since(start).Seconds())
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPRequester implements Requester.
var _ Requester = (*HTTPRequester)(nil)
