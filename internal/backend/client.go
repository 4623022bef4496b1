package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the chat backend over REST. Requests that fail before a response arrives are
// retried a fixed number of times with a fixed delay; HTTP error statuses are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration

	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// Response is the envelope every REST call returns. Error is empty on success. Status is the
// HTTP status code, or 0 when no response was received at all.
type Response[T any] struct {
	Data   T
	Error  string
	Status int
	// Raw holds the response body when it could not be decoded.
	Raw string
}

// APIError is the error form of a failed Response.
type APIError struct {
	Status  int
	Message string
}

const (
	// DefaultRetries is the number of extra attempts made after a transport failure.
	DefaultRetries = 2
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = 300 * time.Millisecond

	errLoggerKey = "err"
)

// WithHTTPClient sets the HTTP client used for all requests, including streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetries sets how many times a request is retried after a transport failure.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the backend at baseURL, e.g. "http://localhost:8000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("module", "backend"))
	return c
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// OK reports whether the call succeeded.
func (r Response[T]) OK() bool {
	return r.Error == ""
}

// Err returns the failure as an *APIError, or nil on success.
func (r Response[T]) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{Status: r.Status, Message: r.Error}
}

// Do sends a JSON request to endpoint and decodes the JSON answer into T. It never returns a Go
// error: every failure is described by the returned envelope.
func Do[T any](ctx context.Context, c *Client, method, endpoint string, body any) Response[T] {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Response[T]{Error: fmt.Sprintf("failed to encode request: %v", err)}
		}
	}

	url := c.baseURL + endpoint
	logger := c.logger.With(slog.String("method", method), slog.String("url", url))

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = c.send(ctx, method, url, payload)
		if err == nil {
			break
		}
		if ctx.Err() != nil || attempt >= c.retries {
			break
		}
		logger.Warn("Request failed, retrying",
			slog.Int("retriesLeft", c.retries-attempt),
			slog.String(errLoggerKey, err.Error()))

		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
	}
	if err != nil {
		logger.Error("Request ultimately failed", slog.String(errLoggerKey, err.Error()))
		return Response[T]{
			Error: fmt.Sprintf("Connection error: %s. Please check your network connection and try again.",
				err.Error()),
		}
	}
	defer resp.Body.Close()

	return decodeResponse[T](resp, logger)
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

func decodeResponse[T any](resp *http.Response, logger *slog.Logger) Response[T] {
	res := Response[T]{Status: resp.StatusCode}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Sprintf("failed to read response: %v", err)
		return res
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		if !ok {
			res.Error = serverError(resp)
		}
		return res
	}

	if !ok {
		var detail struct {
			Detail any    `json:"detail"`
			Error  string `json:"error"`
		}
		_ = json.Unmarshal(raw, &detail)
		res.Error = detailMessage(detail.Detail)
		if res.Error == "" {
			res.Error = detail.Error
		}
		if res.Error == "" {
			res.Error = serverError(resp)
		}
		res.Raw = string(raw)
		logger.Error("Backend returned an error",
			slog.Int("status", resp.StatusCode),
			slog.String(errLoggerKey, res.Error))
		return res
	}

	if err := json.Unmarshal(raw, &res.Data); err != nil {
		logger.Error("Failed to parse response", slog.String(errLoggerKey, err.Error()))
		res.Error = "Failed to parse response from server"
		res.Raw = string(raw)
	}
	return res
}

func serverError(resp *http.Response) string {
	text := http.StatusText(resp.StatusCode)
	if text == "" {
		text = resp.Status
	}
	return "Server error: " + text
}

// detailMessage flattens the "detail" field of an error body. The backend sends either a string
// or a list of validation errors.
func detailMessage(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []any:
		msgs := make([]string, 0, len(d))
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					msgs = append(msgs, msg)
				}
			}
		}
		return strings.Join(msgs, "; ")
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}

// IsNetworkError reports whether err describes a request that never got an HTTP response.
func IsNetworkError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 0
}
