// Package remote wraps the work-tracking service's HTTP API: a client that
// injects auth headers and retries transport failures, plus one method per
// endpoint. Responses arrive in an envelope whose embedded code signals
// application errors independently of the HTTP status; every accessor
// decodes through it and fails on a non-zero code.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pivotstack/worktrack/pkg/types"
)

// TokenProvider supplies the plugin token and acting user key injected into
// every request. Token refresh happens behind this boundary.
type TokenProvider func(ctx context.Context) (token, userKey string, err error)

// Options configures a Client. Zero values take the defaults below.
type Options struct {
	BaseURL       string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	UserAgent     string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Logger        *slog.Logger
}

// Client executes requests against the remote service. Transport-level
// failures (timeouts, connection errors, 5xx) are retried here with
// exponential backoff; rate limiting is not — the update orchestrator owns
// that policy.
type Client struct {
	baseURL       string
	tokenProvider TokenProvider
	httpClient    *http.Client
	userAgent     string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	logger        *slog.Logger
}

// NewClient builds a Client, applying defaults for unset options.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       baseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		logger:        logger,
	}
}

// envelope is the service's response wrapper. A non-zero Code means the call
// failed regardless of the HTTP status.
type envelope struct {
	Code int             `json:"err_code"`
	Msg  string          `json:"err_msg"`
	Err  json.RawMessage `json:"err"`
	Data json.RawMessage `json:"data"`
}

// flatten produces a single-line message from the envelope's nested error
// detail, annotating failures that look like workflow or permission locks.
func (e *envelope) flatten() string {
	outer := e.Msg
	var inner struct {
		Msg    string `json:"msg"`
		ErrMsg string `json:"err_msg"`
	}
	innerMsg := ""
	if len(e.Err) > 0 {
		if err := json.Unmarshal(e.Err, &inner); err == nil {
			innerMsg = inner.Msg
			if innerMsg == "" {
				innerMsg = inner.ErrMsg
			}
		}
	}
	msg := outer
	switch {
	case outer != "" && innerMsg != "" && outer != innerMsg:
		msg = outer + ": " + innerMsg
	case innerMsg != "":
		msg = innerMsg
	case outer == "":
		msg = "unknown error"
	}
	if strings.Contains(msg, "is illegal") {
		msg += " (field may be workflow-locked, read-only, or permission-restricted)"
	}
	return msg
}

// do executes one request and decodes the envelope's data into out (which
// may be nil). It retries timeouts, connection errors, and 5xx responses up
// to maxRetries times; everything else surfaces immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	correlationID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.baseDelay, c.maxDelay, attempt-1); err != nil {
				return err
			}
			c.logger.Warn("retrying request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt))
		}

		done, err := c.attempt(ctx, method, path, correlationID, payload, out)
		if done {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s %s: retries exhausted: %w", method, path, lastErr)
}

// attempt runs a single round trip. done=false means the failure is
// transient and the caller may retry.
func (c *Client) attempt(ctx context.Context, method, path, correlationID string, payload []byte, out any) (done bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return true, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", correlationID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokenProvider != nil {
		token, userKey, err := c.tokenProvider(ctx)
		if err != nil {
			return true, fmt.Errorf("acquire token: %w", err)
		}
		if token != "" {
			req.Header.Set("X-Plugin-Token", token)
		}
		if userKey != "" {
			req.Header.Set("X-User-Key", userKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		// Timeouts and connection failures are equivalent for retry purposes.
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
			return false, err
		}
		return false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, err
	}

	switch {
	case resp.StatusCode >= 500:
		c.logger.Warn("server error", slog.Int("status", resp.StatusCode), slog.String("path", path))
		return false, &types.RemoteError{HTTPStatus: resp.StatusCode, Message: trimBody(raw)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, &types.RemoteError{HTTPStatus: resp.StatusCode, Message: "Too Many Requests"}
	case resp.StatusCode >= 400:
		return true, &types.RemoteError{HTTPStatus: resp.StatusCode, Message: trimBody(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return true, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return true, &types.RemoteError{Code: env.Code, HTTPStatus: resp.StatusCode, Message: env.flatten()}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return true, fmt.Errorf("decode response data: %w", err)
		}
	}
	return true, nil
}

// trimBody turns a raw error body into a short message. The remote embeds
// request URLs in some error texts; those are cut to keep messages clean.
func trimBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	var env envelope
	if json.Unmarshal(raw, &env) == nil && (env.Msg != "" || len(env.Err) > 0) {
		s = env.flatten()
	}
	if i := strings.Index(s, "for url"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// sleepBackoff waits base*2^attempt (capped at max) plus jitter, honoring ctx.
func sleepBackoff(ctx context.Context, base, max time.Duration, attempt int) error {
	delay := base << attempt
	if delay > max {
		delay = max
	}
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
