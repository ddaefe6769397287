// Package api is the HTTP client for the car-rental server. Every call reads
// the session token fresh, and a 401 from any endpoint ends the session.
package api

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

	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const maxResponseBytes = 16 << 20

// Session is the part of the session manager the client needs.
type Session interface {
	Token(ctx context.Context) (string, error)
	ForceLogout(ctx context.Context, reason string)
}

type Client struct {
	baseURL string
	http    *http.Client
	session Session
	log     *zap.Logger
}

// NewClient creates a client for baseURL. A zero timeout leaves the
// transport default (no timeout) in place.
func NewClient(baseURL string, timeout time.Duration, session Session, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: session,
		log:     logging.OrNop(log).Named("api"),
	}
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method         string
	path           string
	body           interface{}
	accept         string
	idempotencyKey string
	// token overrides the stored session token.
	token string
	// fallback is the message used when the server gives none.
	fallback string
}

// do sends req and returns the response body of a 2xx reply. Non-2xx
// replies become *errors.AppError carrying the status.
func (c *Client) do(ctx context.Context, req request) ([]byte, int, error) {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.idempotencyKey)
	}

	token := req.token
	if token == "" {
		token, err = c.session.Token(ctx)
		if err != nil {
			c.log.Warn("sending request without token", zap.String("path", req.path), zap.Error(err))
		}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", req.method), zap.String("path", req.path), zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", errors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", errors.ErrNetwork, err)
	}

	c.log.Debug("request completed",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.session.ForceLogout(ctx, fmt.Sprintf("%s %s returned 401", req.method, req.path))
		msg := extractMessage(data, "Your session has expired. Please log in again.")
		return nil, resp.StatusCode, errors.NewAppError(errors.ErrAuthFailure, msg, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		fallback := req.fallback
		if fallback == "" {
			fallback = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return nil, resp.StatusCode, errors.NewAppError(errors.ErrRejected, extractMessage(data, fallback), resp.StatusCode)
	}

	return data, resp.StatusCode, nil
}

// extractMessage picks the human readable message of an error body: detail,
// then message, then the first field error of a validation response.
func extractMessage(body []byte, fallback string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fallback
	}

	for _, key := range []string{"detail", "message"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}

	for field, raw := range fields {
		var list []string
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			return field + ": " + list[0]
		}
	}

	return fallback
}

func decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedResponse, err)
	}
	return nil
}

// decodeList accepts a bare JSON array or an object holding the array under
// one of keys.
func decodeList(body []byte, v interface{}, keys ...string) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decode(trimmed, v)
	}

	var wrapper map[string]json.RawMessage
	if err := decode(trimmed, &wrapper); err != nil {
		return err
	}
	for _, key := range keys {
		if raw, ok := wrapper[key]; ok {
			return decode(raw, v)
		}
	}
	return fmt.Errorf("%w: no list under %v", errors.ErrMalformedResponse, keys)
}
