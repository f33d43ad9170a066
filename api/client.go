// Package api is the generic request pipeline for the Fill Your Day API.
// It attaches the current bearer token to outgoing calls and recovers from a
// single 401 per logical request by asking the auth client for a fresh token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fyd-app/go-fyd-client/auth"
)

const maxResponseBytes = 1 << 20

// TokenSource supplies the bearer credential for outgoing requests and
// recovers it after a 401. Implemented by *auth.Client.
type TokenSource interface {
	AccessToken() string
	EnsureFreshToken(ctx context.Context) (string, error)
}

// Error carries the HTTP status and server message of a rejected call.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api error: %s", e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// statusEnvelope is the {success, message} wrapper for calls whose payload
// the caller does not need.
type statusEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client is a JSON round-tripper over the API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a pipeline client. tokens may be nil for a purely
// unauthenticated client.
func New(baseURL string, tokens TokenSource, options ...Option) *Client {
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		log:        zerolog.Nop(),
	}

	for _, opt := range options {
		opt(client)
	}

	return client
}

// Do performs one logical JSON request. On the first 401 it asks the token
// source for a fresh token and replays the request exactly once; a second
// 401 surfaces as ErrSessionExpired rather than looping.
func (c *Client) Do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(auth.ErrRequestConfiguration, err.Error())
		}
		body = encoded
	}

	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	status, raw, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && c.tokens != nil {
		fresh, err := c.tokens.EnsureFreshToken(ctx)
		if err != nil {
			return errors.WithMessage(err, "[Client.Do] token refresh")
		}
		status, raw, err = c.send(ctx, method, path, body, fresh)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return errors.Wrap(auth.ErrSessionExpired, "request rejected after refresh")
		}
	}

	return decodeResponse(status, raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(auth.ErrRequestConfiguration, err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(auth.ErrNoServerResponse, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, errors.Wrap(auth.ErrNoServerResponse, err.Error())
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")
	return resp.StatusCode, raw, nil
}

func decodeResponse(status int, raw []byte, out interface{}) error {
	if status < 200 || status >= 300 {
		return errors.WithStack(&Error{Status: status, Message: extractMessage(raw, http.StatusText(status))})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "[decodeResponse] malformed response body")
	}
	return nil
}

func extractMessage(raw []byte, fallback string) string {
	var env statusEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return fallback
}
