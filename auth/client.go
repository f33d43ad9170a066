// Package auth owns the session lifecycle: login, registration, logout,
// current-session restore, and transparent single-flight token refresh.
// All writes to the session store happen inside this package.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fyd-app/go-fyd-client/sessions"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh"

	// Single coalescing slot: every concurrent refresh attaches to the same
	// in-flight call.
	refreshSlotKey = "refresh"

	maxResponseBytes = 1 << 20
)

// envelope is the {success, data, message} wrapper used by the auth
// endpoints.
type envelope struct {
	Success bool            `json:"success"`
	Data    *sessionPayload `json:"data"`
	Message string          `json:"message"`
}

type sessionPayload struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	User         sessions.User `json:"user"`
}

// The refresh endpoint answers with tokens at the top level, not nested
// under data.
type refreshEnvelope struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Client is the auth session client. The current access token lives here, in
// an explicit session context, instead of a process-wide default header: the
// request pipeline reads it through AccessToken and recovers from a 401
// through EnsureFreshToken.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      sessions.Store
	log        zerolog.Logger

	tokenLock sync.RWMutex
	token     string

	// storeLock serializes every read-modify-write of the session store so a
	// profile update cannot clobber a refresh rotation that landed between its
	// Get and its Put.
	storeLock sync.Mutex

	refreshSlot singleflight.Group
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily to set
// timeouts or inject test transports).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// New initializes a Client against baseURL with the given session store.
func New(baseURL string, store sessions.Store, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[auth.New] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[auth.New] session store is required")
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      store,
		log:        zerolog.Nop(),
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

// AccessToken returns the current bearer credential, or "" when
// unauthenticated.
func (c *Client) AccessToken() string {
	c.tokenLock.RLock()
	defer c.tokenLock.RUnlock()
	return c.token
}

// Login exchanges credentials for a session. On success the record is
// persisted whole and the access token becomes the client's bearer
// credential. Nothing is persisted on failure.
func (c *Client) Login(ctx context.Context, creds LoginCredentials) (*sessions.Record, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	record, err := c.postCredentials(ctx, loginPath, creds)
	if err != nil {
		return nil, errors.WithMessage(err, "[Client.Login]")
	}

	if err := c.adoptSession(ctx, record); err != nil {
		return nil, errors.WithMessage(err, "[Client.Login]")
	}

	c.log.Info().Str("user_id", record.User.ID).Msg("logged in")
	return record, nil
}

// Register creates an account and adopts the returned session, with the same
// contract as Login.
func (c *Client) Register(ctx context.Context, creds RegisterCredentials) (*sessions.Record, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	record, err := c.postCredentials(ctx, registerPath, creds)
	if err != nil {
		return nil, errors.WithMessage(err, "[Client.Register]")
	}

	if err := c.adoptSession(ctx, record); err != nil {
		return nil, errors.WithMessage(err, "[Client.Register]")
	}

	c.log.Info().Str("user_id", record.User.ID).Msg("registered")
	return record, nil
}

// Logout deletes the stored session and drops the bearer credential. Calling
// it with no session stored is not an error.
func (c *Client) Logout(ctx context.Context) error {
	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	c.setToken("")
	c.log.Info().Msg("logged out")
	return nil
}

// CurrentSession reads the stored session, re-applying the stored access
// token so a freshly started process resumes authenticated state. Returns
// (nil, nil) when no session is stored.
func (c *Client) CurrentSession(ctx context.Context) (*sessions.Record, error) {
	record, err := c.store.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	if record == nil {
		return nil, nil
	}
	c.setToken(record.AccessToken)
	return record, nil
}

// EnsureFreshToken redeems the stored refresh token for a new access token.
// Concurrent callers share one network call through the coalescing slot:
// refresh tokens are single-use server-side, so a second concurrent
// redemption would fail even though the first succeeded. On unrecoverable
// failure the session is torn down and every waiter gets ErrSessionExpired.
func (c *Client) EnsureFreshToken(ctx context.Context) (string, error) {
	result, err, shared := c.refreshSlot.Do(refreshSlotKey, func() (interface{}, error) {
		return c.refreshSession(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.log.Debug().Msg("attached to in-flight refresh")
	}
	return result.(string), nil
}

// ApplyProfile folds freshly saved profile fields into the stored snapshot.
// The users API calls this after a successful update so the cache keeps up;
// a mismatched or missing session is ignored. The apply callback runs under
// the store guard and must not call back into the client.
func (c *Client) ApplyProfile(ctx context.Context, userID string, apply func(*sessions.User)) error {
	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	record, err := c.store.Get(ctx)
	if err != nil {
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	if record == nil || record.User.ID != userID {
		return nil
	}

	next := *record
	apply(&next.User)
	if err := c.store.Put(ctx, &next); err != nil {
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	return nil
}

func (c *Client) refreshSession(ctx context.Context) (string, error) {
	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	record, err := c.store.Get(ctx)
	if err != nil {
		// Storage failure is not "no session": surface it without tearing
		// the session down.
		return "", errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	if record == nil {
		c.teardown(ctx)
		return "", errors.Wrap(ErrSessionExpired, "no stored session")
	}

	var env refreshEnvelope
	if err := c.postJSON(ctx, refreshPath, refreshRequest{RefreshToken: record.RefreshToken}, &env); err != nil {
		c.teardown(ctx)
		return "", errors.Wrap(ErrSessionExpired, err.Error())
	}
	if !env.Success || env.Token == "" {
		c.teardown(ctx)
		return "", errors.Wrap(ErrSessionExpired, serverMessage(env.Message))
	}

	next := *record
	next.AccessToken = env.Token
	if env.RefreshToken != "" { // server may rotate the refresh token
		next.RefreshToken = env.RefreshToken
	}
	if err := c.store.Put(ctx, &next); err != nil {
		return "", errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	c.setToken(next.AccessToken)
	c.log.Debug().Msg("access token refreshed")
	return next.AccessToken, nil
}

func (c *Client) postCredentials(ctx context.Context, path string, payload interface{}) (*sessions.Record, error) {
	var env envelope
	if err := c.postJSON(ctx, path, payload, &env); err != nil {
		return nil, err
	}
	if !env.Success || env.Data == nil {
		return nil, errors.Wrap(ErrAuthenticationFailed, serverMessage(env.Message))
	}

	record := &sessions.Record{
		AccessToken:  env.Data.Token,
		RefreshToken: env.Data.RefreshToken,
		User:         env.Data.User,
	}
	if !record.Complete() {
		return nil, errors.Wrap(ErrAuthenticationFailed, "incomplete session payload")
	}
	return record, nil
}

// adoptSession persists the record and only then applies the access token:
// the bearer credential never runs ahead of durable state.
func (c *Client) adoptSession(ctx context.Context, record *sessions.Record) error {
	c.storeLock.Lock()
	defer c.storeLock.Unlock()

	if err := c.store.Put(ctx, record); err != nil {
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	c.setToken(record.AccessToken)
	return nil
}

func (c *Client) teardown(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear session storage")
	}
	c.setToken("")
}

func (c *Client) setToken(token string) {
	c.tokenLock.Lock()
	defer c.tokenLock.Unlock()
	c.token = token
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(ErrRequestConfiguration, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrRequestConfiguration, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ErrNoServerResponse, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrap(ErrNoServerResponse, err.Error())
	}

	// The auth endpoints answer failures with the same envelope shape, so
	// decode regardless of status and let the caller read success/message.
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errors.Wrapf(ErrAuthenticationFailed, "server returned status %d", resp.StatusCode)
		}
		return errors.Wrap(ErrAuthenticationFailed, "malformed server response")
	}
	return nil
}

func serverMessage(message string) string {
	if message == "" {
		return "server rejected the request"
	}
	return message
}
