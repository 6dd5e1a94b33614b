// Package cloud is the client side of remote sync: account auth, session
// tokens, sync status and the poll loop.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/larder/internal/apperr"
)

// Config holds sync client configuration.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Credentials are the only inputs validated locally before an auth call.
type Credentials struct {
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"notblank,min=6"`
}

// Session is a signed-in user. The token is a JWT issued by the backend.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthState is published to auth listeners on every sign-in and sign-out.
type AuthState struct {
	SignedIn  bool       `json:"signed_in"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status is the sync status as last observed.
type Status struct {
	LastSyncTime *time.Time `json:"last_sync_time"`
	IsSyncing    bool       `json:"is_syncing"`
	Error        *string    `json:"error"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type syncRequest struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type syncResponse struct {
	Payload  json.RawMessage `json:"payload"`
	SyncedAt time.Time       `json:"synced_at"`
}

type statusResponse struct {
	LastSyncTime *time.Time `json:"last_sync_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the sync backend. Local data never depends on it: every
// failure is reported to the caller and nothing local is touched.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	session    *Session
	status     Status
	listeners  []func(AuthState)

	// cancelSession aborts requests made on behalf of the current session.
	sessionCtx    context.Context
	cancelSession context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	stopped   chan struct{}
}

// NewClient creates a sync client. Timeout defaults to 15s and PollInterval to 5s.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sessionCtx:    ctx,
		cancelSession: cancel,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Configured reports whether a backend URL is set.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != ""
}

// OnAuthChange registers fn to receive every auth state change.
func (c *Client) OnAuthChange(fn func(AuthState)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Client) publish() {
	c.mu.RLock()
	st := c.authStateLocked()
	fns := slices.Clone(c.listeners)
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (c *Client) authStateLocked() AuthState {
	if c.session == nil {
		return AuthState{}
	}
	exp := c.session.ExpiresAt
	return AuthState{SignedIn: true, UserID: c.session.UserID, Email: c.session.Email, ExpiresAt: &exp}
}

// AuthState returns the current auth state.
func (c *Client) AuthState() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authStateLocked()
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Status returns the cached sync status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// CreateAccount registers a new account and signs it in.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/v1/accounts", email, password)
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/v1/sessions", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*Session, error) {
	creds := Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := apperr.Validate(creds); err != nil {
		return nil, err
	}

	var ar authResponse
	if err := c.do(ctx, http.MethodPost, path, "", creds, &ar); err != nil {
		return nil, err
	}
	sess, err := sessionFromToken(ar.Token)
	if err != nil {
		return nil, err
	}
	if sess.Email == "" {
		sess.Email = ar.Email
	}
	if sess.UserID == "" {
		sess.UserID = ar.UserID
	}
	c.Restore(sess)
	return c.Session(), nil
}

// sessionClaims is the claim set issued by the sync backend.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// sessionFromToken reads the user id and expiry from a session token. The
// signature is not checked: only the backend can verify it.
func sessionFromToken(token string) (*Session, error) {
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	sess := &Session{Token: token, UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Restore installs a previously saved session. Expired sessions are ignored.
func (c *Client) Restore(sess *Session) bool {
	if sess == nil || sess.Token == "" || (!sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt)) {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancelSession()
	s := *sess
	c.session = &s
	c.sessionCtx, c.cancelSession = ctx, cancel
	c.status = Status{}
	c.mu.Unlock()

	c.publish()
	return true
}

// SignOut clears the session and aborts any in-flight sync.
func (c *Client) SignOut() {
	c.endSession(nil)
}

// endSession drops the session and resets the sync status, leaving errMsg
// as the status error so the reason for a forced sign-out stays visible.
func (c *Client) endSession(errMsg *string) {
	c.mu.Lock()
	wasSignedIn := c.session != nil
	c.session = nil
	c.cancelSession()
	c.status = Status{Error: errMsg}
	c.mu.Unlock()

	if wasSignedIn {
		c.publish()
	}
}

// ForceSync uploads payload for userID and returns the merged payload the
// backend now holds. It fails with ErrAuthRequired when signed out and with
// a retryable *apperr.NetworkError when the backend cannot be reached in time.
func (c *Client) ForceSync(ctx context.Context, userID string, payload json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, apperr.ErrAuthRequired
	}
	if userID == "" {
		userID = c.session.UserID
	}
	token := c.session.Token
	sessCtx := c.sessionCtx
	c.status.IsSyncing = true
	c.mu.Unlock()

	ctx, stop := mergeCancel(ctx, sessCtx)
	defer stop()

	var sr syncResponse
	err := c.do(ctx, http.MethodPost, "/v1/sync", token, syncRequest{UserID: userID, Payload: payload}, &sr)

	c.mu.Lock()
	c.status.IsSyncing = false
	if err != nil {
		msg := err.Error()
		c.status.Error = &msg
	} else {
		t := sr.SyncedAt
		if t.IsZero() {
			t = time.Now()
		}
		c.status.LastSyncTime = &t
		c.status.Error = nil
	}
	c.mu.Unlock()

	if errors.Is(err, apperr.ErrAuthRequired) {
		msg := err.Error()
		c.endSession(&msg)
	}
	if err != nil {
		return nil, err
	}
	return sr.Payload, nil
}

// PollStatus refreshes the last sync time from the backend.
func (c *Client) PollStatus(ctx context.Context) error {
	c.mu.RLock()
	if c.session == nil {
		c.mu.RUnlock()
		return apperr.ErrAuthRequired
	}
	token := c.session.Token
	sessCtx := c.sessionCtx
	c.mu.RUnlock()

	ctx, stop := mergeCancel(ctx, sessCtx)
	defer stop()

	var sr statusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sync/status", token, nil, &sr); err != nil {
		return err
	}
	c.mu.Lock()
	if sr.LastSyncTime != nil {
		c.status.LastSyncTime = sr.LastSyncTime
	}
	c.mu.Unlock()
	return nil
}

// mergeCancel returns a context that is cancelled when either parent is.
func mergeCancel(ctx, other context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	if !c.Configured() {
		return &apperr.NetworkError{Op: method + " " + path, Err: errors.New("sync backend not configured")}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	op := method + " " + path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.NetworkError{Op: op, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er errorResponse
		json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		remote := &apperr.RemoteError{Status: resp.StatusCode, Message: er.Error}
		switch {
		case resp.StatusCode == http.StatusUnauthorized && token != "":
			return fmt.Errorf("%w: %w", apperr.ErrAuthRequired, remote)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &apperr.NetworkError{Op: op, Err: remote, Retryable: true}
		}
		return remote
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &apperr.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err), Retryable: true}
		}
	}
	return nil
}

// Start runs poll every PollInterval while signed in, until Stop is called
// or ctx is done. Polling is independent of local writes.
func (c *Client) Start(ctx context.Context, poll func(ctx context.Context) error) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go c.loop(ctx, poll)
	})
}

func (c *Client) loop(ctx context.Context, poll func(ctx context.Context) error) {
	defer close(c.stopped)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.Session() == nil {
				continue
			}
			if err := poll(ctx); err != nil {
				c.logger.Warn("sync poll failed", "error", err)
			}
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the poll loop started by Start. It is safe to call more than
// once and without Start.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if started {
		<-c.stopped
	}
}
