// Package restapi is the bearer-token client of the backend REST API.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/Zain0205/travelin-chat/internal/store"
	"go.uber.org/zap"
)

// ErrSessionExpired is returned when the access token was rejected and could
// not be refreshed. Stored credentials have been cleared.
var ErrSessionExpired = errors.New("session expired, please log in again")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// TokenStore persists the session between runs.
type TokenStore interface {
	LoadCredentials(ctx context.Context) (*store.Credentials, error)
	SaveCredentials(ctx context.Context, c store.Credentials) error
	UpdateTokens(ctx context.Context, access, refresh string) error
	ClearCredentials(ctx context.Context) error
}

// User is the profile of the signed-in user.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Client calls the REST API. On a 401 it refreshes the access token once
// and retries the original request once.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *zap.Logger

	refreshMu sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL, e.g. "https://api.example.com/api".
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
	User         User   `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates with email and password and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*store.Credentials, error) {
	var resp loginResponse
	status, err := c.send(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("login: unexpected status %d", status)
	}
	if resp.AccessToken == "" || resp.User.ID <= 0 {
		return nil, fmt.Errorf("login: incomplete response")
	}
	role := resp.Role
	if role == "" {
		role = resp.User.Role
	}
	creds := store.Credentials{
		UserID:       resp.User.ID,
		Role:         role,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if err := c.tokens.SaveCredentials(ctx, creds); err != nil {
		return nil, err
	}
	c.logger.Info("logged in", zap.Int("user_id", creds.UserID), zap.String("role", creds.Role))
	return &creds, nil
}

// Refresh exchanges the refresh token for a new access token. When the
// exchange fails the stored credentials are cleared and ErrSessionExpired
// is returned.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	creds, err := c.tokens.LoadCredentials(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoCredentials) {
			return ErrSessionExpired
		}
		return err
	}
	if creds.RefreshToken == "" {
		return c.expire(ctx, "no refresh token")
	}

	var resp refreshResponse
	_, err = c.send(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: creds.RefreshToken}, &resp)
	if err != nil || resp.AccessToken == "" {
		reason := "empty access token"
		if err != nil {
			reason = err.Error()
		}
		return c.expire(ctx, reason)
	}
	refresh := resp.RefreshToken
	if refresh == "" {
		refresh = creds.RefreshToken
	}
	if err := c.tokens.UpdateTokens(ctx, resp.AccessToken, refresh); err != nil {
		return err
	}
	metrics.RESTRefreshes.WithLabelValues("ok").Inc()
	c.logger.Info("access token refreshed")
	return nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout forgets the stored session.
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.ClearCredentials(ctx)
}

// do performs an authenticated request. A 401 triggers a single refresh and
// a single retry of the same request.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	retried := false
	for {
		creds, err := c.tokens.LoadCredentials(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNoCredentials) {
				return ErrSessionExpired
			}
			return err
		}
		_, err = c.send(ctx, method, path, creds.AccessToken, in, out)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || retried {
			return err
		}
		retried = true
		c.logger.Debug("access token rejected, refreshing", zap.String("path", path))
		if err := c.Refresh(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) expire(ctx context.Context, reason string) error {
	metrics.RESTRefreshes.WithLabelValues("failed").Inc()
	c.logger.Warn("token refresh failed, clearing session", zap.String("reason", reason))
	if err := c.tokens.ClearCredentials(ctx); err != nil {
		c.logger.Error("clear credentials", zap.Error(err))
	}
	return ErrSessionExpired
}

func (c *Client) send(ctx context.Context, method, path, token string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
