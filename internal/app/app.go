// Package app owns the signed-in session of a daemon: it restores stored
// credentials, opens the chat connection and builds the chat client.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/restapi"
	"github.com/Zain0205/travelin-chat/internal/store"
	"go.uber.org/zap"
)

// ErrLoggedOut is returned by operations that need a signed-in user.
var ErrLoggedOut = errors.New("not logged in")

// Identity is the signed-in user.
type Identity struct {
	UserID int
	Role   string
}

// Session is the payload of session.logged_in and session.logged_out.
type Session struct {
	UserID int
	Role   string
	Reason string `json:",omitempty"`
}

// App is the top-level application context of one profile.
type App struct {
	mgr     *conn.Manager
	api     *restapi.Client
	tokens  restapi.TokenStore
	notices notice.Shower
	bus     *bus.Bus
	cfg     chat.Config
	logger  *zap.Logger

	mu       sync.Mutex
	client   *chat.Client
	identity *Identity
}

// New creates an App. Nothing is connected until Restore or Login.
func New(mgr *conn.Manager, api *restapi.Client, tokens restapi.TokenStore, notices notice.Shower, b *bus.Bus, cfg chat.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		mgr:     mgr,
		api:     api,
		tokens:  tokens,
		notices: notices,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
	}
}

// Restore reconnects with the stored credentials, refreshing the access
// token first when the backend rejects it. It reports whether a session
// was restored.
func (a *App) Restore(ctx context.Context) (bool, error) {
	creds, err := a.tokens.LoadCredentials(ctx)
	if errors.Is(err, store.ErrNoCredentials) {
		a.logger.Info("no stored session, login required")
		a.bus.Emit(bus.KindLoggedOut, Session{Reason: "login required"})
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}

	creds, err = a.validate(ctx, creds)
	if err != nil {
		return false, err
	}
	if err := a.connect(ctx, creds); err != nil {
		return false, err
	}
	return true, nil
}

// Login authenticates against the REST backend and opens the connection.
func (a *App) Login(ctx context.Context, email, password string) (Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Identity{}, &restapi.APIError{Status: 400, Message: "email and password are required"}
	}
	if _, ok := a.Identity(); ok {
		if err := a.Logout(ctx); err != nil {
			return Identity{}, err
		}
	}
	creds, err := a.api.Login(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	if err := a.connect(ctx, creds); err != nil {
		return Identity{}, err
	}
	return Identity{UserID: creds.UserID, Role: creds.Role}, nil
}

// Logout closes the connection and forgets the stored credentials.
func (a *App) Logout(ctx context.Context) error {
	a.disconnect("logout")
	if err := a.api.Logout(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Retry re-establishes the connection after it gave up. A rotated access
// token replaces the one the failed connection used.
func (a *App) Retry(ctx context.Context) error {
	if _, ok := a.Identity(); !ok {
		return ErrLoggedOut
	}
	creds, err := a.tokens.LoadCredentials(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoCredentials) {
			a.disconnect("session expired")
			return restapi.ErrSessionExpired
		}
		return err
	}
	creds, err = a.validate(ctx, creds)
	if err != nil {
		return err
	}

	if a.mgr.Token() != creds.AccessToken {
		a.logger.Info("access token rotated, reopening connection")
		_ = a.mgr.Close()
		_, err = a.mgr.GetOrCreate(ctx, creds.UserID, creds.AccessToken)
		return err
	}
	_, err = a.mgr.ForceReconnect(ctx)
	return err
}

// Chat returns the chat client of the signed-in user.
func (a *App) Chat() (*chat.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil, ErrLoggedOut
	}
	return a.client, nil
}

// Identity returns the signed-in user.
func (a *App) Identity() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.identity == nil {
		return Identity{}, false
	}
	return *a.identity, true
}

// Shutdown closes the connection but keeps the stored credentials.
func (a *App) Shutdown() {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.identity = nil
	a.mu.Unlock()
	if client != nil {
		client.Close()
	}
	_ = a.mgr.Close()
}

// validate checks the stored access token against the backend. A network
// failure keeps the stored token so the connection can retry on its own.
func (a *App) validate(ctx context.Context, creds *store.Credentials) (*store.Credentials, error) {
	if _, err := a.api.Me(ctx); err != nil {
		if errors.Is(err, restapi.ErrSessionExpired) {
			a.disconnect("session expired")
			return nil, err
		}
		a.logger.Warn("could not validate session, using stored token", zap.Error(err))
		return creds, nil
	}
	fresh, err := a.tokens.LoadCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload credentials: %w", err)
	}
	return fresh, nil
}

func (a *App) connect(ctx context.Context, creds *store.Credentials) error {
	a.mu.Lock()
	if a.client == nil {
		// Subscribe before dialing so the first Connected is observed.
		a.client = chat.NewClient(a.mgr, a.notices, a.bus, a.cfg, a.logger.Named("chat"))
	}
	a.identity = &Identity{UserID: creds.UserID, Role: creds.Role}
	a.mu.Unlock()

	if _, err := a.mgr.GetOrCreate(ctx, creds.UserID, creds.AccessToken); err != nil {
		a.disconnect(err.Error())
		return err
	}
	a.logger.Info("session active", zap.Int("user_id", creds.UserID), zap.String("role", creds.Role))
	a.bus.Emit(bus.KindLoggedIn, Session{UserID: creds.UserID, Role: creds.Role})
	return nil
}

func (a *App) disconnect(reason string) {
	a.mu.Lock()
	client := a.client
	id := a.identity
	a.client = nil
	a.identity = nil
	a.mu.Unlock()

	if client != nil {
		client.Close()
	}
	_ = a.mgr.Close()
	if id != nil {
		a.logger.Info("session ended", zap.Int("user_id", id.UserID), zap.String("reason", reason))
		a.bus.Emit(bus.KindLoggedOut, Session{UserID: id.UserID, Role: id.Role, Reason: reason})
	}
}
