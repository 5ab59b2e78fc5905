// Package conn owns the single process-wide real-time connection and drives
// its state machine from transport callbacks.
package conn

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/transport"
	"go.uber.org/zap"
)

// Notice texts raised by the manager.
const (
	TextConnectionLost  = "Connection lost. Reconnecting..."
	TextConnectFailed   = "Unable to connect to chat server"
	TextReconnectGaveUp = "Could not reach chat server. Retry to reconnect."
)

// InvalidSessionError is returned when the identity used to open the
// connection is unusable. No connection is attempted.
type InvalidSessionError struct {
	Reason string
}

func (e *InvalidSessionError) Error() string {
	return "invalid session: " + e.Reason
}

// Config configures the manager.
type Config struct {
	URL       string
	Transport transport.Options
	Factory   transport.Factory
}

// Handler receives inbound events and the synthetic Connected and
// Disconnected notifications.
type Handler func(ctx context.Context, in protocol.Inbound)

// Handle is the live connection returned by GetOrCreate.
type Handle struct {
	userID int
	token  string
	tr     transport.Transport
	done   chan struct{}
}

// UserID returns the user the connection is authenticated as.
func (h *Handle) UserID() int { return h.userID }

// Manager owns at most one connection at a time.
type Manager struct {
	cfg     Config
	machine *status.Machine
	notices notice.Shower
	logger  *zap.Logger

	mu         sync.Mutex
	handle     *Handle
	userID     int
	token      string
	retryCount int
	bannerID   string

	subMu   sync.Mutex
	subs    []*Subscription
	nextSub uint64
}

// NewManager creates a manager. Nothing is dialed until GetOrCreate.
func NewManager(cfg Config, machine *status.Machine, notices notice.Shower, logger *zap.Logger) *Manager {
	if cfg.Factory == nil {
		cfg.Factory = transport.NewFactory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(nil)
	}
	return &Manager{
		cfg:     cfg,
		machine: machine,
		notices: notices,
		logger:  logger,
	}
}

// GetOrCreate returns the existing connection unchanged or, if none exists,
// opens one authenticated as userID with token.
func (m *Manager) GetOrCreate(ctx context.Context, userID int, token string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return m.handle, nil
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &InvalidSessionError{Reason: "auth token is required"}
	}
	if userID <= 0 {
		return nil, &InvalidSessionError{Reason: fmt.Sprintf("user id %d is not a positive integer", userID)}
	}

	opts := m.cfg.Transport
	opts.URL = m.cfg.URL
	opts.Token = token
	if opts.Logger == nil {
		opts.Logger = m.logger.Named("transport")
	}

	h := &Handle{
		userID: userID,
		token:  token,
		tr:     m.cfg.Factory(opts),
		done:   make(chan struct{}),
	}
	m.handle = h
	m.userID = userID
	m.token = token
	m.retryCount = 0

	m.transition(status.Connecting)
	m.logger.Info("opening chat connection", zap.Int("user_id", userID), zap.String("url", m.cfg.URL))
	h.tr.Open()
	go m.loop(h)
	return h, nil
}

// ForceReconnect discards the current transport entirely and opens a new
// one with the stored identity. It must not be called from a Handler.
func (m *Manager) ForceReconnect(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	old := m.handle
	userID, token := m.userID, m.token
	m.handle = nil
	m.mu.Unlock()

	if userID == 0 {
		return nil, &InvalidSessionError{Reason: "no session to reconnect"}
	}
	m.teardown(old)
	m.machine.Reset()
	m.logger.Info("forcing reconnect", zap.Int("user_id", userID))
	return m.GetOrCreate(ctx, userID, token)
}

// Close tears the connection down and forgets the identity.
func (m *Manager) Close() error {
	m.mu.Lock()
	old := m.handle
	m.handle = nil
	m.userID = 0
	m.token = ""
	m.retryCount = 0
	m.mu.Unlock()

	m.teardown(old)
	m.machine.Reset()
	return nil
}

// Emit sends an outbound command over the connection.
func (m *Manager) Emit(ctx context.Context, out protocol.Outbound) error {
	if !m.machine.Is(status.Connected) {
		return transport.ErrNotConnected
	}
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		return transport.ErrNotConnected
	}
	return h.tr.Emit(ctx, out)
}

// Connected reports whether the connection is usable.
func (m *Manager) Connected() bool {
	return m.machine.Is(status.Connected)
}

// UserID returns the identity of the current connection, or 0.
func (m *Manager) UserID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Token returns the auth token of the current identity, or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// State returns the connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// RetryCount returns the number of failed connect attempts since the last
// successful connect.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

func (m *Manager) teardown(h *Handle) {
	if h == nil {
		return
	}
	if err := h.tr.Close(); err != nil {
		m.logger.Warn("closing transport", zap.Error(err))
	}
	<-h.done
}

func (m *Manager) loop(h *Handle) {
	defer close(h.done)
	ctx := context.Background()
	for evt := range h.tr.Events() {
		m.handleEvent(ctx, evt)
	}
}

func (m *Manager) handleEvent(ctx context.Context, evt transport.Event) {
	switch evt.Kind {
	case transport.Connect, transport.Reconnect:
		m.mu.Lock()
		m.retryCount = 0
		banner := m.bannerID
		m.bannerID = ""
		m.mu.Unlock()
		m.transition(status.Connected)
		if banner != "" && m.notices != nil {
			m.notices.Dismiss(banner)
		}
		m.logger.Info("chat connected", zap.Stringer("kind", evt.Kind))
		m.dispatch(ctx, protocol.Connected{Reconnect: evt.Kind == transport.Reconnect})

	case transport.Disconnect:
		reason := "connection closed"
		if evt.Err != nil {
			reason = evt.Err.Error()
		}
		m.logger.Warn("chat disconnected", zap.String("reason", reason))
		m.transition(status.Reconnecting)
		m.showBanner(notice.Warn, TextConnectionLost)
		m.dispatch(ctx, protocol.Disconnected{Reason: reason})

	case transport.ConnectError:
		m.mu.Lock()
		m.retryCount++
		m.mu.Unlock()
		m.logger.Warn("chat connect error", zap.Int("attempt", evt.Attempt), zap.Error(evt.Err))
		if !m.machine.Is(status.Failed) {
			m.transition(status.Failed)
		}
		m.showBanner(notice.Error, TextConnectFailed)

	case transport.ReconnectFailed:
		m.logger.Error("chat reconnect attempts exhausted", zap.Int("attempt", evt.Attempt))
		if !m.machine.Is(status.Failed) {
			m.transition(status.Failed)
		}
		m.showBanner(notice.Error, TextReconnectGaveUp)

	case transport.Message:
		in, err := protocol.Decode(evt.Frame)
		if err != nil {
			metrics.RejectedFrames.Inc()
			m.logger.Warn("rejected inbound frame", zap.String("event", evt.Frame.Event), zap.Error(err))
			if fallback, ok := protocol.Fallback(evt.Frame); ok {
				m.dispatch(ctx, fallback)
			}
			return
		}
		m.dispatch(ctx, in)
	}
}

func (m *Manager) transition(to status.State) {
	from := m.machine.Current()
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("ignored transition", zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(err))
		return
	}
	metrics.ConnectionTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Manager) showBanner(level notice.Level, text string) {
	if m.notices == nil {
		return
	}
	n := m.notices.Show(level, text)
	m.mu.Lock()
	m.bannerID = n.ID
	m.mu.Unlock()
}
