// Package transport provides the real-time WebSocket channel to the chat
// server, with the reconnect policy built in.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Zain0205/travelin-chat/internal/protocol"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Emit while no connection is open.
var ErrNotConnected = errors.New("not connected to chat server")

// Kind identifies a transport event.
type Kind int

const (
	Connect Kind = iota
	Disconnect
	ConnectError
	Reconnect
	ReconnectFailed
	Message
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case ConnectError:
		return "connect_error"
	case Reconnect:
		return "reconnect"
	case ReconnectFailed:
		return "reconnect_failed"
	case Message:
		return "message"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a lifecycle signal or an inbound frame, in delivery order.
type Event struct {
	Kind    Kind
	Frame   protocol.Frame
	Err     error
	Attempt int
}

// Options configures a transport.
type Options struct {
	URL           string
	Token         string
	AutoReconnect bool
	MaxAttempts   int
	Backoff       time.Duration
	DialTimeout   time.Duration
	ReadLimit     int64
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// DefaultOptions returns auto-reconnect with 5 attempts and a fixed 1s backoff.
func DefaultOptions() Options {
	return Options{
		AutoReconnect: true,
		MaxAttempts:   5,
		Backoff:       time.Second,
		DialTimeout:   10 * time.Second,
		ReadLimit:     1 << 20,
	}
}

func (o *Options) defaults() {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Transport is a bidirectional event channel to the chat server.
type Transport interface {
	// Open starts connecting in the background. Calling it twice is a no-op.
	Open()
	// Emit writes one outbound command on the open connection.
	Emit(ctx context.Context, out protocol.Outbound) error
	// Events delivers lifecycle events and inbound frames. It is closed once
	// the transport stops for good.
	Events() <-chan Event
	// Close tears the transport down without reconnecting.
	Close() error
}

// Factory builds a transport for the given options.
type Factory func(Options) Transport

// NewFactory returns the WebSocket factory.
func NewFactory() Factory {
	return func(opts Options) Transport {
		return New(opts)
	}
}
