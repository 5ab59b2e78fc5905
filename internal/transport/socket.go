package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Socket is the WebSocket transport.
type Socket struct {
	opts   Options
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool
}

// New creates a WebSocket transport. Nothing is dialed until Open.
func New(opts Options) *Socket {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		opts:   opts,
		events: make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Open implements Transport.
func (s *Socket) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	go s.run()
}

// Events implements Transport.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Emit implements Transport.
func (s *Socket) Emit(ctx context.Context, out protocol.Outbound) error {
	data, err := protocol.Encode(out)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", out.EventName(), err)
	}
	return nil
}

// Close implements Transport.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		// Cancelling the read context may already have closed it.
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	if !started {
		close(s.events)
		return nil
	}
	<-s.done
	return nil
}

func (s *Socket) run() {
	defer close(s.done)
	defer close(s.events)

	attempt := 0
	connected := false
	for {
		if attempt > 0 && !s.sleep(s.opts.Backoff) {
			return
		}

		conn, err := s.dial()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.opts.Logger.Debug("dial failed", zap.Int("attempt", attempt), zap.Error(err))
			s.publish(Event{Kind: ConnectError, Err: err, Attempt: attempt})
			if !s.opts.AutoReconnect || attempt >= s.opts.MaxAttempts {
				s.publish(Event{Kind: ReconnectFailed, Attempt: attempt})
				return
			}
			attempt++
			continue
		}

		kind := Connect
		if connected || attempt > 0 {
			kind = Reconnect
		}
		if !s.setConn(conn) {
			_ = conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		}
		s.publish(Event{Kind: kind, Attempt: attempt})
		connected = true
		attempt = 0

		err = s.readLoop(conn)
		s.setConn(nil)
		if s.ctx.Err() != nil {
			return
		}
		s.publish(Event{Kind: Disconnect, Err: err})
		if !s.opts.AutoReconnect {
			return
		}
		attempt = 1
	}
}

func (s *Socket) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.opts.Token)
	conn, resp, err := websocket.Dial(ctx, s.opts.URL, &websocket.DialOptions{
		HTTPClient: s.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	conn.SetReadLimit(s.opts.ReadLimit)
	return conn, nil
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		f, err := protocol.ParseFrame(data)
		if err != nil {
			s.opts.Logger.Warn("dropping unparsable frame", zap.Error(err))
			continue
		}
		s.publish(Event{Kind: Message, Frame: f})
	}
}

// setConn stores the live connection. It refuses once the socket is closed.
func (s *Socket) setConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil && s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *Socket) publish(evt Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *Socket) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
