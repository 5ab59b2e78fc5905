// Package chattest provides an in-process fake of the chat backend: the
// real-time WebSocket endpoint and the REST auth endpoints.
package chattest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Handler reacts to a frame received from a client.
type Handler func(p *Peer, f protocol.Frame)

// Server is a fake chat backend.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	rejecting  bool
	handshakes int
	peers      map[*Peer]struct{}
	handlers   map[string]Handler
	received   []protocol.Frame
	notify     chan struct{}

	auth *authState
}

// Peer is one client connection on the fake server.
type Peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewServer starts a fake backend that accepts the given bearer token on
// its WebSocket endpoint. The server is closed when the test ends.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()
	s := &Server{
		token:    token,
		peers:    make(map[*Peer]struct{}),
		handlers: make(map[string]Handler),
		notify:   make(chan struct{}, 1),
		auth:     newAuthState(token),
	}

	r := chi.NewRouter()
	r.Get("/ws", s.serveWS)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.auth.login)
		r.Post("/auth/refresh", s.auth.refresh)
		r.Get("/users/me", s.auth.me)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// WSURL returns the WebSocket endpoint URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// APIURL returns the REST API base URL.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// Handle registers a scripted reply for an outbound event name.
func (s *Server) Handle(event string, h Handler) {
	s.mu.Lock()
	s.handlers[event] = h
	s.mu.Unlock()
}

// Reject makes the next handshakes fail with 503 while on is true.
func (s *Server) Reject(on bool) {
	s.mu.Lock()
	s.rejecting = on
	s.mu.Unlock()
}

// Handshakes returns the number of accepted WebSocket handshakes.
func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes
}

// Push sends an event to every connected peer.
func (s *Server) Push(event string, data any) {
	s.mu.Lock()
	peers := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.Send(event, data)
	}
}

// DropConnections closes every open peer as a network failure would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[*Peer]struct{})
	s.mu.Unlock()
	for p := range peers {
		_ = p.conn.CloseNow()
	}
}

// Received returns every frame received so far with the given event name.
// An empty name returns all frames.
func (s *Server) Received(event string) []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Frame
	for _, f := range s.received {
		if event == "" || f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// WaitFor blocks until at least n frames of the event were received.
func (s *Server) WaitFor(t testing.TB, event string, n int) []protocol.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := s.Received(event); len(got) >= n {
			return got
		}
		select {
		case <-s.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timeout waiting for %d %q frames, got %d", n, event, len(s.Received(event)))
			return nil
		}
	}
}

// Send writes an event to this peer.
func (p *Peer) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocol.Frame{Event: event, Data: raw})
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rejecting := s.rejecting
	want := s.token
	s.mu.Unlock()

	if rejecting {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" || (want != "" && got != want && got != s.AccessToken()) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	p := &Peer{conn: conn}
	s.mu.Lock()
	s.handshakes++
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = conn.CloseNow()
	}()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		f, err := protocol.ParseFrame(data)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, f)
		h := s.handlers[f.Event]
		s.mu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
		if h != nil {
			h(p, f)
		}
	}
}
