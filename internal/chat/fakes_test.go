package chat

import (
	"context"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/transport"
)

type fakeEmitter struct {
	mu        sync.Mutex
	connected bool
	userID    int
	sent      []protocol.Outbound
	err       error
	// block, when set, holds every Emit until it is closed.
	block chan struct{}
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{connected: true, userID: 7}
}

func (f *fakeEmitter) Emit(_ context.Context, out protocol.Outbound) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, out)
	return nil
}

func (f *fakeEmitter) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEmitter) UserID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeEmitter) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeEmitter) emitted(event string) []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Outbound
	for _, o := range f.sent {
		if event == "" || o.EventName() == event {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeEmitter) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type fakeNotices struct {
	mu        sync.Mutex
	shown     []notice.Notice
	dismissed []string
}

func (n *fakeNotices) Show(level notice.Level, text string) notice.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	nt := notice.Notice{ID: text, Level: level, Text: text}
	n.shown = append(n.shown, nt)
	return nt
}

func (n *fakeNotices) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, id)
}

func (n *fakeNotices) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.shown) == 0 {
		return ""
	}
	return n.shown[len(n.shown)-1].Text
}

func (n *fakeNotices) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}
