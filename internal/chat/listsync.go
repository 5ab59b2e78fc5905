package chat

import (
	"context"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/transport"
	"go.uber.org/zap"
)

// ListSync keeps a cache of the server's conversation list. The cache is only
// ever replaced by a full snapshot; it is never recomputed locally.
type ListSync struct {
	em      Emitter
	notices notice.Shower
	bus     *bus.Bus
	logger  *zap.Logger

	mu            sync.Mutex
	conversations []Conversation
	loaded        bool
}

// NewListSync creates an empty list cache.
func NewListSync(em Emitter, notices notice.Shower, b *bus.Bus, logger *zap.Logger) *ListSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListSync{em: em, notices: notices, bus: b, logger: logger}
}

// Refresh requests a fresh snapshot from the server.
func (l *ListSync) Refresh(ctx context.Context) error {
	if !l.em.Connected() {
		return transport.ErrNotConnected
	}
	return l.em.Emit(ctx, protocol.GetChatList{UserID: l.em.UserID()})
}

// Conversations returns a copy of the cached list in server order.
func (l *ListSync) Conversations() []Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

// Loaded reports whether a snapshot has been received.
func (l *ListSync) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// ClearUnread zeroes the unread count of counterpartID when its conversation
// view becomes active.
func (l *ListSync) ClearUnread(counterpartID int) {
	l.mu.Lock()
	changed := false
	for i := range l.conversations {
		if l.conversations[i].CounterpartID == counterpartID && l.conversations[i].UnreadCount != 0 {
			l.conversations[i].UnreadCount = 0
			changed = true
		}
	}
	snapshot := l.copyLocked()
	l.mu.Unlock()
	if changed {
		l.publish(snapshot)
	}
}

// Handle consumes one event from the connection.
func (l *ListSync) Handle(ctx context.Context, in protocol.Inbound) {
	switch v := in.(type) {
	case protocol.Connected, protocol.NewMessage, protocol.MessageReceived, protocol.MessagesRead:
		if err := l.Refresh(ctx); err != nil {
			l.logger.Warn("refresh conversation list", zap.String("trigger", in.EventName()), zap.Error(err))
		}

	case protocol.ChatList:
		next := make([]Conversation, 0, len(v.Conversations))
		for _, c := range v.Conversations {
			next = append(next, conversationFromWire(c))
		}
		l.mu.Lock()
		l.conversations = next
		l.loaded = true
		snapshot := l.copyLocked()
		l.mu.Unlock()
		l.publish(snapshot)

	case protocol.ProtocolError:
		if v.Event == protocol.EventChatListError && l.notices != nil {
			l.notices.Show(notice.Error, v.Text())
		}
	}
}

func (l *ListSync) copyLocked() []Conversation {
	out := make([]Conversation, len(l.conversations))
	copy(out, l.conversations)
	return out
}

func (l *ListSync) publish(list []Conversation) {
	if l.bus != nil {
		l.bus.Emit(bus.KindListUpdated, list)
	}
}
