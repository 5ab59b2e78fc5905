package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"go.uber.org/zap"
)

// Session is the state of the conversation currently open in the view.
type Session struct {
	em      Emitter
	notices notice.Shower
	bus     *bus.Bus
	logger  *zap.Logger
	limit   int

	// writeMu orders the join and history requests. It is taken before mu.
	writeMu sync.Mutex

	mu             sync.Mutex
	counterpart    int
	messages       []Message
	loading        bool
	partnerTyping  bool
	connectionLost bool
	// history holds the partners of unanswered getChatHistory requests,
	// oldest first. Pages without a partner id belong to the head.
	history []int
}

// NewSession creates an empty session. Nil bus and notices are allowed.
func NewSession(em Emitter, notices notice.Shower, b *bus.Bus, cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		em:      em,
		notices: notices,
		bus:     b,
		logger:  logger,
		limit:   cfg.withDefaults().HistoryLimit,
	}
}

// Open makes counterpartID the open conversation. The thread is cleared and
// marked loading. While disconnected the join and history requests wait for
// the next Connected event.
func (s *Session) Open(ctx context.Context, counterpartID int) error {
	if counterpartID <= 0 {
		return &PreconditionError{Reason: TextNoConversation}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.counterpart = counterpartID
	s.messages = nil
	s.loading = true
	s.partnerTyping = false
	var outs []protocol.Outbound
	if s.em.Connected() {
		outs = s.subscribeLocked()
	}
	thread := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(thread)
	return s.emitSubscribe(ctx, counterpartID, outs)
}

// Close leaves the room of counterpartID. It is a no-op while disconnected.
func (s *Session) Close(ctx context.Context, counterpartID int) error {
	s.mu.Lock()
	if s.counterpart == counterpartID {
		s.counterpart = 0
		s.messages = nil
		s.loading = false
		s.partnerTyping = false
	}
	s.mu.Unlock()

	if !s.em.Connected() || counterpartID <= 0 {
		return nil
	}
	return s.em.Emit(ctx, protocol.LeaveChatRoom{UserID: s.em.UserID(), PartnerID: counterpartID})
}

// Thread returns a snapshot of the open conversation.
func (s *Session) Thread() Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CounterpartID returns the open conversation, or 0.
func (s *Session) CounterpartID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpart
}

// Handle consumes one event from the connection.
func (s *Session) Handle(ctx context.Context, in protocol.Inbound) {
	switch v := in.(type) {
	case protocol.Connected:
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		s.mu.Lock()
		s.connectionLost = false
		s.history = nil
		partner := s.counterpart
		var outs []protocol.Outbound
		if partner != 0 {
			s.loading = true
			outs = s.subscribeLocked()
		}
		thread := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(thread)
		if err := s.emitSubscribe(ctx, partner, outs); err != nil {
			s.logger.Warn("rejoin after connect", zap.Int("partner_id", partner), zap.Error(err))
		}

	case protocol.Disconnected:
		s.mu.Lock()
		s.connectionLost = true
		s.partnerTyping = false
		s.history = nil
		thread := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(thread)

	case protocol.NewMessage:
		s.receive(ctx, v.Message)

	case protocol.MessageReceived:
		if v.Message != nil {
			s.receive(ctx, *v.Message)
		}

	case protocol.ChatHistory:
		s.mu.Lock()
		partner := s.answerHistoryLocked(v.PartnerID)
		if s.counterpart == 0 || partner != s.counterpart {
			s.mu.Unlock()
			s.logger.Debug("dropped history page", zap.Int("partner_id", partner))
			return
		}
		msgs := make([]Message, 0, len(v.Messages))
		for _, m := range v.Messages {
			msgs = append(msgs, messageFromWire(m))
		}
		// Local sends still awaiting an ack are not part of the server page.
		for _, m := range s.messages {
			if m.LocalID != "" && m.State == Pending {
				msgs = append(msgs, m)
			}
		}
		s.messages = msgs
		s.loading = false
		thread := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(thread)

	case protocol.UserTyping:
		s.mu.Lock()
		if v.UserID != s.counterpart || s.counterpart == 0 {
			s.mu.Unlock()
			return
		}
		s.partnerTyping = v.IsTyping
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Emit(bus.KindPartnerTyping, v)
		}

	case protocol.ProtocolError:
		switch v.Event {
		case protocol.EventChatHistoryError:
			s.mu.Lock()
			if partner := s.answerHistoryLocked(0); partner != s.counterpart {
				s.mu.Unlock()
				s.logger.Debug("history error for a closed conversation", zap.Int("partner_id", partner))
				return
			}
			s.loading = false
			thread := s.snapshotLocked()
			s.mu.Unlock()
			s.notify(v.Text())
			s.publish(thread)
		case protocol.EventMarkAsReadError:
			s.notify(v.Text())
		}
	}
}

// receive appends m when it belongs to the open conversation and marks it
// read when the counterpart sent it.
func (s *Session) receive(ctx context.Context, m protocol.ChatMessage) {
	me := s.em.UserID()
	s.mu.Lock()
	partner := s.counterpart
	inThread := partner != 0 &&
		((m.SenderID == partner && m.ReceiverID == me) || (m.SenderID == me && m.ReceiverID == partner))
	if !inThread || s.hasLocked(m) {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, messageFromWire(m))
	thread := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(thread)

	if m.SenderID == partner {
		if err := s.em.Emit(ctx, protocol.MarkAsRead{UserID: me, SenderID: partner}); err != nil {
			s.logger.Warn("mark as read", zap.Int("partner_id", partner), zap.Error(err))
		}
	}
}

// hasLocked reports whether m is already in the thread, either by server id
// or as the echo of a local send. An echo adopts the server identity.
func (s *Session) hasLocked(m protocol.ChatMessage) bool {
	for i := range s.messages {
		cur := &s.messages[i]
		if m.ID != 0 && cur.ID == m.ID {
			return true
		}
		if cur.LocalID != "" && cur.ID == 0 && cur.State != Failed &&
			cur.SenderID == m.SenderID && cur.ReceiverID == m.ReceiverID && cur.Body == m.Body {
			cur.ID = m.ID
			if !m.CreatedAt.IsZero() {
				cur.CreatedAt = m.CreatedAt
			}
			return true
		}
	}
	return false
}

// appendLocal adds an optimistic message when its conversation is open.
func (s *Session) appendLocal(m Message) bool {
	s.mu.Lock()
	if s.counterpart == 0 || s.counterpart != m.ReceiverID {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, m)
	thread := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(thread)
	return true
}

// resolveLocal moves the local message to its final delivery state.
func (s *Session) resolveLocal(localID string, state DeliveryState, ack *protocol.ChatMessage) {
	s.mu.Lock()
	found := false
	for i := range s.messages {
		cur := &s.messages[i]
		if cur.LocalID != localID || cur.State != Pending {
			continue
		}
		cur.State = state
		if ack != nil && ack.ID != 0 {
			cur.ID = ack.ID
			if !ack.CreatedAt.IsZero() {
				cur.CreatedAt = ack.CreatedAt
			}
		}
		found = true
		break
	}
	thread := s.snapshotLocked()
	s.mu.Unlock()
	if found {
		s.publish(thread)
	}
}

// subscribeLocked records the history request for the open conversation and
// returns the join and history commands to write.
func (s *Session) subscribeLocked() []protocol.Outbound {
	me := s.em.UserID()
	s.history = append(s.history, s.counterpart)
	return []protocol.Outbound{
		protocol.JoinChatRoom{UserID: me, PartnerID: s.counterpart},
		protocol.GetChatHistory{UserID: me, PartnerID: s.counterpart, Page: 1, Limit: s.limit},
	}
}

// emitSubscribe writes outs. When a write fails the history request for
// partner is forgotten, since no answer will come.
func (s *Session) emitSubscribe(ctx context.Context, partner int, outs []protocol.Outbound) error {
	for _, out := range outs {
		if err := s.em.Emit(ctx, out); err != nil {
			s.mu.Lock()
			s.forgetHistoryLocked(partner)
			s.mu.Unlock()
			if out.EventName() == protocol.EventJoinChatRoom {
				return fmt.Errorf("join room: %w", err)
			}
			return fmt.Errorf("request history: %w", err)
		}
	}
	return nil
}

// answerHistoryLocked resolves which request a history answer belongs to.
// An explicit partner id wins; otherwise the oldest request is answered. With
// no request outstanding the answer is taken for the open conversation.
func (s *Session) answerHistoryLocked(partnerID int) int {
	if partnerID != 0 {
		s.forgetHistoryLocked(partnerID)
		return partnerID
	}
	if len(s.history) == 0 {
		return s.counterpart
	}
	head := s.history[0]
	s.history = s.history[1:]
	return head
}

func (s *Session) forgetHistoryLocked(partnerID int) {
	for i, p := range s.history {
		if p == partnerID {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return
		}
	}
}

func (s *Session) snapshotLocked() Thread {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Thread{
		CounterpartID:  s.counterpart,
		Messages:       msgs,
		Loading:        s.loading,
		PartnerTyping:  s.partnerTyping,
		ConnectionLost: s.connectionLost,
	}
}

func (s *Session) publish(t Thread) {
	if s.bus != nil {
		s.bus.Emit(bus.KindThreadUpdated, t)
	}
}

func (s *Session) notify(text string) {
	if s.notices != nil {
		s.notices.Show(notice.Error, text)
	}
}
