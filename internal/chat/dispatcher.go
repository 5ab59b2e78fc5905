package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendResult is the payload of message.send_ack and message.send_failed.
type SendResult struct {
	LocalID    string
	ReceiverID int
	MessageID  int64
	Error      string
}

// Dispatcher sends messages and typing signals. At most one send is in
// flight at a time; the next server acknowledgement resolves it.
type Dispatcher struct {
	em      Emitter
	notices notice.Shower
	bus     *bus.Bus
	session *Session
	logger  *zap.Logger
	idle    time.Duration

	// writeMu orders network writes. It is taken before mu and held across
	// Emit; mu guards state only.
	writeMu sync.Mutex

	mu        sync.Mutex
	input     string
	sending   bool
	pending   *Message
	errNotice string
	typingFor int
	debounce  *time.Timer
	gen       uint64
}

// NewDispatcher creates a dispatcher. Optimistic messages are appended to
// session when it has the receiver open; session may be nil.
func NewDispatcher(em Emitter, session *Session, notices notice.Shower, b *bus.Bus, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		em:      em,
		notices: notices,
		bus:     b,
		session: session,
		logger:  logger,
		idle:    cfg.withDefaults().TypingIdle,
	}
}

// Input returns the composer buffer.
func (d *Dispatcher) Input() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// Sending reports whether a send awaits its acknowledgement.
func (d *Dispatcher) Sending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sending
}

// Typing returns the counterpart the local typing signal is active for, or 0.
func (d *Dispatcher) Typing() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typingFor
}

// Send sends body to counterpartID. A rejected precondition shows a notice
// and returns a *PreconditionError without touching the network.
func (d *Dispatcher) Send(ctx context.Context, counterpartID string, body string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.mu.Lock()

	body = strings.TrimSpace(body)
	counterpartID = strings.TrimSpace(counterpartID)
	me := d.em.UserID()
	var reason string
	var receiver int
	switch {
	case body == "":
		reason = TextEmptyMessage
	case counterpartID == "":
		reason = TextNoConversation
	case !d.em.Connected() || d.sending:
		reason = TextNotConnected
	case me <= 0:
		reason = TextInvalidUser
	default:
		id, err := strconv.Atoi(counterpartID)
		if err != nil || id <= 0 {
			reason = TextInvalidPartner
		}
		receiver = id
	}
	if reason != "" {
		err := d.rejectLocked(reason)
		d.mu.Unlock()
		return err
	}

	msg := Message{
		LocalID:    uuid.NewString(),
		SenderID:   me,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  time.Now(),
		State:      Pending,
	}
	d.sending = true
	d.pending = &msg
	if d.session != nil {
		d.session.appendLocal(msg)
	}
	var stop protocol.Outbound
	if d.typingFor == receiver {
		stop = d.stopTypingLocked()
	}
	d.mu.Unlock()

	err := d.em.Emit(ctx, protocol.SendMessage{
		SenderID: me,
		Message:  protocol.OutgoingMessage{ReceiverID: receiver, Message: body},
	})
	if stop != nil {
		if serr := d.em.Emit(ctx, stop); serr != nil {
			d.logger.Debug("typing stop after send", zap.Error(serr))
		}
	}
	if err != nil {
		d.mu.Lock()
		if d.pending != nil && d.pending.LocalID == msg.LocalID {
			d.failLocked(TextSendFailed)
		}
		d.mu.Unlock()
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SetTyping reports the local typing state for counterpartID. Only edges
// reach the network. A true signal ends by itself after the idle period
// unless it is repeated.
func (d *Dispatcher) SetTyping(ctx context.Context, counterpartID string, isTyping bool) error {
	id, err := strconv.Atoi(strings.TrimSpace(counterpartID))
	if err != nil || id <= 0 {
		return &PreconditionError{Reason: TextInvalidPartner}
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.mu.Lock()
	var outs []protocol.Outbound
	if isTyping {
		outs = d.startTypingLocked(id)
		d.armDebounceLocked()
	} else if d.typingFor == id {
		outs = append(outs, d.stopTypingLocked())
	}
	d.mu.Unlock()

	if err := d.emitAll(ctx, outs); err != nil {
		if isTyping {
			d.abandonTyping(id)
		}
		return err
	}
	return nil
}

// InputChanged records the composer content. Non-empty content starts the
// typing signal, and every call restarts the idle timer that ends it.
func (d *Dispatcher) InputChanged(ctx context.Context, counterpartID string, text string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.mu.Lock()
	d.input = text

	id, err := strconv.Atoi(strings.TrimSpace(counterpartID))
	if err != nil || id <= 0 {
		d.mu.Unlock()
		return nil
	}
	var outs []protocol.Outbound
	if strings.TrimSpace(text) != "" {
		outs = d.startTypingLocked(id)
	}
	if d.typingFor != 0 {
		d.armDebounceLocked()
	}
	d.mu.Unlock()

	if err := d.emitAll(ctx, outs); err != nil {
		d.abandonTyping(id)
		return err
	}
	return nil
}

// Handle consumes one event from the connection.
func (d *Dispatcher) Handle(ctx context.Context, in protocol.Inbound) {
	switch v := in.(type) {
	case protocol.MessageSent:
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.sending {
			d.logger.Debug("acknowledgement without a send in flight")
			return
		}
		if !v.Success {
			text := v.Error
			if text == "" {
				text = TextSendFailed
			}
			d.failLocked(text)
			return
		}
		d.succeedLocked(v.Message)

	case protocol.ProtocolError:
		if v.Event != protocol.EventMessageError {
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.sending {
			d.failLocked(v.Text())
			return
		}
		d.showLocked(v.Text())

	case protocol.Disconnected:
		d.mu.Lock()
		defer d.mu.Unlock()
		d.typingFor = 0
		d.cancelDebounceLocked()
		if d.sending {
			d.failLocked(TextSendLost)
		}
	}
}

// Stop cancels the typing timer.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelDebounceLocked()
}

func (d *Dispatcher) rejectLocked(reason string) error {
	metrics.Sends.WithLabelValues("rejected").Inc()
	d.showLocked(reason)
	return &PreconditionError{Reason: reason}
}

func (d *Dispatcher) succeedLocked(ack *protocol.ChatMessage) {
	metrics.Sends.WithLabelValues("sent").Inc()
	d.sending = false
	d.input = ""
	if d.errNotice != "" && d.notices != nil {
		d.notices.Dismiss(d.errNotice)
	}
	d.errNotice = ""

	p := d.pending
	d.pending = nil
	if p == nil {
		return
	}
	if d.session != nil {
		d.session.resolveLocal(p.LocalID, Sent, ack)
	}
	res := SendResult{LocalID: p.LocalID, ReceiverID: p.ReceiverID}
	if ack != nil {
		res.MessageID = ack.ID
	}
	if d.bus != nil {
		d.bus.Emit(bus.KindSendAck, res)
	}
}

// failLocked ends the in-flight send as failed. The input buffer is kept.
func (d *Dispatcher) failLocked(reason string) {
	metrics.Sends.WithLabelValues("failed").Inc()
	d.sending = false
	d.showLocked(reason)

	p := d.pending
	d.pending = nil
	if p == nil {
		return
	}
	if d.session != nil {
		d.session.resolveLocal(p.LocalID, Failed, nil)
	}
	if d.bus != nil {
		d.bus.Emit(bus.KindSendFailed, SendResult{LocalID: p.LocalID, ReceiverID: p.ReceiverID, Error: reason})
	}
}

func (d *Dispatcher) showLocked(text string) {
	if d.notices == nil {
		return
	}
	d.errNotice = d.notices.Show(notice.Error, text).ID
}

// startTypingLocked marks id as typing and returns the commands announcing
// it: a stop for any other counterpart, then the start edge.
func (d *Dispatcher) startTypingLocked(id int) []protocol.Outbound {
	if d.typingFor == id {
		return nil
	}
	var outs []protocol.Outbound
	if d.typingFor != 0 {
		outs = append(outs, d.stopTypingLocked())
	}
	d.typingFor = id
	return append(outs, protocol.Typing{UserID: d.em.UserID(), PartnerID: id, IsTyping: true})
}

// stopTypingLocked clears the typing state and returns the stop edge, or nil
// when nothing was active.
func (d *Dispatcher) stopTypingLocked() protocol.Outbound {
	id := d.typingFor
	d.typingFor = 0
	d.cancelDebounceLocked()
	if id == 0 {
		return nil
	}
	return protocol.Typing{UserID: d.em.UserID(), PartnerID: id, IsTyping: false}
}

// abandonTyping forgets a start edge that never reached the server.
func (d *Dispatcher) abandonTyping(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.typingFor == id {
		d.typingFor = 0
		d.cancelDebounceLocked()
	}
}

// emitAll writes outs in order. Callers hold writeMu but not mu.
func (d *Dispatcher) emitAll(ctx context.Context, outs []protocol.Outbound) error {
	for _, out := range outs {
		if out == nil {
			continue
		}
		if err := d.em.Emit(ctx, out); err != nil {
			return fmt.Errorf("emit %s: %w", out.EventName(), err)
		}
	}
	return nil
}

func (d *Dispatcher) armDebounceLocked() {
	d.cancelDebounceLocked()
	d.gen++
	gen := d.gen
	d.debounce = time.AfterFunc(d.idle, func() {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.debounce = nil
		stop := d.stopTypingLocked()
		d.mu.Unlock()
		if err := d.emitAll(context.Background(), []protocol.Outbound{stop}); err != nil {
			d.logger.Debug("typing idle stop", zap.Error(err))
		}
	})
}

func (d *Dispatcher) cancelDebounceLocked() {
	if d.debounce != nil {
		d.debounce.Stop()
		d.debounce = nil
	}
	d.gen++
}
