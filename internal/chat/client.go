package chat

import (
	"context"
	"strconv"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"go.uber.org/zap"
)

// Connection is the live connection the client subscribes to.
type Connection interface {
	Emitter
	Subscribe(fn conn.Handler) *conn.Subscription
}

// Client is the chat context of one signed-in user. It wires the session,
// dispatcher and list sync to the connection's event stream.
type Client struct {
	session    *Session
	dispatcher *Dispatcher
	list       *ListSync
	logger     *zap.Logger

	mu     sync.Mutex
	subs   []*conn.Subscription
	closed bool
}

// NewClient builds the chat components and subscribes them to c, in the
// order session, dispatcher, list.
func NewClient(c Connection, notices notice.Shower, b *bus.Bus, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := NewSession(c, notices, b, cfg, logger.Named("session"))
	cl := &Client{
		session:    session,
		dispatcher: NewDispatcher(c, session, notices, b, cfg, logger.Named("dispatcher")),
		list:       NewListSync(c, notices, b, logger.Named("list")),
		logger:     logger,
	}
	cl.subs = []*conn.Subscription{
		c.Subscribe(cl.session.Handle),
		c.Subscribe(cl.dispatcher.Handle),
		c.Subscribe(cl.list.Handle),
	}
	return cl
}

// OpenConversation makes counterpartID the active conversation, leaving the
// previous room and resetting the unread count of the new one.
func (c *Client) OpenConversation(ctx context.Context, counterpartID int) error {
	prev := c.session.CounterpartID()
	if prev != 0 && prev != counterpartID {
		if err := c.dispatcher.SetTyping(ctx, strconv.Itoa(prev), false); err != nil {
			c.logger.Debug("stop typing on switch", zap.Error(err))
		}
		if err := c.session.Close(ctx, prev); err != nil {
			c.logger.Warn("leave previous room", zap.Int("partner_id", prev), zap.Error(err))
		}
	}
	if err := c.session.Open(ctx, counterpartID); err != nil {
		return err
	}
	c.list.ClearUnread(counterpartID)
	return nil
}

// CloseConversation leaves the room of counterpartID.
func (c *Client) CloseConversation(ctx context.Context, counterpartID int) error {
	if err := c.dispatcher.SetTyping(ctx, strconv.Itoa(counterpartID), false); err != nil {
		c.logger.Debug("stop typing on close", zap.Error(err))
	}
	return c.session.Close(ctx, counterpartID)
}

// Send sends body to counterpartID.
func (c *Client) Send(ctx context.Context, counterpartID string, body string) error {
	return c.dispatcher.Send(ctx, counterpartID, body)
}

// SendToOpen sends body to the open conversation.
func (c *Client) SendToOpen(ctx context.Context, body string) error {
	return c.dispatcher.Send(ctx, c.openID(), body)
}

// InputChanged reports composer edits for counterpartID.
func (c *Client) InputChanged(ctx context.Context, counterpartID string, text string) error {
	return c.dispatcher.InputChanged(ctx, counterpartID, text)
}

// SetTyping reports the local typing state explicitly.
func (c *Client) SetTyping(ctx context.Context, counterpartID string, isTyping bool) error {
	return c.dispatcher.SetTyping(ctx, counterpartID, isTyping)
}

// RefreshConversations requests a fresh conversation list.
func (c *Client) RefreshConversations(ctx context.Context) error {
	return c.list.Refresh(ctx)
}

// Thread returns the open conversation.
func (c *Client) Thread() Thread { return c.session.Thread() }

// Conversations returns the cached conversation list.
func (c *Client) Conversations() []Conversation { return c.list.Conversations() }

// Input returns the composer buffer.
func (c *Client) Input() string { return c.dispatcher.Input() }

// Sending reports whether a send is in flight.
func (c *Client) Sending() bool { return c.dispatcher.Sending() }

// Close unsubscribes every component. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, s := range c.subs {
		s.Cancel()
	}
	c.dispatcher.Stop()
}

func (c *Client) openID() string {
	id := c.session.CounterpartID()
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}
