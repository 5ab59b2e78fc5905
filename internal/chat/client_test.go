package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/chattest"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/transport"
)

const me = 7

type harness struct {
	srv     *chattest.Server
	bus     *bus.Bus
	events  *bus.Subscription
	notices *notice.Center
	mgr     *conn.Manager
	client  *chat.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := chattest.NewServer(t, "tok")
	b := bus.New()
	h := &harness{
		srv:     srv,
		bus:     b,
		events:  b.Subscribe("", 256),
		notices: notice.NewCenter(b),
	}
	opts := transport.DefaultOptions()
	opts.Backoff = 10 * time.Millisecond
	h.mgr = conn.NewManager(conn.Config{URL: srv.WSURL(), Transport: opts}, status.NewMachine(b), h.notices, nil)
	h.client = chat.NewClient(h.mgr, h.notices, b, chat.Config{}, nil)
	t.Cleanup(func() {
		h.client.Close()
		_ = h.mgr.Close()
		h.notices.Stop()
		h.events.Close()
	})
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if _, err := h.mgr.GetOrCreate(context.Background(), me, "tok"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	h.waitFor(t, bus.KindStatusChanged, func(evt bus.Event) bool {
		return evt.Payload.(status.StatusChange).To == status.Connected
	})
}

func (h *harness) waitFor(t *testing.T, kind string, match func(bus.Event) bool) bus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-h.events.Events():
			if evt.Kind == kind && (match == nil || match(evt)) {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func (h *harness) waitNotice(t *testing.T, text string) {
	t.Helper()
	h.waitFor(t, bus.KindNoticeShown, func(evt bus.Event) bool {
		return evt.Payload.(notice.Notice).Text == text
	})
}

func reply(event string, data any) chattest.Handler {
	return func(p *chattest.Peer, _ protocol.Frame) { _ = p.Send(event, data) }
}

func TestNotConnectedSendShowsNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_ = h.client.InputChanged(ctx, "42", "hello")
	err := h.client.Send(ctx, "42", "hello")
	var pe *chat.PreconditionError
	if !errors.As(err, &pe) || pe.Reason != "Not connected to chat server" {
		t.Fatalf("err = %v", err)
	}
	h.waitNotice(t, "Not connected to chat server")
	if got := h.srv.Received(protocol.EventSendMessage); len(got) != 0 {
		t.Fatalf("server received %d sendMessage frames", len(got))
	}
	if h.client.Input() != "hello" {
		t.Fatalf("input = %q", h.client.Input())
	}
}

func TestSendAcknowledgedClearsInput(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(protocol.EventSendMessage, reply(protocol.EventMessageSent, map[string]any{
		"success": true,
		"message": map[string]any{"id": 501, "senderId": me, "receiverId": 42, "message": "hi"},
	}))
	h.connect(t)
	ctx := context.Background()

	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}
	_ = h.client.InputChanged(ctx, "42", "hi")
	if err := h.client.Send(ctx, "42", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.waitFor(t, bus.KindSendAck, nil)

	frames := h.srv.WaitFor(t, protocol.EventSendMessage, 1)
	var got protocol.SendMessage
	if err := json.Unmarshal(frames[0].Data, &got); err != nil {
		t.Fatal(err)
	}
	want := protocol.SendMessage{SenderID: me, Message: protocol.OutgoingMessage{ReceiverID: 42, Message: "hi"}}
	if got != want {
		t.Fatalf("sendMessage = %+v, want %+v", got, want)
	}
	if h.client.Input() != "" || h.client.Sending() {
		t.Fatalf("input=%q sending=%v", h.client.Input(), h.client.Sending())
	}
	msgs := h.client.Thread().Messages
	if len(msgs) != 1 || msgs[0].State != chat.Sent || msgs[0].ID != 501 {
		t.Fatalf("thread = %+v", msgs)
	}
}

func TestSendErrorKeepsInput(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(protocol.EventSendMessage, reply(protocol.EventMessageError, map[string]any{"error": "db down"}))
	h.connect(t)
	ctx := context.Background()

	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}
	_ = h.client.InputChanged(ctx, "42", "hi")
	if err := h.client.Send(ctx, "42", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The notice is shown before the failure is published.
	h.waitNotice(t, "db down")
	h.waitFor(t, bus.KindSendFailed, nil)

	if h.client.Sending() {
		t.Fatal("sending flag not cleared")
	}
	if h.client.Input() != "hi" {
		t.Fatalf("input = %q", h.client.Input())
	}
}

func TestInboundMessageMarksRead(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()
	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}
	h.srv.WaitFor(t, protocol.EventJoinChatRoom, 1)

	h.srv.Push(protocol.EventNewMessage, map[string]any{"id": 9, "senderId": 42, "receiverId": me, "message": "halo"})

	frames := h.srv.WaitFor(t, protocol.EventMarkAsRead, 1)
	var got protocol.MarkAsRead
	if err := json.Unmarshal(frames[0].Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.SenderID != 42 || got.UserID != me {
		t.Fatalf("markAsRead = %+v", got)
	}
	msgs := h.client.Thread().Messages
	if len(msgs) != 1 || msgs[0].Body != "halo" {
		t.Fatalf("thread = %+v", msgs)
	}
}

func TestReconnectRejoinsOpenConversation(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ctx := context.Background()
	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}
	h.srv.WaitFor(t, protocol.EventGetChatHistory, 1)

	h.srv.DropConnections()
	h.waitFor(t, bus.KindStatusChanged, func(evt bus.Event) bool {
		return evt.Payload.(status.StatusChange).To == status.Reconnecting
	})
	h.waitFor(t, bus.KindStatusChanged, func(evt bus.Event) bool {
		return evt.Payload.(status.StatusChange).To == status.Connected
	})

	h.srv.WaitFor(t, protocol.EventGetChatHistory, 2)
	time.Sleep(50 * time.Millisecond)
	joins := h.srv.Received(protocol.EventJoinChatRoom)
	hist := h.srv.Received(protocol.EventGetChatHistory)
	if len(joins) != 2 || len(hist) != 2 {
		t.Fatalf("joins=%d history=%d, want 2 each", len(joins), len(hist))
	}
	var last protocol.GetChatHistory
	if err := json.Unmarshal(hist[1].Data, &last); err != nil {
		t.Fatal(err)
	}
	if last.PartnerID != 42 || last.Page != 1 || last.Limit != 50 {
		t.Fatalf("history request = %+v", last)
	}
}

func TestMalformedHistoryEndsLoading(t *testing.T) {
	h := newHarness(t)
	h.srv.Handle(protocol.EventGetChatHistory, reply(protocol.EventChatHistory, []map[string]any{
		{"id": 1, "senderId": 42, "message": "x"},
	}))
	h.connect(t)
	ctx := context.Background()
	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}

	h.waitNotice(t, "Failed to load chat history")
	th := h.client.Thread()
	if th.Loading || len(th.Messages) != 0 {
		t.Fatalf("thread = %+v", th)
	}
}

func TestUnreadCountFollowsServer(t *testing.T) {
	h := newHarness(t)
	var unread atomic.Int64
	h.srv.Handle(protocol.EventGetChatList, func(p *chattest.Peer, _ protocol.Frame) {
		_ = p.Send(protocol.EventChatList, []map[string]any{
			{"partnerId": 42, "partnerName": "Ana"},
			{"partnerId": 43, "partnerName": "Budi", "unreadCount": unread.Load()},
		})
	})
	h.connect(t)
	ctx := context.Background()
	if err := h.client.OpenConversation(ctx, 42); err != nil {
		t.Fatal(err)
	}
	h.srv.WaitFor(t, protocol.EventGetChatList, 1)

	const n = 3
	for i := 1; i <= n; i++ {
		unread.Store(int64(i))
		h.srv.Push(protocol.EventMessageReceived, map[string]any{
			"senderId": 43,
			"message":  map[string]any{"id": 100 + i, "senderId": 43, "receiverId": me, "message": "ping"},
		})
		h.srv.WaitFor(t, protocol.EventGetChatList, 1+i)
		h.waitFor(t, bus.KindListUpdated, func(evt bus.Event) bool {
			list := evt.Payload.([]chat.Conversation)
			return len(list) == 2 && list[1].UnreadCount == i
		})
	}

	list := h.client.Conversations()
	if list[1].CounterpartID != 43 || list[1].UnreadCount != n {
		t.Fatalf("list = %+v", list)
	}
	if n := len(h.client.Thread().Messages); n != 0 {
		t.Fatalf("messages for another conversation leaked into the thread: %d", n)
	}
	if got := h.srv.Received(protocol.EventMarkAsRead); len(got) != 0 {
		t.Fatalf("marked %d messages read for a closed conversation", len(got))
	}
}

func TestCloseCancelsSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.client.Close()
	h.client.Close()

	h.srv.Push(protocol.EventChatList, []map[string]any{{"partnerId": 42}})
	time.Sleep(50 * time.Millisecond)
	if got := h.client.Conversations(); len(got) != 0 {
		t.Fatalf("closed client still updated: %+v", got)
	}
}
