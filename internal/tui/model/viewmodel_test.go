package model

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/app"
	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/status"
)

type fakeDaemon struct {
	status  api.StatusResponse
	convs   []chat.Conversation
	thread  chat.Thread
	inputs  []string
	sent    []string
	closed  []int
	sendErr error
}

func (f *fakeDaemon) GetStatus(context.Context) (*api.StatusResponse, error) {
	st := f.status
	return &st, nil
}

func (f *fakeDaemon) Retry(context.Context) (*api.StatusResponse, error) {
	f.status.State = string(status.Connecting)
	st := f.status
	return &st, nil
}

func (f *fakeDaemon) Login(_ context.Context, email, _ string) (*api.LoginResponse, error) {
	if email == "" {
		return nil, errors.New("email required")
	}
	f.status.LoggedIn = true
	f.status.UserID = 7
	return &api.LoginResponse{UserID: 7, Role: "customer"}, nil
}

func (f *fakeDaemon) ListConversations(context.Context) (*api.ConversationsResponse, error) {
	return &api.ConversationsResponse{Conversations: f.convs}, nil
}

func (f *fakeDaemon) OpenConversation(_ context.Context, id int) (*api.ThreadResponse, error) {
	f.thread = chat.Thread{CounterpartID: id, Loading: true}
	return &api.ThreadResponse{Thread: f.thread}, nil
}

func (f *fakeDaemon) CloseConversation(_ context.Context, id int) error {
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeDaemon) GetThread(context.Context) (*api.ThreadResponse, error) {
	return &api.ThreadResponse{Thread: f.thread}, nil
}

func (f *fakeDaemon) InputChanged(_ context.Context, id, text string) error {
	f.inputs = append(f.inputs, id+":"+text)
	return nil
}

func (f *fakeDaemon) Send(_ context.Context, id, body string) (*api.ThreadResponse, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, id+":"+body)
	f.thread.Messages = append(f.thread.Messages, chat.Message{SenderID: 7, Body: body, State: chat.Pending})
	return &api.ThreadResponse{Thread: f.thread, Sending: true}, nil
}

func event(t *testing.T, kind string, payload any) *api.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &api.Event{ID: "e", Kind: kind, Timestamp: time.Now(), Payload: data}
}

func loggedIn(t *testing.T) (*fakeDaemon, *ViewModel) {
	t.Helper()
	d := &fakeDaemon{
		status: api.StatusResponse{State: string(status.Connected), LoggedIn: true, UserID: 7},
		convs:  []chat.Conversation{{CounterpartID: 42, Name: "Ana", UnreadCount: 3}},
	}
	vm := NewViewModel(d)
	if err := vm.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d, vm
}

func TestLoad(t *testing.T) {
	_, vm := loggedIn(t)
	if got := vm.Conversations(); len(got) != 1 || got[0].Name != "Ana" {
		t.Fatalf("conversations = %+v", got)
	}
	if vm.ConversationName(42) != "Ana" || vm.ConversationName(5) != "User 5" {
		t.Fatal("ConversationName mismatch")
	}
}

func TestLoadLoggedOutSkipsChat(t *testing.T) {
	d := &fakeDaemon{convs: []chat.Conversation{{CounterpartID: 1}}}
	vm := NewViewModel(d)
	if err := vm.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(vm.Conversations()) != 0 {
		t.Fatal("loaded conversations while logged out")
	}
}

func TestApplyStatus(t *testing.T) {
	_, vm := loggedIn(t)
	change := vm.Apply(event(t, bus.KindStatusChanged, status.StatusChange{From: status.Connected, To: status.Reconnecting}))
	if !change.Has(ChangeStatus) || vm.Status().State != string(status.Reconnecting) {
		t.Fatalf("change = %b, state = %s", change, vm.Status().State)
	}
}

func TestApplyNotices(t *testing.T) {
	_, vm := loggedIn(t)
	first := notice.Notice{ID: "a", Level: notice.Warn, Text: "Connection lost. Reconnecting..."}
	second := notice.Notice{ID: "b", Level: notice.Error, Text: "Failed to send message"}

	vm.Apply(event(t, bus.KindNoticeShown, first))
	vm.Apply(event(t, bus.KindNoticeShown, second))
	// The first notice expiring must not clear the second.
	if change := vm.Apply(event(t, bus.KindNoticeExpired, first)); change != 0 {
		t.Fatalf("stale expiry changed the model: %b", change)
	}
	if f := vm.Flash(); f == nil || f.ID != "b" {
		t.Fatalf("flash = %+v", f)
	}
	vm.Apply(event(t, bus.KindNoticeExpired, second))
	if vm.Flash() != nil {
		t.Fatal("flash not cleared")
	}
}

func TestApplyListReplaces(t *testing.T) {
	_, vm := loggedIn(t)
	list := []chat.Conversation{{CounterpartID: 43, Name: "Budi"}, {CounterpartID: 42, Name: "Ana"}}
	if !vm.Apply(event(t, bus.KindListUpdated, list)).Has(ChangeList) {
		t.Fatal("list change not reported")
	}
	got := vm.Conversations()
	if len(got) != 2 || got[0].CounterpartID != 43 {
		t.Fatalf("conversations = %+v", got)
	}
}

func TestApplyThreadOnlyForOpenConversation(t *testing.T) {
	_, vm := loggedIn(t)
	ctx := context.Background()
	if err := vm.Open(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if vm.Conversations()[0].UnreadCount != 0 {
		t.Fatal("unread not reset on open")
	}

	other := chat.Thread{CounterpartID: 43, Messages: []chat.Message{{Body: "x"}}}
	if vm.Apply(event(t, bus.KindThreadUpdated, other)) != 0 {
		t.Fatal("foreign thread applied")
	}
	mine := chat.Thread{CounterpartID: 42, Messages: []chat.Message{{Body: "hi"}}}
	vm.Apply(event(t, bus.KindThreadUpdated, mine))
	th, _ := vm.Thread()
	if len(th.Messages) != 1 || th.Messages[0].Body != "hi" {
		t.Fatalf("thread = %+v", th)
	}

	vm.Apply(event(t, bus.KindPartnerTyping, protocol.UserTyping{UserID: 42, IsTyping: true}))
	if th, _ := vm.Thread(); !th.PartnerTyping {
		t.Fatal("typing not shown")
	}
	if vm.Apply(event(t, bus.KindPartnerTyping, protocol.UserTyping{UserID: 99, IsTyping: false})) != 0 {
		t.Fatal("typing from another user applied")
	}
}

func TestSendAndAck(t *testing.T) {
	d, vm := loggedIn(t)
	ctx := context.Background()
	_ = vm.Open(ctx, 42)

	if err := vm.Input(ctx, "he"); err != nil {
		t.Fatal(err)
	}
	if err := vm.Send(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if len(d.inputs) != 1 || d.inputs[0] != "42:he" || len(d.sent) != 1 || d.sent[0] != "42:hello" {
		t.Fatalf("inputs = %v, sent = %v", d.inputs, d.sent)
	}
	if _, sending := vm.Thread(); !sending {
		t.Fatal("sending flag not set")
	}

	change := vm.Apply(event(t, bus.KindSendAck, chat.SendResult{ReceiverID: 42, MessageID: 1}))
	if !change.Has(ChangeSent) {
		t.Fatalf("change = %b, want ChangeSent", change)
	}
	if _, sending := vm.Thread(); sending {
		t.Fatal("sending flag kept after ack")
	}
}

func TestSendFailedKeepsInput(t *testing.T) {
	_, vm := loggedIn(t)
	change := vm.Apply(event(t, bus.KindSendFailed, chat.SendResult{ReceiverID: 42, Error: "Failed to send message"}))
	if change.Has(ChangeSent) {
		t.Fatal("failed send reported as sent")
	}
}

func TestClose(t *testing.T) {
	d, vm := loggedIn(t)
	ctx := context.Background()
	_ = vm.Open(ctx, 42)
	if err := vm.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := vm.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(d.closed) != 1 || d.closed[0] != 42 {
		t.Fatalf("closed = %v", d.closed)
	}
}

func TestLoginAndLogout(t *testing.T) {
	d := &fakeDaemon{convs: []chat.Conversation{{CounterpartID: 42}}}
	vm := NewViewModel(d)
	ctx := context.Background()

	if err := vm.Login(ctx, "", "x"); err == nil {
		t.Fatal("expected login error")
	}
	if err := vm.Login(ctx, "traveler@example.com", "secret"); err != nil {
		t.Fatal(err)
	}
	if !vm.Status().LoggedIn || len(vm.Conversations()) != 1 {
		t.Fatalf("status = %+v", vm.Status())
	}

	change := vm.Apply(event(t, bus.KindLoggedOut, app.Session{UserID: 7, Reason: "logout"}))
	if !change.Has(ChangeSession) || vm.Status().LoggedIn || len(vm.Conversations()) != 0 {
		t.Fatalf("logout not applied: %+v", vm.Status())
	}
	vm.Apply(event(t, bus.KindLoggedIn, app.Session{UserID: 7, Role: "customer"}))
	if st := vm.Status(); !st.LoggedIn || st.Role != "customer" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRetry(t *testing.T) {
	d := &fakeDaemon{status: api.StatusResponse{State: string(status.Failed), LoggedIn: true}}
	vm := NewViewModel(d)
	if err := vm.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	if vm.Status().State != string(status.Connecting) {
		t.Fatalf("state = %s", vm.Status().State)
	}
}
