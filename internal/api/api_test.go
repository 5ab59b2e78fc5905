package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zain0205/travelin-chat/internal/app"
	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/chattest"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/restapi"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/store"
	"github.com/Zain0205/travelin-chat/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

type testDaemon struct {
	srv    *chattest.Server
	client *Client
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	srv := chattest.NewServer(t, "tok")

	// Unix socket paths are length-limited; t.TempDir can be too deep.
	tmpDir, err := os.MkdirTemp("/tmp", "chatapi")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "chatd.sock")

	db, err := store.Open(filepath.Join(tmpDir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	notices := notice.NewCenter(b)
	opts := transport.DefaultOptions()
	opts.Backoff = 10 * time.Millisecond
	mgr := conn.NewManager(conn.Config{URL: srv.WSURL(), Transport: opts}, machine, notices, nil)
	a := app.New(mgr, restapi.New(srv.APIURL(), db), db, notices, b, chat.Config{}, nil)

	grpcSrv := grpc.NewServer()
	RegisterChatServiceServer(grpcSrv, NewChatService("test", a, mgr, machine, notices, b, nil))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcSrv.Serve(listener) }()

	client, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		grpcSrv.Stop()
		a.Shutdown()
		notices.Stop()
		_ = db.Close()
	})
	return &testDaemon{srv: srv, client: client}
}

func (d *testDaemon) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	resp, err := d.client.Login(ctx, chattest.AccountEmail, chattest.AccountPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.UserID != chattest.AccountUserID {
		t.Fatalf("user id = %d", resp.UserID)
	}
	d.waitState(t, status.Connected)
}

func (d *testDaemon) waitState(t *testing.T, want status.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := d.client.GetStatus(context.Background())
		if err == nil && st.State == string(want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %s", want)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Fatalf("code = %s, want %s (err %v)", got, code, err)
	}
}

func TestHealth(t *testing.T) {
	d := startDaemon(t)
	if err := d.client.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy: %v", err)
	}
}

func TestStatusLoggedOut(t *testing.T) {
	d := startDaemon(t)

	st, err := d.client.GetStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Profile != "test" || st.LoggedIn || st.State != string(status.Disconnected) {
		t.Fatalf("status = %+v", st)
	}
}

func TestRequiresLogin(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()

	_, err := d.client.Send(ctx, "9", "hi")
	wantCode(t, err, codes.FailedPrecondition)
	_, err = d.client.ListConversations(ctx)
	wantCode(t, err, codes.FailedPrecondition)
	_, err = d.client.Retry(ctx)
	wantCode(t, err, codes.FailedPrecondition)
}

func TestLoginRejected(t *testing.T) {
	d := startDaemon(t)

	_, err := d.client.Login(context.Background(), chattest.AccountEmail, "nope")
	wantCode(t, err, codes.Unauthenticated)
	_, err = d.client.Login(context.Background(), "", "")
	wantCode(t, err, codes.InvalidArgument)
}

func TestConversationFlow(t *testing.T) {
	d := startDaemon(t)
	d.login(t)
	ctx := context.Background()

	d.srv.Handle(protocol.EventGetChatList, func(p *chattest.Peer, _ protocol.Frame) {
		_ = p.Send(protocol.EventChatList, []map[string]any{
			{"partnerId": 9, "partnerName": "Budi", "lastMessage": "hello", "unreadCount": 2},
		})
	})
	if err := d.client.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		list, err := d.client.ListConversations(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list.Conversations) == 1 {
			if list.Conversations[0].CounterpartID != 9 {
				t.Fatalf("conversation = %+v", list.Conversations[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("chat list never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	thread, err := d.client.OpenConversation(ctx, 9)
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if thread.Thread.CounterpartID != 9 || !thread.Thread.Loading {
		t.Fatalf("thread = %+v", thread.Thread)
	}
	d.srv.WaitFor(t, protocol.EventJoinChatRoom, 1)
	d.srv.WaitFor(t, protocol.EventGetChatHistory, 1)

	resp, err := d.client.Send(ctx, "9", "on my way")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.Sending || len(resp.Thread.Messages) != 1 || resp.Thread.Messages[0].State != chat.Pending {
		t.Fatalf("send response = %+v", resp)
	}
	d.srv.WaitFor(t, protocol.EventSendMessage, 1)

	_, err = d.client.Send(ctx, "9", "   ")
	wantCode(t, err, codes.FailedPrecondition)
	if !strings.Contains(grpcstatus.Convert(err).Message(), chat.TextEmptyMessage) {
		t.Fatalf("message = %q", grpcstatus.Convert(err).Message())
	}

	_, err = d.client.OpenConversation(ctx, 0)
	wantCode(t, err, codes.InvalidArgument)
}

func TestWatchEvents(t *testing.T) {
	d := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := d.client.WatchEvents(ctx, "connection.")
	if err != nil {
		t.Fatal(err)
	}
	// The subscription is registered once the stream is served.
	time.Sleep(50 * time.Millisecond)

	if _, err := d.client.Login(ctx, chattest.AccountEmail, chattest.AccountPassword); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for !seen[string(status.Connected)] {
		evt, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if evt.Kind != bus.KindStatusChanged || evt.ID == "" {
			t.Fatalf("event = %+v", evt)
		}
		var change status.StatusChange
		if err := json.Unmarshal(evt.Payload, &change); err != nil {
			t.Fatal(err)
		}
		seen[string(change.To)] = true
	}
	if !seen[string(status.Connecting)] {
		t.Fatal("CONNECTING not streamed before CONNECTED")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&chat.PreconditionError{Reason: chat.TextNoConversation}, codes.FailedPrecondition},
		{&conn.InvalidSessionError{Reason: "no session"}, codes.FailedPrecondition},
		{app.ErrLoggedOut, codes.FailedPrecondition},
		{fmt.Errorf("wrapped: %w", restapi.ErrSessionExpired), codes.Unauthenticated},
		{transport.ErrNotConnected, codes.Unavailable},
		{&restapi.APIError{Status: 401, Message: "bad"}, codes.Unauthenticated},
		{&restapi.APIError{Status: 400, Message: "bad"}, codes.InvalidArgument},
		{&restapi.APIError{Status: 502}, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus("op", tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
