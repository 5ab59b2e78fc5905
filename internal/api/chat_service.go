package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Zain0205/travelin-chat/internal/app"
	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/restapi"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// watchBuffer is the bus buffer of one WatchEvents stream.
const watchBuffer = 256

// ChatService implements the ChatService gRPC service.
type ChatService struct {
	profile   string
	startedAt time.Time
	app       *app.App
	mgr       *conn.Manager
	machine   *status.Machine
	notices   *notice.Center
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewChatService creates the control service of one profile.
func NewChatService(profile string, a *app.App, mgr *conn.Manager, machine *status.Machine, notices *notice.Center, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		profile:   profile,
		startedAt: time.Now(),
		app:       a,
		mgr:       mgr,
		machine:   machine,
		notices:   notices,
		bus:       b,
		logger:    logger,
	}
}

func (s *ChatService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	id, err := s.app.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &LoginResponse{UserID: id.UserID, Role: id.Role}, nil
}

func (s *ChatService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.app.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:    s.profile,
		State:      string(s.machine.Current()),
		StateSince: s.machine.Since(),
		RetryCount: s.mgr.RetryCount(),
		UptimeMS:   time.Since(s.startedAt).Milliseconds(),
	}
	if id, ok := s.app.Identity(); ok {
		resp.LoggedIn = true
		resp.UserID = id.UserID
		resp.Role = id.Role
	}
	if c, err := s.app.Chat(); err == nil {
		resp.OpenPartner = c.Thread().CounterpartID
	}
	if n, ok := s.notices.Current(); ok {
		resp.Notice = n.Text
	}
	return resp, nil
}

func (s *ChatService) Retry(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	if err := s.app.Retry(ctx); err != nil {
		return nil, toStatus("retry", err)
	}
	return s.GetStatus(ctx, &Empty{})
}

func (s *ChatService) ListConversations(_ context.Context, _ *Empty) (*ConversationsResponse, error) {
	c, err := s.app.Chat()
	if err != nil {
		return nil, toStatus("list conversations", err)
	}
	return &ConversationsResponse{Conversations: c.Conversations()}, nil
}

func (s *ChatService) RefreshConversations(ctx context.Context, _ *Empty) (*Empty, error) {
	c, err := s.app.Chat()
	if err == nil {
		err = c.RefreshConversations(ctx)
	}
	if err != nil {
		return nil, toStatus("refresh conversations", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) OpenConversation(ctx context.Context, req *ConversationRequest) (*ThreadResponse, error) {
	if req.CounterpartID <= 0 {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "counterpart_id must be positive")
	}
	c, err := s.app.Chat()
	if err == nil {
		err = c.OpenConversation(ctx, req.CounterpartID)
	}
	if err != nil {
		return nil, toStatus("open conversation", err)
	}
	return threadResponse(c), nil
}

func (s *ChatService) CloseConversation(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	c, err := s.app.Chat()
	if err == nil {
		err = c.CloseConversation(ctx, req.CounterpartID)
	}
	if err != nil {
		return nil, toStatus("close conversation", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) GetThread(_ context.Context, _ *Empty) (*ThreadResponse, error) {
	c, err := s.app.Chat()
	if err != nil {
		return nil, toStatus("get thread", err)
	}
	return threadResponse(c), nil
}

func (s *ChatService) InputChanged(ctx context.Context, req *InputRequest) (*Empty, error) {
	c, err := s.app.Chat()
	if err == nil {
		err = c.InputChanged(ctx, req.CounterpartID, req.Text)
	}
	if err != nil {
		return nil, toStatus("input", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) SetTyping(ctx context.Context, req *TypingRequest) (*Empty, error) {
	c, err := s.app.Chat()
	if err == nil {
		err = c.SetTyping(ctx, req.CounterpartID, req.IsTyping)
	}
	if err != nil {
		return nil, toStatus("typing", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) Send(ctx context.Context, req *SendRequest) (*ThreadResponse, error) {
	c, err := s.app.Chat()
	if err == nil {
		err = c.Send(ctx, req.CounterpartID, req.Body)
	}
	if err != nil {
		return nil, toStatus("send", err)
	}
	return threadResponse(c), nil
}

// WatchEvents streams bus events until the client goes away.
func (s *ChatService) WatchEvents(req *WatchRequest, stream grpc.ServerStream) error {
	sub := s.bus.Subscribe(req.Namespace, watchBuffer)
	defer sub.Close()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-sub.Events():
			out := &Event{
				ID:        uuid.NewString(),
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp,
			}
			if evt.Payload != nil {
				data, err := json.Marshal(evt.Payload)
				if err != nil {
					s.logger.Warn("encode event payload", zap.String("kind", evt.Kind), zap.Error(err))
					continue
				}
				out.Payload = data
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

func threadResponse(c *chat.Client) *ThreadResponse {
	return &ThreadResponse{
		Thread:  c.Thread(),
		Input:   c.Input(),
		Sending: c.Sending(),
	}
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	var (
		precond *chat.PreconditionError
		invalid *conn.InvalidSessionError
		apiErr  *restapi.APIError
	)
	switch {
	case errors.As(err, &precond):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %s", op, precond.Reason)
	case errors.As(err, &invalid):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %s", op, invalid.Reason)
	case errors.Is(err, app.ErrLoggedOut):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, restapi.ErrSessionExpired):
		return grpcstatus.Errorf(codes.Unauthenticated, "%s: %v", op, err)
	case errors.Is(err, transport.ErrNotConnected):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return grpcstatus.Errorf(codes.Unauthenticated, "%s: %s", op, apiErr.Message)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return grpcstatus.Errorf(codes.InvalidArgument, "%s: %s", op, apiErr.Message)
		}
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	}
	return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
}
