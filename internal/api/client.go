package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client is a typed client of the daemon's control API.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to the daemon listening on socketPath. The connection is
// established lazily on the first call.
func Dial(socketPath string) (*Client, error) {
	cc, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: cc, health: healthpb.NewHealthClient(cc)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the daemon answers its health check with SERVING.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("daemon status %s", resp.GetStatus())
	}
	return nil
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c, "Login", &LoginRequest{Email: email, Password: password})
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c, "Logout", &Empty{})
	return err
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "GetStatus", &Empty{})
}

func (c *Client) Retry(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Retry", &Empty{})
}

func (c *Client) ListConversations(ctx context.Context) (*ConversationsResponse, error) {
	return invoke[ConversationsResponse](ctx, c, "ListConversations", &Empty{})
}

func (c *Client) RefreshConversations(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c, "RefreshConversations", &Empty{})
	return err
}

func (c *Client) OpenConversation(ctx context.Context, counterpartID int) (*ThreadResponse, error) {
	return invoke[ThreadResponse](ctx, c, "OpenConversation", &ConversationRequest{CounterpartID: counterpartID})
}

func (c *Client) CloseConversation(ctx context.Context, counterpartID int) error {
	_, err := invoke[Empty](ctx, c, "CloseConversation", &ConversationRequest{CounterpartID: counterpartID})
	return err
}

func (c *Client) GetThread(ctx context.Context) (*ThreadResponse, error) {
	return invoke[ThreadResponse](ctx, c, "GetThread", &Empty{})
}

func (c *Client) InputChanged(ctx context.Context, counterpartID, text string) error {
	_, err := invoke[Empty](ctx, c, "InputChanged", &InputRequest{CounterpartID: counterpartID, Text: text})
	return err
}

func (c *Client) SetTyping(ctx context.Context, counterpartID string, isTyping bool) error {
	_, err := invoke[Empty](ctx, c, "SetTyping", &TypingRequest{CounterpartID: counterpartID, IsTyping: isTyping})
	return err
}

func (c *Client) Send(ctx context.Context, counterpartID, body string) (*ThreadResponse, error) {
	return invoke[ThreadResponse](ctx, c, "Send", &SendRequest{CounterpartID: counterpartID, Body: body})
}

var watchStreamDesc = grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends
// the stream.
func (s *EventStream) Recv() (*Event, error) {
	evt := new(Event)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchEvents subscribes to daemon events whose kind starts with namespace.
// Cancel ctx to end the stream.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &watchStreamDesc, fullMethod("WatchEvents"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Namespace: namespace}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// IsEOF reports whether err ends an event stream normally.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
