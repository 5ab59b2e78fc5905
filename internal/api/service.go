package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "travelin.chat.v1.ChatService"

// ChatServiceServer is the control API served by the daemon.
type ChatServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Retry(context.Context, *Empty) (*StatusResponse, error)
	ListConversations(context.Context, *Empty) (*ConversationsResponse, error)
	RefreshConversations(context.Context, *Empty) (*Empty, error)
	OpenConversation(context.Context, *ConversationRequest) (*ThreadResponse, error)
	CloseConversation(context.Context, *ConversationRequest) (*Empty, error)
	GetThread(context.Context, *Empty) (*ThreadResponse, error)
	InputChanged(context.Context, *InputRequest) (*Empty, error)
	SetTyping(context.Context, *TypingRequest) (*Empty, error)
	Send(context.Context, *SendRequest) (*ThreadResponse, error)
	WatchEvents(*WatchRequest, grpc.ServerStream) error
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// ChatServiceDesc describes the control API for grpc.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", ChatServiceServer.Login),
		unary("Logout", ChatServiceServer.Logout),
		unary("GetStatus", ChatServiceServer.GetStatus),
		unary("Retry", ChatServiceServer.Retry),
		unary("ListConversations", ChatServiceServer.ListConversations),
		unary("RefreshConversations", ChatServiceServer.RefreshConversations),
		unary("OpenConversation", ChatServiceServer.OpenConversation),
		unary("CloseConversation", ChatServiceServer.CloseConversation),
		unary("GetThread", ChatServiceServer.GetThread),
		unary("InputChanged", ChatServiceServer.InputChanged),
		unary("SetTyping", ChatServiceServer.SetTyping),
		unary("Send", ChatServiceServer.Send),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed method into a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).WatchEvents(in, stream)
}
