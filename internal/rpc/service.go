package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "storekeeper.v1.Rows"

const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefreshToken = "/" + ServiceName + "/RefreshToken"
	MethodPush         = "/" + ServiceName + "/Push"
	MethodPull         = "/" + ServiceName + "/Pull"
	MethodPresign      = "/" + ServiceName + "/Presign"
)

// PublicMethods do not require an access token.
var PublicMethods = map[string]bool{
	MethodPing:         true,
	MethodLogin:        true,
	MethodRefreshToken: true,
}

// RowsServer is implemented by the server side of the rows service.
type RowsServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	Push(context.Context, *PushRequest) (*PushResponse, error)
	Pull(context.Context, *PullRequest) (*PullResponse, error)
	Presign(context.Context, *PresignRequest) (*PresignResponse, error)
}

func unary[Req, Resp any](fullMethod string, call func(RowsServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RowsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RowsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RowsServiceDesc describes the rows service for grpc.Server.RegisterService.
var RowsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RowsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(MethodPing, RowsServer.Ping)},
		{MethodName: "Login", Handler: unary(MethodLogin, RowsServer.Login)},
		{MethodName: "RefreshToken", Handler: unary(MethodRefreshToken, RowsServer.RefreshToken)},
		{MethodName: "Push", Handler: unary(MethodPush, RowsServer.Push)},
		{MethodName: "Pull", Handler: unary(MethodPull, RowsServer.Pull)},
		{MethodName: "Presign", Handler: unary(MethodPresign, RowsServer.Presign)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storekeeper/rows.json",
}

// RegisterRowsServer registers srv on s.
func RegisterRowsServer(s grpc.ServiceRegistrar, srv RowsServer) {
	s.RegisterService(&RowsServiceDesc, srv)
}
