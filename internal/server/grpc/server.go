// Package grpc serves the rows service over gRPC with the JSON codec, plus
// the standard gRPC health service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type RowService interface {
	Push(ctx context.Context, userID, workspaceID string, req *rpc.PushRequest) (*rpc.PushResponse, error)
	Pull(ctx context.Context, workspaceID string, req *rpc.PullRequest) (*rpc.PullResponse, error)
}

type AuthService interface {
	Login(ctx context.Context, userID, workspaceID, apiKey string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type AssetService interface {
	Presign(ctx context.Context, workspaceID string, req *rpc.PresignRequest) (*rpc.PresignResponse, error)
}

type GRPCServer struct {
	address   string
	rows      RowService
	auth      AuthService
	assets    AssetService
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
	now       func() time.Time
}

func NewGRPCServer(a string, l logging.Logger, rs RowService, as AuthService, assets AssetService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		rows:      rs,
		auth:      as,
		assets:    assets,
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
		now:       time.Now,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterRowsServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
