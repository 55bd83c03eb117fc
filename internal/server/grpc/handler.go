package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC codes the client understands.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrWorkspaceMismatch):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrUnknownTable), errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) identity(ctx context.Context) (userID, workspaceID string, err error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return "", "", status.Error(codes.Unauthenticated, "missing token")
	}
	return claims.UserID, claims.WorkspaceID, nil
}

func (s *GRPCServer) Ping(context.Context, *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK", ServerTime: s.now().UTC()}, nil
}

func tokenResponse(p *services.TokenPair) *rpc.TokenResponse {
	return &rpc.TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.TokenResponse, error) {
	pair, err := s.auth.Login(ctx, req.UserID, req.WorkspaceID, req.APIKey)
	if err != nil {
		s.logger.Warn(ctx, "login rejected", "user", req.UserID, "workspace", req.WorkspaceID, "error", err)
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "logged in", "user", req.UserID, "workspace", req.WorkspaceID)
	return tokenResponse(pair), nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.TokenResponse, error) {
	pair, err := s.auth.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}
	return tokenResponse(pair), nil
}

func (s *GRPCServer) Push(ctx context.Context, req *rpc.PushRequest) (*rpc.PushResponse, error) {
	userID, ws, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.rows.Push(ctx, userID, ws, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req *rpc.PullRequest) (*rpc.PullResponse, error) {
	_, ws, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.rows.Pull(ctx, ws, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *GRPCServer) Presign(ctx context.Context, req *rpc.PresignRequest) (*rpc.PresignResponse, error) {
	_, ws, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.assets.Presign(ctx, ws, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}
