package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      rpc.RowsClient
	callTimeout time.Duration

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	onRefresh    func(Tokens)
}

type Option func(*GRPCClient)

// WithTokens starts the client with previously stored tokens.
func WithTokens(t Tokens) Option {
	return func(c *GRPCClient) {
		c.accessToken = t.Access
		c.refreshToken = t.Refresh
	}
}

// WithRefreshHook is called with the new pair after a transparent refresh,
// so the caller can persist it.
func WithRefreshHook(fn func(Tokens)) Option {
	return func(c *GRPCClient) { c.onRefresh = fn }
}

// WithCallTimeout bounds each call. Zero leaves the caller's deadline alone.
func WithCallTimeout(d time.Duration) Option {
	return func(c *GRPCClient) { c.callTimeout = d }
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if refresh == "" || method == rpc.MethodRefreshToken {
		return err
	}

	resp, rerr := s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: refresh})
	if rerr != nil {
		return rerr
	}
	s.SetTokens(Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken})

	s.mu.RLock()
	hook := s.onRefresh
	s.mu.RUnlock()
	if hook != nil {
		hook(Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken})
	}

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL (host:port).
func NewGRPCClient(endpointURL string, opts ...Option) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	for _, o := range opts {
		o(c)
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(dialOpts ...grpc.DialOption) error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, dialOpts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewRowsClient(conn)
	return nil
}

// Conn exposes the connection, e.g. for a health prober.
func (s *GRPCClient) Conn() grpc.ClientConnInterface {
	return s.conn
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) Tokens() Tokens {
	a, r := s.tokens()
	return Tokens{Access: a, Refresh: r}
}

func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = t.Access
	s.refreshToken = t.Refresh
}

func (s *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Login(ctx context.Context, userID, workspaceID, apiKey string) (Tokens, error) {
	req := &rpc.LoginRequest{UserID: userID, WorkspaceID: workspaceID, APIKey: apiKey}

	resp, err := s.client.Login(ctx, req)
	if err != nil {
		return Tokens{}, s.mapError(err)
	}

	t := Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken}
	s.SetTokens(t)
	return t, nil
}

// Push writes one row. A version conflict is returned as *ConflictError
// holding the server's copy.
func (s *GRPCClient) Push(ctx context.Context, req rpc.PushRequest) (*rpc.Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Push(ctx, &req)
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Conflict {
		return nil, &ConflictError{Remote: resp.Row}
	}
	return &resp.Row, nil
}

// Pull returns rows of table changed after since, and the server time to
// use as the next cursor.
func (s *GRPCClient) Pull(ctx context.Context, table, workspaceID string, since time.Time) ([]rpc.Row, time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Pull(ctx, &rpc.PullRequest{Table: table, WorkspaceID: workspaceID, Since: since})
	if err != nil {
		return nil, time.Time{}, s.mapError(err)
	}
	return resp.Rows, resp.AsOf, nil
}

func (s *GRPCClient) PresignUpload(ctx context.Context, path string) (*rpc.PresignResponse, error) {
	return s.presign(ctx, http.MethodPut, path)
}

func (s *GRPCClient) PresignDownload(ctx context.Context, path string) (*rpc.PresignResponse, error) {
	return s.presign(ctx, http.MethodGet, path)
}

func (s *GRPCClient) presign(ctx context.Context, method, path string) (*rpc.PresignResponse, error) {
	resp, err := s.client.Presign(ctx, &rpc.PresignRequest{Method: method, Path: path})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorValidation)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
