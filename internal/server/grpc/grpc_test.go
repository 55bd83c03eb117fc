package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/auth"
	"github.com/dmitrijs2005/storekeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeRows struct {
	mu       sync.Mutex
	identity []string
	resp     *rpc.PushResponse
	err      error
}

func (f *fakeRows) Push(_ context.Context, userID, workspaceID string, req *rpc.PushRequest) (*rpc.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = append(f.identity, userID+"@"+workspaceID)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	row := req.Row
	row.UserID = userID
	return &rpc.PushResponse{Row: row, Applied: true}, nil
}

func (f *fakeRows) Pull(_ context.Context, workspaceID string, req *rpc.PullRequest) (*rpc.PullResponse, error) {
	if req.WorkspaceID != workspaceID {
		return nil, common.ErrWorkspaceMismatch
	}
	return &rpc.PullResponse{
		Rows: []rpc.Row{{Table: req.Table, ID: "p1", WorkspaceID: workspaceID, Version: 1}},
		AsOf: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeAuth struct {
	refreshed int
}

func pairFor(t *testing.T, userID, ws string, validity time.Duration) *services.TokenPair {
	t.Helper()
	tok, err := auth.GenerateToken(userID, ws, []byte(secret), validity)
	require.NoError(t, err)
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-" + userID}
}

func (f *fakeAuth) Login(_ context.Context, userID, workspaceID, apiKey string) (*services.TokenPair, error) {
	if apiKey != "good" {
		return nil, common.ErrorUnauthorized
	}
	tok, err := auth.GenerateToken(userID, workspaceID, []byte(secret), time.Hour)
	if err != nil {
		return nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-" + userID}, nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, refreshToken string) (*services.TokenPair, error) {
	if refreshToken != "refresh-u1" {
		return nil, common.ErrInvalidToken
	}
	f.refreshed++
	tok, err := auth.GenerateToken("u1", "W1", []byte(secret), time.Hour)
	if err != nil {
		return nil, err
	}
	return &services.TokenPair{AccessToken: tok, RefreshToken: "refresh-u1"}, nil
}

type fakeAssets struct{}

func (fakeAssets) Presign(_ context.Context, ws string, req *rpc.PresignRequest) (*rpc.PresignResponse, error) {
	if req.Path == "" {
		return nil, common.ErrorValidation
	}
	return &rpc.PresignResponse{URL: "http://s3/" + ws + "/" + req.Path, Path: req.Path}, nil
}

type harness struct {
	rows *fakeRows
	auth *fakeAuth
	addr string
}

func startServer(t *testing.T) *harness {
	t.Helper()
	h := &harness{rows: &fakeRows{}, auth: &fakeAuth{}}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.addr = lis.Addr().String()

	s := NewGRPCServer(h.addr, logging.NewNopLogger(), h.rows, h.auth, fakeAssets{}, secret)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func newClient(t *testing.T, addr string, opts ...client.Option) *client.GRPCClient {
	t.Helper()
	c, err := client.NewGRPCClient(addr, append([]client.Option{client.WithCallTimeout(5 * time.Second)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testRow() rpc.Row {
	return rpc.Row{Table: "products", ID: "p1", WorkspaceID: "W1", Version: 1, UpdatedAt: time.Now().UTC()}
}

func TestServer_PingAndHealth(t *testing.T) {
	h := startServer(t)
	c := newClient(t, h.addr)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, connectivity.NewHealthProber(c.Conn(), "").Probe(ctx))
	require.NoError(t, connectivity.NewHealthProber(c.Conn(), rpc.ServiceName).Probe(ctx))
}

func TestServer_RequiresToken(t *testing.T) {
	h := startServer(t)
	c := newClient(t, h.addr)

	_, err := c.Push(context.Background(), rpc.PushRequest{Row: testRow()})
	require.ErrorIs(t, err, client.ErrUnauthorized)

	c.SetTokens(client.Tokens{Access: "garbage"})
	_, _, err = c.Pull(context.Background(), "products", "W1", time.Time{})
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Empty(t, h.rows.identity)
}

func TestServer_LoginThenPushAndPull(t *testing.T) {
	h := startServer(t)
	c := newClient(t, h.addr)
	ctx := context.Background()

	_, err := c.Login(ctx, "u1", "W1", "bad")
	require.ErrorIs(t, err, client.ErrUnauthorized)

	_, err = c.Login(ctx, "u1", "W1", "good")
	require.NoError(t, err)

	row, err := c.Push(ctx, rpc.PushRequest{Row: testRow()})
	require.NoError(t, err)
	assert.Equal(t, "u1", row.UserID)
	assert.Equal(t, []string{"u1@W1"}, h.rows.identity)

	rows, asOf, err := c.Pull(ctx, "products", "W1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, asOf.IsZero())

	_, _, err = c.Pull(ctx, "products", "W2", time.Time{})
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestServer_RefreshesExpiredToken(t *testing.T) {
	h := startServer(t)

	var hooked client.Tokens
	expired := pairFor(t, "u1", "W1", -time.Minute)
	c := newClient(t, h.addr,
		client.WithTokens(client.Tokens{Access: expired.AccessToken, Refresh: expired.RefreshToken}),
		client.WithRefreshHook(func(tk client.Tokens) { hooked = tk }),
	)

	_, err := c.Push(context.Background(), rpc.PushRequest{Row: testRow()})
	require.NoError(t, err)
	assert.Equal(t, 1, h.auth.refreshed)
	assert.NotEqual(t, expired.AccessToken, hooked.Access)
	assert.Equal(t, hooked, c.Tokens())
}

func TestServer_ErrorMapping(t *testing.T) {
	h := startServer(t)
	valid := pairFor(t, "u1", "W1", time.Hour)
	c := newClient(t, h.addr, client.WithTokens(client.Tokens{Access: valid.AccessToken}))
	ctx := context.Background()

	h.rows.resp = &rpc.PushResponse{Row: rpc.Row{Table: "products", ID: "p1", Version: 7}, Conflict: true}
	_, err := c.Push(ctx, rpc.PushRequest{Row: testRow()})
	var conflict *client.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.Remote.Version)

	h.rows.resp = nil
	h.rows.err = common.ErrUnknownTable
	_, err = c.Push(ctx, rpc.PushRequest{Row: testRow()})
	require.ErrorIs(t, err, common.ErrorValidation)

	h.rows.err = errors.New("disk on fire")
	_, err = c.Push(ctx, rpc.PushRequest{Row: testRow()})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "disk on fire")

	_, err = c.PresignUpload(ctx, "")
	require.ErrorIs(t, err, common.ErrorValidation)

	p, err := c.PresignDownload(ctx, "assets/a.png")
	require.NoError(t, err)
	assert.Equal(t, "http://s3/W1/assets/a.png", p.URL)
}

func TestRequiresToken(t *testing.T) {
	assert.False(t, requiresToken(rpc.MethodPing))
	assert.False(t, requiresToken(rpc.MethodLogin))
	assert.False(t, requiresToken("/grpc.health.v1.Health/Check"))
	assert.True(t, requiresToken(rpc.MethodPush))
	assert.True(t, requiresToken(rpc.MethodPresign))
}
