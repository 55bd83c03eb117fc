package services

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/client/queue"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
	"github.com/dmitrijs2005/storekeeper/internal/cryptox"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/stretchr/testify/require"
)

const ws = "W1"

func setupStore(t *testing.T) (*store.Store, *queue.Queue) {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), store.FileName)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, queue.New(st, nil, queue.Options{})
}

func testCodec(t *testing.T) cryptox.SecretCodec {
	t.Helper()
	c, err := cryptox.NewPassphraseCodec("passphrase", "storekeeper-test")
	require.NoError(t, err)
	return c
}

type countingKicker struct {
	n atomic.Int32
}

func (k *countingKicker) Kick() { k.n.Add(1) }

// fakeClient implements only what a test needs; other methods panic via the
// embedded nil interface.
type fakeClient struct {
	client.Client

	tokens   client.Tokens
	loginErr error
	login    []string

	presignURL  string
	presignPath string
	presignErr  error
	closed      bool
}

func (f *fakeClient) Login(ctx context.Context, userID, workspaceID, apiKey string) (client.Tokens, error) {
	f.login = []string{userID, workspaceID, apiKey}
	return f.tokens, f.loginErr
}

func (f *fakeClient) PresignUpload(ctx context.Context, path string) (*rpc.PresignResponse, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	f.presignPath = path
	return &rpc.PresignResponse{URL: f.presignURL + "/" + path, Path: path}, nil
}

func (f *fakeClient) PresignDownload(ctx context.Context, path string) (*rpc.PresignResponse, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	f.presignPath = path
	return &rpc.PresignResponse{URL: f.presignURL + "/" + path, Path: path}, nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}
