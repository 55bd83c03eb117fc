package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Login(ctx context.Context, userID, workspaceID, apiKey string) (Tokens, error)
	Push(ctx context.Context, req rpc.PushRequest) (*rpc.Row, error)
	Pull(ctx context.Context, table, workspaceID string, since time.Time) ([]rpc.Row, time.Time, error)
	PresignUpload(ctx context.Context, path string) (*rpc.PresignResponse, error)
	PresignDownload(ctx context.Context, path string) (*rpc.PresignResponse, error)
}

type Tokens struct {
	Access  string
	Refresh string
}
