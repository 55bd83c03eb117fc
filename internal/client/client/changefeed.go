package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/gorilla/websocket"
)

// ChangeFeed listens to the server's websocket changefeed of a workspace.
type ChangeFeed struct {
	baseURL string
	tokens  func() Tokens
	dialer  *websocket.Dialer
	logger  logging.Logger
}

// NewChangeFeed builds a feed for baseURL (ws:// or wss://). tokens supplies
// the current access token on every connect.
func NewChangeFeed(baseURL string, tokens func() Tokens, logger logging.Logger) *ChangeFeed {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ChangeFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		dialer:  websocket.DefaultDialer,
		logger:  logger.With("module", "changefeed"),
	}
}

func (f *ChangeFeed) endpoint(workspaceID string) (string, error) {
	u, err := url.Parse(f.baseURL + "/v1/workspaces/" + url.PathEscape(workspaceID) + "/changes")
	if err != nil {
		return "", err
	}
	if f.tokens != nil {
		if t := f.tokens().Access; t != "" {
			q := u.Query()
			q.Set(common.AccessTokenHeaderName, t)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// Subscribe connects and calls handle for every change until ctx is done or
// the connection drops. It returns nil only when ctx was canceled.
func (f *ChangeFeed) Subscribe(ctx context.Context, workspaceID string, handle func(rpc.Change)) error {
	endpoint, err := f.endpoint(workspaceID)
	if err != nil {
		return fmt.Errorf("changefeed url: %w", err)
	}

	conn, resp, err := f.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: changefeed: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	f.logger.Debug(ctx, "changefeed connected", "workspace", workspaceID)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var ch rpc.Change
		if err := conn.ReadJSON(&ch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: changefeed closed by server", ErrUnavailable)
			}
			return fmt.Errorf("%w: changefeed read: %v", ErrUnavailable, err)
		}
		handle(ch)
	}
}
