package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestChangeFeed_DeliversChanges(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(rpc.Change{Table: "products", ID: "p1", WorkspaceID: "W1", Version: 2})
		_ = conn.WriteJSON(rpc.Change{Table: "orders", ID: "o1", WorkspaceID: "W1", Version: 1})
		// hold the connection until the client leaves
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	feed := NewChangeFeed(wsURL(srv), func() Tokens { return Tokens{Access: "tok"} }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan rpc.Change, 2)
	done := make(chan error, 1)
	go func() {
		done <- feed.Subscribe(ctx, "W1", func(c rpc.Change) { got <- c })
	}()

	for _, want := range []string{"p1", "o1"} {
		select {
		case c := <-got:
			assert.Equal(t, want, c.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("no change received")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}

	r := <-reqs
	assert.Equal(t, "/v1/workspaces/W1/changes", r.URL.Path)
	assert.Equal(t, "tok", r.URL.Query().Get(common.AccessTokenHeaderName))
}

func TestChangeFeed_ServerCloseIsUnavailable(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		_ = conn.Close()
	}))
	defer srv.Close()

	feed := NewChangeFeed(wsURL(srv), nil, nil)
	err := feed.Subscribe(context.Background(), "W1", func(rpc.Change) {})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestChangeFeed_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusUnauthorized)
	}))
	defer srv.Close()

	feed := NewChangeFeed(wsURL(srv), nil, nil)
	err := feed.Subscribe(context.Background(), "W1", func(rpc.Change) {})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestChangeFeed_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	feed := NewChangeFeed(url, nil, nil)
	err := feed.Subscribe(context.Background(), "W1", func(rpc.Change) {})
	require.ErrorIs(t, err, ErrUnavailable)
}
