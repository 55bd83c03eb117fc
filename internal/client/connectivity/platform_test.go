package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *fakeHandler) HandleOnline()  { h.record("online") }
func (h *fakeHandler) HandleOffline() { h.record("offline") }

func (h *fakeHandler) record(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, s)
}

func (h *fakeHandler) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func TestNetworkWatcher_ForwardsChanges(t *testing.T) {
	h := &fakeHandler{}
	w := NewNetworkWatcher(h, 5*time.Millisecond, nil)

	var online atomic.Bool
	online.Store(true)
	w.check = online.Load

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(h.get()) == 1 }, time.Second, time.Millisecond)

	online.Store(false)
	require.Eventually(t, func() bool { return len(h.get()) == 2 }, time.Second, time.Millisecond)

	online.Store(true)
	require.Eventually(t, func() bool { return len(h.get()) == 3 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"online", "offline", "online"}, h.get())
}

func TestNetworkWatcher_DrivesMonitor(t *testing.T) {
	m := NewMonitor(&scriptedProber{}, nil, WithInitialState(true, true))
	w := NewNetworkWatcher(m, time.Hour, nil)
	w.check = func() bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.False(t, m.State().IsOnline)
}
