// Package httpapi serves the server's HTTP surface: health, Prometheus
// metrics and the websocket changefeed.
package httpapi

import (
	"sync"

	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/metrics"
)

const defaultBufferSize = 256

// Subscription receives the changes of one workspace.
type Subscription struct {
	ID          uint64
	WorkspaceID string
	ch          chan rpc.Change
	done        chan struct{}
	closed      bool
	mu          sync.Mutex
}

func (s *Subscription) C() <-chan rpc.Change {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Hub fans row changes out to changefeed subscribers.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	metrics    *metrics.Metrics
}

func NewHub(bufferSize int, m *metrics.Metrics) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		metrics:    m,
	}
}

func (h *Hub) Subscribe(workspaceID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		ID:          h.nextID,
		WorkspaceID: workspaceID,
		ch:          make(chan rpc.Change, h.bufferSize),
		done:        make(chan struct{}),
	}
	h.subs[sub.ID] = sub
	h.metrics.FeedClients(1)
	return sub
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
		h.metrics.FeedClients(-1)
	}
}

// Publish delivers c to every subscriber of its workspace. A subscriber
// whose buffer is full misses the notification; it catches up on its next
// pull.
func (h *Hub) Publish(c rpc.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.metrics.Published()
	for _, sub := range h.subs {
		if sub.WorkspaceID != c.WorkspaceID {
			continue
		}
		select {
		case sub.ch <- c:
		default:
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
		h.metrics.FeedClients(-1)
	}
}
