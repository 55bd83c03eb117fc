// Package connectivity tracks whether the remote backend is reachable and
// whether the user is active, and tells subscribers about transitions.
//
// A Monitor is fed by platform signals (HandleOnline, HandleOffline,
// HandleVisibilityChange, HandleFocus) and by its own heartbeat, which
// probes the backend while the app is visible. Going online is debounced;
// going offline is reported immediately. The heartbeat only declares the
// backend lost after several consecutive failed probes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/logging"
)

type Event string

const (
	EventOnline    Event = "online"
	EventOffline   Event = "offline"
	EventWake      Event = "wake"
	EventHeartbeat Event = "heartbeat"
)

type Listener func(Event)

type State struct {
	IsOnline     bool
	IsVisible    bool
	LastActiveAt time.Time
}

const (
	DefaultWakeThreshold     = 60 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultDebounce          = 500 * time.Millisecond
	DefaultProbeTimeout      = 10 * time.Second
	DefaultFailureThreshold  = 2
)

// Prober checks that the backend answers.
type Prober interface {
	Probe(ctx context.Context) error
}

type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

type Monitor struct {
	prober Prober
	logger logging.Logger

	wakeThreshold     time.Duration
	heartbeatInterval time.Duration
	debounce          time.Duration
	probeTimeout      time.Duration
	failureThreshold  int
	now               func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	initialized bool
	ctx         context.Context
	cancel      context.CancelFunc
	debounceT   *time.Timer
	debounceGen uint64
	hbCancel    context.CancelFunc
	listeners   map[int]Listener
	nextID      int

	wg sync.WaitGroup
}

type Option func(*Monitor)

func WithWakeThreshold(d time.Duration) Option {
	return func(m *Monitor) { m.wakeThreshold = d }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Monitor) { m.heartbeatInterval = d }
}

func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) { m.debounce = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.probeTimeout = d }
}

func WithFailureThreshold(n int) Option {
	return func(m *Monitor) { m.failureThreshold = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithInitialState overrides the state derived from the host at construction.
func WithInitialState(online, visible bool) Option {
	return func(m *Monitor) {
		m.state.IsOnline = online
		m.state.IsVisible = visible
	}
}

// NewMonitor builds a Monitor whose initial online flag comes from the
// host's network interfaces. A CLI process starts visible.
func NewMonitor(prober Prober, logger logging.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &Monitor{
		prober:            prober,
		logger:            logger.With("module", "connectivity"),
		wakeThreshold:     DefaultWakeThreshold,
		heartbeatInterval: DefaultHeartbeatInterval,
		debounce:          DefaultDebounce,
		probeTimeout:      DefaultProbeTimeout,
		failureThreshold:  DefaultFailureThreshold,
		now:               time.Now,
		listeners:         map[int]Listener{},
		state:             State{IsOnline: PlatformOnline(), IsVisible: true},
	}
	for _, o := range opts {
		o(m)
	}
	m.state.LastActiveAt = m.now()
	return m
}

// Init starts the heartbeat. Calling it twice is a no-op.
func (m *Monitor) Init(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.startHeartbeatLocked()
	m.logger.Info(ctx, "connectivity monitor initialized", "online", m.state.IsOnline)
}

// Destroy stops timers and the heartbeat, waits for them to finish and drops
// every subscriber. The Monitor may be initialized again afterwards.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	m.cancelDebounceLocked()
	m.stopHeartbeatLocked()
	if m.cancel != nil {
		m.cancel()
	}
	m.listeners = map[int]Listener{}
	m.initialized = false
	m.mu.Unlock()

	m.wg.Wait()
}

// Subscribe registers l and returns a function that removes it.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = l

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) emit(e Event) {
	m.mu.Lock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		m.call(l, e)
	}
}

func (m *Monitor) call(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(context.Background(), "connectivity listener panicked", "event", e, "panic", r)
		}
	}()
	l(e)
}

// HandleOnline reports that the platform regained network access.
func (m *Monitor) HandleOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsOnline {
		return
	}
	m.logger.Info(context.Background(), "network online")
	m.state.IsOnline = true

	m.cancelDebounceLocked()
	gen := m.debounceGen
	m.debounceT = time.AfterFunc(m.debounce, func() { m.fireOnline(gen) })

	m.startHeartbeatLocked()
}

// fireOnline emits the debounced online event of generation gen. A timer
// that fired after being superseded finds a newer generation and does nothing.
func (m *Monitor) fireOnline(gen uint64) {
	m.mu.Lock()
	if gen != m.debounceGen {
		m.mu.Unlock()
		return
	}
	online := m.state.IsOnline
	m.debounceT = nil
	m.debounceGen++
	m.mu.Unlock()

	if online {
		m.emit(EventOnline)
	}
}

func (m *Monitor) cancelDebounceLocked() {
	m.debounceGen++
	if m.debounceT != nil {
		m.debounceT.Stop()
		m.debounceT = nil
	}
}

// HandleOffline reports that the platform lost network access. The event is
// emitted at once and cancels a pending online notification.
func (m *Monitor) HandleOffline() {
	m.mu.Lock()
	if !m.state.IsOnline {
		m.mu.Unlock()
		return
	}
	m.logger.Info(context.Background(), "network offline")
	m.state.IsOnline = false
	m.cancelDebounceLocked()
	m.stopHeartbeatLocked()
	m.mu.Unlock()

	m.emit(EventOffline)
}

// HandleVisibilityChange reports the app moving to or from the foreground.
func (m *Monitor) HandleVisibilityChange(visible bool) {
	m.mu.Lock()
	now := m.now()
	m.state.IsVisible = visible

	wake := false
	if visible {
		idle := now.Sub(m.state.LastActiveAt)
		m.logger.Debug(context.Background(), "app visible", "idle", idle.Round(time.Second))
		wake = idle >= m.wakeThreshold
		m.state.LastActiveAt = now
		m.startHeartbeatLocked()
	} else {
		m.state.LastActiveAt = now
		m.stopHeartbeatLocked()
	}
	m.mu.Unlock()

	if wake {
		m.emit(EventWake)
	}
}

// HandleFocus reports user activity. After a long enough idle period it
// emits a wake event and, like becoming visible, restarts the heartbeat.
func (m *Monitor) HandleFocus() {
	m.mu.Lock()
	now := m.now()
	wake := now.Sub(m.state.LastActiveAt) >= m.wakeThreshold
	if wake {
		m.state.IsVisible = true
		m.startHeartbeatLocked()
	}
	m.state.LastActiveAt = now
	m.mu.Unlock()

	if wake {
		m.emit(EventWake)
	}
}

// CheckConnectivity probes the backend once and applies the result. It
// reports whether the probe succeeded.
func (m *Monitor) CheckConnectivity(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(pctx)
	cancel()

	var events []Event

	m.mu.Lock()
	if err == nil {
		m.failures = 0
		if !m.state.IsOnline {
			m.logger.Info(ctx, "heartbeat restored, marking online")
			m.state.IsOnline = true
			events = append(events, EventOnline)
		}
		events = append(events, EventHeartbeat)
	} else {
		m.failures++
		if m.state.IsOnline && m.failures >= m.failureThreshold {
			m.logger.Warn(ctx, "heartbeat failed, marking offline", "failures", m.failures, "error", err)
			m.state.IsOnline = false
			events = append(events, EventOffline)
		} else if m.state.IsOnline {
			m.logger.Debug(ctx, "heartbeat missed", "failures", m.failures, "threshold", m.failureThreshold)
		}
	}
	m.mu.Unlock()

	for _, e := range events {
		m.emit(e)
	}
	return err == nil
}

func (m *Monitor) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	if m.ctx == nil || m.ctx.Err() != nil || m.heartbeatInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.hbCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.State().IsVisible {
					continue
				}
				m.CheckConnectivity(ctx)
			}
		}
	}()
}

func (m *Monitor) stopHeartbeatLocked() {
	if m.hbCancel != nil {
		m.hbCancel()
		m.hbCancel = nil
	}
}
