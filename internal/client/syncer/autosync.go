package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
)

// Monitor is the connectivity source AutoSync follows.
type Monitor interface {
	Subscribe(l connectivity.Listener) func()
	State() connectivity.State
}

// Feed delivers remote change notifications. Subscribe blocks until ctx is
// done (returning nil) or the connection fails.
type Feed interface {
	Subscribe(ctx context.Context, workspaceID string, handle func(rpc.Change)) error
}

type Runner interface {
	Sync(ctx context.Context, userID, workspaceID string) Result
	LastSync() time.Time
}

type PendingCounter interface {
	PendingCount(ctx context.Context, workspaceID string) (int, error)
}

type AutoSyncOptions struct {
	UserID      string
	WorkspaceID string

	// StabilizeDelay is waited after coming online.
	StabilizeDelay time.Duration
	// KickDelay batches bursts of local edits and remote changes.
	KickDelay time.Duration
	// RetryDelays are applied after consecutive failed attempts.
	RetryDelays []time.Duration
	// FreshFor skips a sync with nothing to push when the last one
	// finished this recently.
	FreshFor time.Duration

	FeedBackoffMin time.Duration
	FeedBackoffMax time.Duration

	OnResult func(Result)
	Now      func() time.Time
}

func (o *AutoSyncOptions) setDefaults() {
	if o.StabilizeDelay <= 0 {
		o.StabilizeDelay = 3 * time.Second
	}
	if o.KickDelay <= 0 {
		o.KickDelay = time.Second
	}
	if o.RetryDelays == nil {
		o.RetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	}
	if o.FreshFor <= 0 {
		o.FreshFor = 10 * time.Minute
	}
	if o.FeedBackoffMin <= 0 {
		o.FeedBackoffMin = time.Second
	}
	if o.FeedBackoffMax <= 0 {
		o.FeedBackoffMax = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// AutoSync runs the engine when connectivity returns, after local edits and
// when the changefeed reports remote changes. It never syncs while offline.
type AutoSync struct {
	runner  Runner
	pending PendingCounter
	monitor Monitor
	feed    Feed
	logger  logging.Logger
	opts    AutoSyncOptions

	mu          sync.Mutex
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	timer       *time.Timer
	force       bool
	attempt     int
	feedCancel  context.CancelFunc

	reconnect chan struct{}
	wg        sync.WaitGroup
}

// NewAutoSync wires the engine to a monitor. feed may be nil.
func NewAutoSync(runner Runner, pending PendingCounter, monitor Monitor, feed Feed, logger logging.Logger,
	opts AutoSyncOptions) *AutoSync {

	opts.setDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AutoSync{
		runner:    runner,
		pending:   pending,
		monitor:   monitor,
		feed:      feed,
		logger:    logger.With("module", "autosync", "workspace", opts.WorkspaceID),
		opts:      opts,
		reconnect: make(chan struct{}, 1),
	}
}

// Start subscribes to the monitor and, when online, schedules a first sync.
// Calling it twice is a no-op.
func (a *AutoSync) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Unlock()

	unsub := a.monitor.Subscribe(a.handle)

	a.mu.Lock()
	a.unsubscribe = unsub
	a.mu.Unlock()

	if a.monitor.State().IsOnline {
		a.schedule(a.opts.StabilizeDelay, false)
	}

	if a.feed != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runFeed(a.ctx)
		}()
	}
}

// Stop cancels pending timers, drops the monitor subscription and waits
// for a running sync and the changefeed to finish.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	unsub := a.unsubscribe
	a.unsubscribe = nil
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	a.wg.Wait()
}

// Kick requests a sync soon, typically after a local mutation.
func (a *AutoSync) Kick() {
	a.schedule(a.opts.KickDelay, true)
}

func (a *AutoSync) handle(e connectivity.Event) {
	switch e {
	case connectivity.EventOnline:
		a.mu.Lock()
		a.attempt = 0
		a.mu.Unlock()
		a.schedule(a.opts.StabilizeDelay, false)
		a.signalReconnect()
	case connectivity.EventWake:
		a.schedule(a.opts.KickDelay, false)
		a.restartFeed()
	case connectivity.EventOffline:
		a.mu.Lock()
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		a.mu.Unlock()
		a.restartFeed()
	}
}

// schedule (re)arms the sync timer. A forced request survives being
// rescheduled by an unforced one.
func (a *AutoSync) schedule(d time.Duration, force bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.stopped {
		return
	}
	a.force = a.force || force
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, a.run)
}

func (a *AutoSync) run() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.timer = nil
	force := a.force
	a.force = false
	ctx := a.ctx
	a.mu.Unlock()
	defer a.wg.Done()

	if !a.monitor.State().IsOnline {
		a.logger.Debug(ctx, "offline, sync skipped")
		return
	}

	if !force {
		n, err := a.pending.PendingCount(ctx, a.opts.WorkspaceID)
		last := a.runner.LastSync()
		if err == nil && n == 0 && !last.IsZero() && a.opts.Now().Sub(last) < a.opts.FreshFor {
			a.logger.Debug(ctx, "nothing to push and recently synced, sync skipped")
			return
		}
	}

	res := a.runner.Sync(ctx, a.opts.UserID, a.opts.WorkspaceID)
	if a.opts.OnResult != nil {
		a.opts.OnResult(res)
	}
	if ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	if res.Success {
		a.attempt = 0
		a.mu.Unlock()
		return
	}
	if a.attempt >= len(a.opts.RetryDelays) {
		a.attempt = 0
		a.mu.Unlock()
		a.logger.Warn(ctx, "sync failed, giving up until the next trigger", "errors", res.Errors)
		return
	}
	delay := a.opts.RetryDelays[a.attempt]
	a.attempt++
	attempt := a.attempt
	a.mu.Unlock()

	a.logger.Info(ctx, "sync failed, retrying", "attempt", attempt, "in", delay, "errors", res.Errors)
	a.schedule(delay, true)
}

func (a *AutoSync) signalReconnect() {
	select {
	case a.reconnect <- struct{}{}:
	default:
	}
}

// restartFeed drops the current changefeed connection; the feed loop
// reconnects once online.
func (a *AutoSync) restartFeed() {
	a.mu.Lock()
	cancel := a.feedCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.signalReconnect()
}

func (a *AutoSync) subscribe(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.feedCancel = cancel
	a.mu.Unlock()

	return a.feed.Subscribe(connCtx, a.opts.WorkspaceID, func(c rpc.Change) {
		a.logger.Debug(ctx, "remote change", "table", c.Table, "id", c.ID, "version", c.Version)
		a.schedule(a.opts.KickDelay, true)
	})
}

func (a *AutoSync) runFeed(ctx context.Context) {
	backoff := a.opts.FeedBackoffMin

	for {
		var err error
		if a.monitor.State().IsOnline {
			err = a.subscribe(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				backoff = a.opts.FeedBackoffMin
				continue
			}
			a.logger.Warn(ctx, "changefeed disconnected", "error", err, "retry_in", backoff)
		}

		var retry <-chan time.Time
		var t *time.Timer
		if err != nil {
			t = time.NewTimer(backoff)
			retry = t.C
			backoff = min(backoff*2, a.opts.FeedBackoffMax)
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case <-a.reconnect:
			backoff = a.opts.FeedBackoffMin
		case <-retry:
		}
		if t != nil {
			t.Stop()
		}
	}
}
