package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/storekeeper/internal/client/client"
	"github.com/dmitrijs2005/storekeeper/internal/client/config"
	"github.com/dmitrijs2005/storekeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/queue"
	"github.com/dmitrijs2005/storekeeper/internal/client/services"
	"github.com/dmitrijs2005/storekeeper/internal/client/store"
	"github.com/dmitrijs2005/storekeeper/internal/client/syncer"
	"github.com/dmitrijs2005/storekeeper/internal/cryptox"
	"github.com/dmitrijs2005/storekeeper/internal/filex"
	"github.com/dmitrijs2005/storekeeper/internal/logging"
)

const settingsSalt = "storekeeper/settings"

// Streams are the terminal streams a command talks to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// AppFactory builds the App for one command invocation.
type AppFactory func(ctx context.Context, cfg *config.Config, s Streams) (*App, error)

// App owns every client component for the lifetime of a command.
type App struct {
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer
	reader *bufio.Reader

	store    *store.Store
	queue    *queue.Queue
	client   *client.GRPCClient
	engine   *syncer.Engine
	monitor  *connectivity.Monitor
	watcher  *connectivity.NetworkWatcher
	feed     *client.ChangeFeed
	settings services.SettingsService
	entities services.EntityService
	assets   services.AssetService
	session  services.SessionService

	mu       sync.Mutex
	autosync *syncer.AutoSync
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// appKicker forwards entity mutations to whichever AutoSync is running.
type appKicker struct{ app *App }

func (k appKicker) Kick() {
	k.app.mu.Lock()
	as := k.app.autosync
	k.app.mu.Unlock()
	if as != nil {
		as.Kick()
	}
}

// NewApp opens the local store in cfg.DataDir and wires the services around
// it. Nothing touches the network until a command needs it.
func NewApp(ctx context.Context, cfg *config.Config, s Streams) (*App, error) {
	logger := logging.NewTextLogger(s.Err, cfg.LogLevel)

	dir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dir

	st, err := store.Open(ctx, store.Options{Path: cfg.DatabasePath(store.FileName), Logger: logger})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		out:    s.Out,
		reader: bufio.NewReader(s.In),
		store:  st,
	}

	if err := a.wire(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	codec, err := cryptox.NewPassphraseCodec(cfg.SecretPassphrase, settingsSalt)
	if err != nil {
		return fmt.Errorf("secret codec: %w", err)
	}
	a.settings = services.NewSettingsService(a.store.Settings(), codec,
		cfg.DatabasePath(services.MirrorFileName), a.logger)
	if err := a.settings.Load(ctx); err != nil {
		return err
	}

	access, _, err := a.settings.Get(ctx, models.SettingRemoteAccessToken)
	if err != nil {
		return err
	}
	refresh, _, err := a.settings.Get(ctx, models.SettingRemoteRefreshToken)
	if err != nil {
		return err
	}

	a.client, err = client.NewGRPCClient(cfg.ServerEndpointAddr,
		client.WithTokens(client.Tokens{Access: access, Refresh: refresh}),
		client.WithCallTimeout(cfg.ProbeTimeout),
		client.WithRefreshHook(a.saveTokens),
	)
	if err != nil {
		return fmt.Errorf("grpc client: %w", err)
	}

	a.queue = queue.New(a.store, a.logger, queue.Options{MaxRetries: cfg.MaxRetries})
	a.engine = syncer.NewEngine(a.store, a.queue, a.client, a.logger,
		syncer.Options{BatchSize: cfg.SyncBatchSize})

	var prober connectivity.Prober
	if cfg.ProbeURL != "" {
		prober = connectivity.NewHTTPProber(http.DefaultClient, cfg.ProbeURL)
	} else {
		prober = connectivity.NewHealthProber(a.client.Conn(), "")
	}
	a.monitor = connectivity.NewMonitor(prober, a.logger,
		connectivity.WithHeartbeatInterval(cfg.HeartbeatInterval),
		connectivity.WithWakeThreshold(cfg.WakeThreshold),
		connectivity.WithDebounce(cfg.DebounceDelay),
		connectivity.WithProbeTimeout(cfg.ProbeTimeout),
		connectivity.WithFailureThreshold(cfg.FailureThreshold),
	)
	a.watcher = connectivity.NewNetworkWatcher(a.monitor, cfg.NetworkPollInterval, a.logger)
	a.feed = client.NewChangeFeed(cfg.ChangeFeedURL, a.client.Tokens, a.logger)

	a.entities = services.NewEntityService(a.store, a.queue, appKicker{app: a}, a.logger)
	a.assets = services.NewAssetService(a.client, http.DefaultClient)
	a.session = services.NewSessionService(a.client, a.settings, a.queue)
	return nil
}

// saveTokens persists tokens refreshed by the gRPC interceptor.
func (a *App) saveTokens(t client.Tokens) {
	ctx := context.Background()
	if err := a.session.SaveTokens(ctx, t); err != nil {
		a.logger.Warn(ctx, "failed to persist refreshed tokens", "error", err)
	}
}

// identity resolves user and workspace: flags and config win over the
// values remembered by the last login.
func (a *App) identity() (userID, workspaceID string) {
	userID, workspaceID = a.cfg.UserID, a.cfg.WorkspaceID
	if userID == "" {
		userID, _ = a.settings.GetSync(models.SettingActiveUser)
	}
	if workspaceID == "" {
		workspaceID, _ = a.settings.GetSync(models.SettingActiveWorkspace)
	}
	return userID, workspaceID
}

func (a *App) workspace() (string, error) {
	_, ws := a.identity()
	if ws == "" {
		return "", errNoWorkspace
	}
	return ws, nil
}

// Start brings up the background machinery of an interactive session:
// connectivity monitoring, the network watcher, the banner and auto-sync.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.monitor.Subscribe(func(e connectivity.Event) {
		switch e {
		case connectivity.EventOnline:
			printlnFn(renderBanner(true))
		case connectivity.EventOffline:
			printlnFn(renderBanner(false))
		}
	})
	a.monitor.Init(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watcher.Run(ctx)
	}()

	a.restartAutoSync(ctx)
}

// restartAutoSync replaces the running AutoSync, e.g. after a login changed
// the active workspace.
func (a *App) restartAutoSync(ctx context.Context) {
	a.mu.Lock()
	old := a.autosync
	a.autosync = nil
	started := a.started
	a.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if !started {
		return
	}

	userID, ws := a.identity()
	if userID == "" || ws == "" {
		return
	}

	as := syncer.NewAutoSync(a.engine, a.queue, a.monitor, a.feed, a.logger, syncer.AutoSyncOptions{
		UserID:         userID,
		WorkspaceID:    ws,
		StabilizeDelay: a.cfg.AutoSyncDelay,
		OnResult: func(r syncer.Result) {
			if r.Pushed > 0 || r.Pulled > 0 || !r.Success {
				printlnFn(renderResult(r))
			}
		},
	})
	as.Start(ctx)

	a.mu.Lock()
	a.autosync = as
	a.mu.Unlock()
}

// Close stops background work and releases the store and connection.
func (a *App) Close() error {
	a.mu.Lock()
	as := a.autosync
	a.autosync = nil
	cancel := a.cancel
	a.mu.Unlock()

	if as != nil {
		as.Stop()
	}
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.monitor.Destroy()

	cerr := a.session.Close()
	if err := a.store.Close(); err != nil {
		return err
	}
	return cerr
}
