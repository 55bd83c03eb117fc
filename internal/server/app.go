// Package server wires the reference backend: PostgreSQL storage, the rows
// service over gRPC and the HTTP surface with metrics and the changefeed.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/logging"
	"github.com/dmitrijs2005/storekeeper/internal/server/config"
	gs "github.com/dmitrijs2005/storekeeper/internal/server/grpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/storekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storekeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	grpc   *gs.GRPCServer
	http   *httpapi.Server
}

// NewApp connects to the database, applies migrations and builds the servers.
// Logs go to w as JSON.
func NewApp(ctx context.Context, cfg *config.Config, w io.Writer) (*App, error) {
	logger := logging.NewJSONLogger(w, cfg.LogLevel)

	db, err := sqlOpen("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	app, err := newApp(ctx, cfg, logger, db, repomanager.NewPostgresRepositoryManager())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "storekeeper"),
	)
	m := metrics.New(reg)
	hub := httpapi.NewHub(0, m)

	rows := services.NewRowService(db, rm, hub, m, logger)
	authSvc := services.NewAuthService(db, rm, cfg)
	assets := services.NewAssetService(cfg)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		grpc:   gs.NewGRPCServer(cfg.EndpointAddrGRPC, logger, rows, authSvc, assets, cfg.SecretKey),
		http:   httpapi.NewServer(cfg.EndpointAddrHTTP, hub, reg, cfg.SecretKey, logger),
	}, nil
}

// Run serves gRPC and HTTP until ctx is done or either server fails, then
// shuts both down and closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			app.logger.Error(ctx, "server failed", "server", name, "error", err)
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			mu.Unlock()
			cancel()
		}
	}

	wg.Add(2)
	go run("grpc", app.grpc.Run)
	go run("http", app.http.Run)
	wg.Wait()

	app.logger.Info(ctx, "Stopped")
	if err := app.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
