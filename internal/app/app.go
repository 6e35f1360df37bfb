package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-content/internal/data/db"
	"github.com/yungbote/neurobridge-content/internal/data/repos"
	"github.com/yungbote/neurobridge-content/internal/http"
	"github.com/yungbote/neurobridge-content/internal/jobs/worker"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *db.Service
	Cfg      Config
	Clients  *Clients
	Repos    repos.Set
	Services Services
	Router   *gin.Engine
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := db.Open(log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if envutil.Bool("DB_AUTO_MIGRATE", true) {
		if err := db.AutoMigrateAll(store.DB()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reposet := repos.NewSet(store.DB(), log)
	serviceset := wireServices(log, clients, reposet)
	handlerset := wireHandlers(log, serviceset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(log, cfg, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       store,
		Cfg:      cfg,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		Router:   router,
	}, nil
}

// Migrate opens the database and applies the schema without wiring anything else.
func Migrate(log *logger.Logger) error {
	store, err := db.Open(log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()
	if err := db.AutoMigrateAll(store.DB()); err != nil {
		return err
	}
	log.Info("Schema migrated", "driver", store.Driver())
	return nil
}

// RunAPI serves the HTTP facade until ctx is cancelled.
func (a *App) RunAPI(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return (&http.Server{Engine: a.Router}).Run(ctx, a.Cfg.HTTPAddr)
}

// RunWorker runs the ingest worker pool until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil || a.Services.Pipeline == nil {
		return fmt.Errorf("app not initialized")
	}
	pool, err := worker.New(a.Log, a.Repos.Jobs, a.Services.Pipeline, a.Services.Notifier, worker.ConfigFromEnv())
	if err != nil {
		return err
	}
	return pool.Run(ctx)
}

// RunAll runs the API and the worker in one process; either failing stops both.
func (a *App) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunAPI(gctx) })
	g.Go(func() error { return a.RunWorker(gctx) })
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	a.Log.Sync()
}
