package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/questweaver/internal/data/db"
	"github.com/yungbote/questweaver/internal/data/repos"
	"github.com/yungbote/questweaver/internal/http"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/logger"
	"github.com/yungbote/questweaver/internal/realtime"
	"github.com/yungbote/questweaver/internal/services"
	"github.com/yungbote/questweaver/internal/temporalx/temporalworker"
)

type App struct {
	Log        *logger.Logger
	Cfg        Config
	DB         *gorm.DB
	Clients    *Clients
	Repos      repos.Repos
	Generation Generation
	Quests     services.QuestService
	SSEHub     *realtime.SSEHub
	Server     *http.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger(mode string) (*logger.Logger, error) {
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := NewLogger(cfg.LogMode)
	if err != nil {
		return nil, err
	}

	observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "questweaver",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	dbService, err := db.Open(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg, clientOptions{bus: true, archive: true})
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.New(theDB, log)
	hub := realtime.NewSSEHub(log)
	gen := wireGeneration(log, cfg, clients)

	quests := services.NewQuestService(
		log,
		gen.Selector,
		reposet.QuestRuns,
		services.NewQuestNotifier(&services.BusEmitter{Bus: clients.SSEBus, Log: log}),
		clients.Archive,
		cfg.Runs,
	)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Clients:      clients,
		Repos:        reposet,
		Generation:   gen,
		Quests:       quests,
		SSEHub:       hub,
		Server:       wireServer(log, cfg, theDB, clients, hub, quests),
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the bus forwarder feeding the SSE hub,
// the metrics endpoint, stale-run recovery and the Temporal worker.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
		return fmt.Errorf("start SSE forwarder: %w", err)
	}

	m := observability.Current()
	m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	m.StartRedisCollector(ctx, a.Log, a.Clients.Redis, 0)

	if n, err := a.Quests.RecoverStale(ctx, a.Cfg.StaleRunAfter); err != nil {
		a.Log.Warn("stale run recovery failed", "error", err)
	} else if n > 0 {
		a.Log.Info("failed stale quest runs", "count", n)
	}

	if a.Clients.Temporal != nil && a.Cfg.TemporalWorker {
		runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Generation.Activities)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run()
}

// Shutdown stops accepting requests, lets in-flight runs record their final
// state and releases every connection.
func (a *App) Shutdown(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown", "error", err)
		}
	}
	if a.Quests != nil {
		if err := a.Quests.Shutdown(ctx); err != nil {
			a.Log.Warn("quest runs did not finish before shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(flushCtx)
		cancel()
	}
	a.Log.Sync()
}
