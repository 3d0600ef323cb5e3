// app.go
package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ladybug/internal/checkpoint"
	"ladybug/internal/config"
	"ladybug/internal/difference"
	"ladybug/internal/eventhub"
	"ladybug/internal/logging"
	"ladybug/internal/watcher"
)

// App struct contains the core application state and managers
type App struct {
	ctx    context.Context
	mu     sync.RWMutex
	config *config.Config
	logger *logging.Logger

	// Core managers
	storage  *checkpoint.Storage
	manager  *checkpoint.Manager
	renderer *difference.Renderer
	eventHub *eventhub.EventHub
	watcher  *watcher.Watcher
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// Startup wires the managers from cfg. A logger set with SetLogger before
// Startup is kept; otherwise one is built from cfg.Log.
func (a *App) Startup(ctx context.Context, cfg *config.Config) error {
	a.ctx = ctx
	a.config = cfg

	if a.logger == nil {
		logger, err := logging.NewLogger(&cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		a.logger = logger
	}

	storage, err := checkpoint.NewStorage(cfg.CaptureDir, a.logger)
	if err != nil {
		return fmt.Errorf("open capture storage: %w", err)
	}
	a.storage = storage

	renderer, err := difference.NewRenderer(cfg.Render.CacheSize)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	a.renderer = renderer

	// Initialize EventHub (before managers that need it)
	a.eventHub = eventhub.New(ctx)
	a.manager = checkpoint.NewManager(a.eventHub, a.logger)

	a.logger.Debug(ctx, "all managers initialized",
		zap.String("capture_dir", cfg.CaptureDir),
		zap.String("strategy", cfg.Compare.Strategy))
	return nil
}

// Shutdown releases the watcher and the capture decoder.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			a.logger.Warn(ctx, "close watcher", zap.Error(err))
		}
	}
	if a.storage != nil {
		a.storage.Close()
	}
	if a.logger != nil {
		a.logger.Debug(ctx, "ladybug shutdown complete")
		_ = a.logger.Close()
	}
}

// SetLogger replaces the logger built at startup.
func (a *App) SetLogger(logger *logging.Logger) {
	a.logger = logger
}

// SetEventHubBroadcaster sets where workspace events are delivered.
func (a *App) SetEventHubBroadcaster(broadcaster eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.SetBroadcaster(broadcaster)
	}
}
