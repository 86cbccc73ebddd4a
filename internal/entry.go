// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Kingsman007137/Bowen/internal/api"
	"github.com/Kingsman007137/Bowen/internal/canvas"
	"github.com/Kingsman007137/Bowen/internal/index"
	"github.com/Kingsman007137/Bowen/internal/registry"
	"github.com/Kingsman007137/Bowen/internal/snapshot"
	"github.com/Kingsman007137/Bowen/internal/sse"
	"github.com/Kingsman007137/Bowen/internal/storage"
	"github.com/Kingsman007137/Bowen/internal/viewport"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_path", cfg.Data.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure data directory exists.
	if err := os.MkdirAll(cfg.Data.Path, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Initialize storage and the snapshot store over it.
	kv, err := storage.NewFS(cfg.Data.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	snapshots := snapshot.NewStore(kv)

	// Initialize SQLite card index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Notebook/folder registry, hydrated from the store.
	reg := registry.New(kv, snapshots, logger)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Canvas state engine with debounced persistence.
	engine := canvas.New(snapshots, canvas.Options{
		SaveDebounce: cfg.Canvas.SaveDebounce(),
		Logger:       logger,
		Notify:       broker.PublishCanvasEvent,
		Counts:       reg,
	})
	adapter := viewport.NewAdapter(engine)

	// Run initial index sync.
	if err := index.Sync(db, kv, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// Build API handlers and router.
	handler := api.NewHandler(engine, reg, db, adapter, broker.PublishCanvasEvent)
	attachments, err := api.NewAttachmentHandler(cfg.Data.Path)
	if err != nil {
		return fmt.Errorf("init attachments: %w", err)
	}
	apiRouter := api.NewRouter(handler, attachments, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Uploaded images referenced from card content.
	r.Handle("/attachments/*", http.StripPrefix("/attachments/",
		http.FileServer(http.Dir(attachments.Dir()))))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the data-dir watcher so snapshots written by other sessions are
	// picked up by the search index.
	g.Go(func() error {
		if err := index.Watch(gCtx, db, kv, cfg.Data.Path, logger, func(kind, notebookID string) {
			broker.Publish(sse.Event{Type: "index.updated", Data: map[string]string{
				"kind":        kind,
				"notebook_id": notebookID,
			}})
		}); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// The debounce window must not swallow the final burst of edits.
		engine.Flush()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		broker.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
