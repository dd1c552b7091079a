package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/ladder-cache/internal/api"
	"github.com/terra-clan/ladder-cache/internal/cascade"
	"github.com/terra-clan/ladder-cache/internal/catalog"
	"github.com/terra-clan/ladder-cache/internal/config"
	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/httpcache"
	"github.com/terra-clan/ladder-cache/internal/loader"
	"github.com/terra-clan/ladder-cache/internal/sections"
	"github.com/terra-clan/ladder-cache/internal/snapshot"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	os.Exit(run())
}

// run wires the process and blocks until a shutdown signal. Stores opened
// here are closed before it returns, on every path.
func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	slog.Info("starting ladder-cache",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"remote", cfg.Remote.BaseURL,
		"store", cfg.Store.Driver,
		"flat", cfg.Flat.Driver,
		"http_cache", cfg.HTTPCache.Driver,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	t, err := openTiers(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open cache tiers", "error", err)
		return 1
	}
	defer t.Close()

	httpClient := &http.Client{Timeout: cfg.Remote.Timeout}
	client := catalog.NewClient(cfg.Remote.BaseURL,
		httpcache.New(t.responses,
			httpcache.WithHTTPClient(httpClient),
			httpcache.WithRetry(uint(cfg.Remote.RetryAttempts), cfg.Remote.RetryBackoff),
		),
		catalog.WithHTTPClient(httpClient),
		catalog.WithCategoryLimit(cfg.Remote.CategoryLimit),
	)

	flat := flatcache.New(t.flat)
	c := cascade.New(t.kv, flat, client, cascade.Options{
		PageSize:            cfg.Prefetch.PageSize,
		PrefetchChunk:       cfg.Prefetch.ChunkSize,
		PrefetchConcurrency: cfg.Prefetch.Concurrency,
		ChunkDelay:          cfg.Prefetch.ChunkDelay,
		PrefetchAll:         cfg.Prefetch.Enabled,
	})

	if n := c.EnsureSectionCaches(initCtx); n > 0 {
		slog.Info("section caches derived from global catalog", "sections", n)
	}

	// a stable owner lets a restarted process resume its own jobs at once
	owner := cfg.Loader.Owner
	if owner == "" {
		owner, _ = os.Hostname()
	}
	jobs := loader.NewCoordinator(c, loader.NewJobStore(flat), loader.Options{
		Pace:       cfg.Loader.Pace,
		StaleAfter: cfg.Loader.StaleAfter,
		Owner:      owner,
	})

	if cfg.Loader.ResumeOnBoot {
		for _, name := range sections.All() {
			resumed, err := jobs.ResumeIfRunning(initCtx, name)
			if err != nil {
				slog.Warn("failed to resume job", "section", name, "error", err)
				continue
			}
			if resumed {
				slog.Info("resumed job after restart", "section", name)
			}
		}
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start snapshot worker
	snapshots := snapshot.NewWorker(c, cfg.Loader.SnapshotInterval)
	snapshots.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, c, jobs, t.health)
	httpServer := &http.Server{
		Addr:        cfg.Address(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case <-quit:
		slog.Info("shutting down gracefully...")
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
		code = 1
	}

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Jobs stay "running" in the flat cache and resume on the next boot
	jobs.Close()
	c.Close()
	snapshots.Wait()

	slog.Info("ladder-cache stopped")
	return code
}
