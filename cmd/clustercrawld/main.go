package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/clustercrawl/api"
	"github.com/use-agent/clustercrawl/api/handler"
	"github.com/use-agent/clustercrawl/browser"
	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/formatter"
	"github.com/use-agent/clustercrawl/ratelimit"
	"github.com/use-agent/clustercrawl/scheduler"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("clustercrawl starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"concurrency", cfg.Crawl.Concurrency,
	)

	// ── 3. Launch browser engine ────────────────────────────────────
	engine, err := browser.NewEngine(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// ── 4. Select markdown formatter ────────────────────────────────
	f := newFormatter(cfg.Formatter)

	// ── 5. Build the crawl scheduler ────────────────────────────────
	policy := ratelimit.NewPolicy(cfg.RateLimit)
	sched, err := scheduler.New(engine, f, policy, scheduler.Config{
		Depth:            cfg.Crawl.Depth,
		Timeout:          cfg.Crawl.Timeout,
		Concurrency:      cfg.Crawl.Concurrency,
		GlobalMaxFetches: cfg.Crawl.GlobalMaxFetches,
		ContentSelector:  cfg.Crawl.ContentSelector,
		ScreenshotDir:    cfg.Crawl.ScreenshotDir,
		MaxContentChars:  cfg.Formatter.MaxContentChars,
	})
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	store := handler.NewJobStore(1 * time.Hour)
	router := api.NewRouter(sched, store, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// engine.Close() runs via defer — kills Chrome.
	slog.Info("clustercrawl stopped")
}

// newFormatter builds the formatter for the configured mode. "none" returns
// nil, which makes the fetcher emit the deterministic fallback markdown.
func newFormatter(cfg config.FormatterConfig) formatter.Formatter {
	switch cfg.Mode {
	case "openai":
		if cfg.APIKey == "" {
			slog.Warn("formatter mode is openai but no API key is set, using local")
			return formatter.NewLocal()
		}
		return formatter.NewOpenAI(nil, cfg)
	case "none":
		return nil
	default:
		return formatter.NewLocal()
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
