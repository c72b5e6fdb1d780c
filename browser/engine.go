// Package browser implements the crawl pipeline's browser-automation
// collaborator on top of go-rod: one shared Chrome process, with isolated
// incognito sessions handed out per politeness cluster.
package browser

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/fetcher"
	"github.com/use-agent/clustercrawl/models"
)

// Engine owns the Chrome process. Sessions created from it are isolated
// browser contexts; the engine itself is safe for concurrent use.
type Engine struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

// NewEngine launches a headless browser and connects to it.
func NewEngine(cfg config.BrowserConfig) (*Engine, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeSessionCreate,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeSessionCreate,
			"failed to connect to browser",
			err,
		)
	}

	return &Engine{browser: browser, cfg: cfg}, nil
}

// NewSession opens an isolated incognito browser context. The caller owns it
// exclusively and must Close it when its cluster task finishes.
func (e *Engine) NewSession(ctx context.Context) (fetcher.Session, error) {
	incognito, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeSessionCreate,
			"failed to create browser context",
			err,
		)
	}
	return &session{browser: incognito, cfg: e.cfg}, nil
}

// Close kills the browser process. Call on shutdown to prevent zombie
// Chrome processes.
func (e *Engine) Close() {
	slog.Info("browser engine shutting down")
	e.browser.MustClose()
	slog.Info("browser engine shutdown complete")
}
