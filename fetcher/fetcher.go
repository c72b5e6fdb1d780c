// Package fetcher turns one URL into one CrawlResult using a page borrowed
// from a caller-supplied browser session. Every failure inside a fetch is
// soft: it degrades a single stage to a fallback value and the fetch always
// produces a result. Nothing escapes this boundary.
package fetcher

import (
	"context"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/clustercrawl/formatter"
	"github.com/use-agent/clustercrawl/models"
)

// Session is an exclusively-owned, cluster-scoped browser context. The
// scheduler owns its lifecycle; the fetcher only borrows pages from it.
type Session interface {
	// NewPage opens a fresh tab in this session.
	NewPage(ctx context.Context) (Page, error)

	// Close destroys the session and every page still open in it.
	Close() error
}

// Page is a short-lived tab handle, created and destroyed within a single
// Fetch call and never shared across fetches.
type Page interface {
	// Navigate loads the URL, waiting leniently for content-loaded. The
	// context deadline bounds the wait.
	Navigate(ctx context.Context, url string) error

	// WaitStable waits for a baseline DOM-stability marker.
	WaitStable(ctx context.Context) error

	// Title returns the document title.
	Title() (string, error)

	// HTML returns the rendered document HTML.
	HTML() (string, error)

	// Screenshot captures the viewport to the given file path.
	Screenshot(path string) error

	// Close destroys the tab.
	Close() error
}

// Placeholder values used when a stage degrades.
const (
	placeholderHTML    = "<html><body><p>Content could not be retrieved.</p></body></html>"
	placeholderContent = "Content could not be extracted."
)

// domWaitTimeout bounds the secondary DOM-stability wait. It is deliberately
// much shorter than the navigation timeout: by this point navigation has
// already settled or soft-failed.
const domWaitTimeout = 5 * time.Second

// Config holds the per-run fetch settings.
type Config struct {
	// Timeout bounds navigation. Exceeding it is a soft failure.
	Timeout time.Duration

	// Verbose enables diagnostic screenshots and per-stage debug logs.
	Verbose bool

	// ScreenshotDir receives verbose-mode screenshots.
	ScreenshotDir string

	// ContentSelector optionally scopes extraction to a CSS selector.
	ContentSelector string

	// MaxContentChars truncates content before it reaches the formatter.
	MaxContentChars int
}

// PageFetcher produces one CrawlResult per URL. Safe for concurrent use.
type PageFetcher struct {
	formatter formatter.Formatter // nil means fallback template only
	cfg       Config
}

// New creates a PageFetcher. formatter may be nil. An invalid
// ContentSelector is reported here rather than on every fetch.
func New(f formatter.Formatter, cfg Config) (*PageFetcher, error) {
	if cfg.ContentSelector != "" {
		if err := checkSelector(cfg.ContentSelector); err != nil {
			return nil, models.NewCrawlError(models.ErrCodeInvalidInput, "invalid content selector", err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PageFetcher{formatter: f, cfg: cfg}, nil
}

// Fetch runs the full per-page pipeline and always returns a non-nil result.
//
// Stage flow (each stage either succeeds or degrades, never aborts):
//
//	page create → navigate → DOM wait → title → HTML snapshot →
//	text extraction → screenshot (verbose only) → markdown
func (f *PageFetcher) Fetch(ctx context.Context, sess Session, rawURL string) *models.CrawlResult {
	res := &models.CrawlResult{
		URL:       rawURL,
		Timestamp: time.Now(),
	}

	page, err := sess.NewPage(ctx)
	if err != nil {
		// No page at all: emit the fully degraded result rather than
		// dropping the URL.
		slog.Warn("page creation failed", "url", rawURL, "error", err)
		res.Title = hostnameOf(rawURL)
		res.HTML = placeholderHTML
		res.Content = placeholderContent
		res.Markdown = formatter.FallbackMarkdown(res.Title, res.URL, res.Content)
		return res
	}
	// The tab is released on every exit path, independent of the session's
	// own lifecycle.
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("page close failed", "url", rawURL, "error", closeErr)
		}
	}()

	// ── Navigate (lenient, timeout is a soft failure) ────────────────
	navCtx, navCancel := context.WithTimeout(ctx, f.cfg.Timeout)
	if err := page.Navigate(navCtx, rawURL); err != nil {
		f.stage(rawURL, "navigate", err)
	}
	navCancel()

	// ── Secondary DOM-stability wait (also soft) ─────────────────────
	waitCtx, waitCancel := context.WithTimeout(ctx, domWaitTimeout)
	if err := page.WaitStable(waitCtx); err != nil {
		f.stage(rawURL, "dom_wait", err)
	}
	waitCancel()

	// ── Title, falling back to the hostname ──────────────────────────
	if title, err := page.Title(); err == nil && strings.TrimSpace(title) != "" {
		res.Title = strings.TrimSpace(title)
	} else {
		f.stage(rawURL, "title", err)
		res.Title = hostnameOf(rawURL)
	}

	// ── Raw HTML snapshot ─────────────────────────────────────────────
	if html, err := page.HTML(); err == nil && html != "" {
		res.HTML = html
	} else {
		f.stage(rawURL, "html", err)
		res.HTML = placeholderHTML
	}

	// ── Text extraction (heuristic, never fatal) ─────────────────────
	if content, ok := ExtractText(res.HTML, f.cfg.ContentSelector); ok {
		res.Content = content
	} else {
		f.stage(rawURL, "extract", nil)
		res.Content = placeholderContent
	}

	// ── Diagnostic screenshot ─────────────────────────────────────────
	if f.cfg.Verbose {
		path := filepath.Join(f.cfg.ScreenshotDir, screenshotName(rawURL))
		if err := page.Screenshot(path); err != nil {
			slog.Warn("screenshot failed", "url", rawURL, "path", path, "error", err)
		}
	}

	// ── Markdown normalization ────────────────────────────────────────
	res.Markdown = f.renderMarkdown(ctx, res)

	return res
}

// renderMarkdown delegates to the formatter collaborator with capped
// content; any error or a missing formatter yields the deterministic
// fallback template built from the uncapped content.
func (f *PageFetcher) renderMarkdown(ctx context.Context, res *models.CrawlResult) string {
	if f.formatter != nil {
		doc := formatter.Document{
			Title:   res.Title,
			URL:     res.URL,
			Content: truncateRunes(res.Content, f.cfg.MaxContentChars),
			HTML:    res.HTML,
		}
		md, err := f.formatter.Format(ctx, doc)
		if err == nil {
			return md
		}
		f.stage(res.URL, "format", err)
	}
	return formatter.FallbackMarkdown(res.Title, res.URL, res.Content)
}

// stage records a soft stage failure. Verbose runs log at warn so operators
// can follow a degraded fetch; otherwise debug keeps the noise down.
func (f *PageFetcher) stage(url, stage string, err error) {
	if f.cfg.Verbose {
		slog.Warn("fetch stage degraded", "url", url, "stage", stage, "error", err)
		return
	}
	slog.Debug("fetch stage degraded", "url", url, "stage", stage, "error", err)
}

// hostnameOf returns the URL's hostname, or the raw string when unparsable.
func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// truncateRunes caps s at n runes. n <= 0 means no cap.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// screenshotName derives a filesystem-safe PNG name from a URL.
func screenshotName(rawURL string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, rawURL)
	if len(name) > 120 {
		name = name[:120]
	}
	return name + ".png"
}
