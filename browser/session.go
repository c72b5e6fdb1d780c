package browser

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/fetcher"
	"github.com/use-agent/clustercrawl/models"
)

// session is one incognito browser context, owned by exactly one cluster
// task for its full lifetime.
type session struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

// NewPage opens a tab in this session, with stealth JS, extra headers and
// resource blocking installed before any navigation.
func (s *session) NewPage(ctx context.Context) (fetcher.Page, error) {
	p, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeSessionCreate,
			"failed to create page",
			err,
		)
	}

	// Stealth and hijack must be installed before navigation — they only
	// take effect for navigations that happen after they are mounted.
	if s.cfg.Stealth {
		if _, evalErr := p.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	router := setupHijack(p, s.cfg.BlockedResourceTypes)

	return &page{p: p, router: router}, nil
}

// Close disposes the incognito context and every page still open in it.
func (s *session) Close() error {
	return proto.TargetDisposeBrowserContext{
		BrowserContextID: s.browser.BrowserContextID,
	}.Call(s.browser)
}

// page wraps a rod tab behind the fetcher.Page interface.
type page struct {
	p      *rod.Page
	router *rod.HijackRouter
}

// Navigate loads the URL and waits leniently for the load event. The context
// deadline bounds the whole operation; hitting it is the caller's soft
// failure, not ours to mask.
func (pg *page) Navigate(ctx context.Context, rawURL string) error {
	p := pg.p.Context(ctx)

	// A plausible Referer makes some origins serve the full page.
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(p)
	}

	if err := p.Navigate(rawURL); err != nil {
		return err
	}
	return p.WaitLoad()
}

// WaitStable waits for the DOM to stop mutating for a short window.
func (pg *page) WaitStable(ctx context.Context) error {
	return pg.p.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1)
}

// Title returns document.title, which unlike target info reflects JS updates.
func (pg *page) Title() (string, error) {
	res, err := pg.p.Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// HTML returns the rendered document HTML.
func (pg *page) HTML() (string, error) {
	return pg.p.HTML()
}

// Screenshot captures the viewport to path.
func (pg *page) Screenshot(path string) error {
	data, err := pg.p.Screenshot(false, nil)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Close stops the hijack router and destroys the tab.
func (pg *page) Close() error {
	if pg.router != nil {
		_ = pg.router.Stop()
	}
	return pg.p.Close()
}
