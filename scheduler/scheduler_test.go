package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/fetcher"
	"github.com/use-agent/clustercrawl/models"
	"github.com/use-agent/clustercrawl/ratelimit"
)

// gauge tracks the current and peak value of a concurrent counter.
type gauge struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gauge) inc() {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()
}

func (g *gauge) dec() {
	g.mu.Lock()
	g.current--
	g.mu.Unlock()
}

func (g *gauge) max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// stubPage satisfies fetcher.Page with fixed content. It reports open/close
// to the gauge so tests can observe fetch concurrency, and fails its content
// stages when navigated to a URL containing failSubstr.
type stubPage struct {
	open       *gauge
	failSubstr string
	target     string
}

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.target = url
	return nil
}

func (p *stubPage) WaitStable(context.Context) error { return nil }

func (p *stubPage) failing() bool {
	return p.failSubstr != "" && strings.Contains(p.target, p.failSubstr)
}

func (p *stubPage) Title() (string, error) {
	if p.failing() {
		return "", errors.New("tab crashed")
	}
	return "Stub Page", nil
}

func (p *stubPage) HTML() (string, error) {
	if p.failing() {
		return "", errors.New("tab crashed")
	}
	return "<html><body><main><p>stub content</p></main></body></html>", nil
}

func (p *stubPage) Screenshot(string) error { return nil }
func (p *stubPage) Close() error {
	p.open.dec()
	return nil
}

// stubSession hands out stubPages, holding each open briefly so overlapping
// fetches are observable.
type stubSession struct {
	open       *gauge
	failSubstr string
	closed     atomic.Bool
}

func (s *stubSession) NewPage(context.Context) (fetcher.Page, error) {
	s.open.inc()
	time.Sleep(5 * time.Millisecond)
	return &stubPage{open: s.open, failSubstr: s.failSubstr}, nil
}

func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

// stubFactory creates stubSessions, optionally failing a number of calls.
type stubFactory struct {
	open       *gauge
	failSubstr string       // forwarded to pages
	failures   atomic.Int32 // remaining NewSession calls to fail

	mu       sync.Mutex
	sessions []*stubSession
}

func (f *stubFactory) NewSession(context.Context) (fetcher.Session, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("no browser context available")
	}
	sess := &stubSession{open: f.open, failSubstr: f.failSubstr}
	f.mu.Lock()
	f.sessions = append(f.sessions, sess)
	f.mu.Unlock()
	return sess, nil
}

func (f *stubFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

func newStubFactory(failures int) *stubFactory {
	f := &stubFactory{open: &gauge{}}
	f.failures.Store(int32(failures))
	return f
}

func newTestScheduler(t *testing.T, factory SessionFactory, cfg Config) *Scheduler {
	t.Helper()
	// Zero delays keep the tests fast; pause() is exercised separately.
	policy := ratelimit.NewPolicy(config.RateLimitConfig{})
	s, err := New(factory, nil, policy, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func urlsOf(results []*models.CrawlResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func searchResults(urls ...string) []models.SearchResult {
	out := make([]models.SearchResult, len(urls))
	for i, u := range urls {
		out[i] = models.SearchResult{URL: u}
	}
	return out
}

func TestCrawl_SingleClusterPreservesOrder(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{Concurrency: 2})

	input := searchResults(
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
		"https://example.com/4",
		"https://example.com/5",
	)
	results := s.Crawl(context.Background(), input, models.CrawlOptions{
		Cluster: models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if r.URL != input[i].URL {
			t.Errorf("result %d = %q, want %q (input order)", i, r.URL, input[i].URL)
		}
		if r.Cluster != "example.com" {
			t.Errorf("result %d cluster = %q", i, r.Cluster)
		}
		if r.Markdown == "" {
			t.Errorf("result %d missing markdown", i)
		}
	}
	if !factory.allClosed() {
		t.Error("session left open after run")
	}
}

func TestCrawl_ConcurrencyBoundedPerCluster(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{})

	input := searchResults(
		"https://one-host.com/1", "https://one-host.com/2", "https://one-host.com/3",
		"https://one-host.com/4", "https://one-host.com/5", "https://one-host.com/6",
	)
	s.Crawl(context.Background(), input, models.CrawlOptions{
		Concurrency: 2,
		Cluster:     models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if got := factory.open.max(); got > 2 {
		t.Errorf("peak concurrent fetches = %d, want <= 2", got)
	}
}

func TestCrawl_SessionFailureDropsOnlyThatCluster(t *testing.T) {
	// Two clusters, one session-creation failure: the failing cluster
	// contributes nothing, the other crawls fully.
	factory := newStubFactory(1)
	s := newTestScheduler(t, factory, Config{Concurrency: 2})

	input := searchResults(
		"https://alpha.com/1", "https://alpha.com/2",
		"https://beta.com/1", "https://beta.com/2",
	)
	results := s.Crawl(context.Background(), input, models.CrawlOptions{
		Cluster: models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results from the surviving cluster, got %d: %v",
			len(results), urlsOf(results))
	}
	surviving := results[0].Cluster
	for _, r := range results {
		if r.Cluster != surviving {
			t.Errorf("results span clusters %q and %q, expected one surviving cluster",
				surviving, r.Cluster)
		}
	}
	if !factory.allClosed() {
		t.Error("surviving session left open")
	}
}

func TestCrawl_FailingURLDoesNotAffectBatchSiblings(t *testing.T) {
	factory := newStubFactory(0)
	factory.failSubstr = "/broken"
	s := newTestScheduler(t, factory, Config{})

	input := searchResults(
		"https://example.com/ok-1",
		"https://example.com/broken",
		"https://example.com/ok-2",
	)
	results := s.Crawl(context.Background(), input, models.CrawlOptions{
		Concurrency: 3, // all three in one batch
		Cluster:     models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if len(results) != 3 {
		t.Fatalf("expected all 3 results, got %d: %v", len(results), urlsOf(results))
	}
	for i, r := range results {
		if r.URL != input[i].URL {
			t.Errorf("result %d = %q, want %q", i, r.URL, input[i].URL)
		}
	}
	if results[0].Title != "Stub Page" || results[2].Title != "Stub Page" {
		t.Errorf("siblings degraded by the failing URL: %q, %q",
			results[0].Title, results[2].Title)
	}
	// The failing URL still yields a degraded result, not an omission.
	if results[1].Title != "example.com" {
		t.Errorf("failing URL title = %q, want hostname fallback", results[1].Title)
	}
}

func TestCrawl_AllSessionsFail(t *testing.T) {
	factory := newStubFactory(10)
	s := newTestScheduler(t, factory, Config{Concurrency: 2})

	results := s.Crawl(context.Background(),
		searchResults("https://a.com/1", "https://b.com/1"),
		models.CrawlOptions{
			Cluster: models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
		})

	if len(results) != 0 {
		t.Errorf("expected no results when every session fails, got %d", len(results))
	}
}

func TestCrawl_DepthTruncates(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{Concurrency: 2})

	input := searchResults(
		"https://example.com/1", "https://example.com/2", "https://example.com/3",
		"https://example.com/4", "https://example.com/5",
	)
	results := s.Crawl(context.Background(), input, models.CrawlOptions{
		Depth:   2,
		Cluster: models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results after depth truncation, got %d", len(results))
	}
	if results[0].URL != "https://example.com/1" || results[1].URL != "https://example.com/2" {
		t.Errorf("depth must keep the best-ranked entries, got %v", urlsOf(results))
	}
}

func TestCrawl_GlobalFetchCap(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{GlobalMaxFetches: 1})

	// Two clusters of two URLs each with per-cluster concurrency 2 would
	// allow 4 simultaneous fetches without the cap.
	input := searchResults(
		"https://alpha.com/1", "https://alpha.com/2",
		"https://beta.com/1", "https://beta.com/2",
	)
	results := s.Crawl(context.Background(), input, models.CrawlOptions{
		Concurrency: 2,
		Cluster:     models.ClusterConfig{Enabled: true, ClusterBy: models.ClusterByDomain},
	})

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if got := factory.open.max(); got > 1 {
		t.Errorf("peak concurrent fetches = %d, want <= 1 under global cap", got)
	}
}

func TestCrawl_ClusteringDisabled(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{Concurrency: 3})

	results := s.Crawl(context.Background(),
		searchResults("https://a.com/1", "https://b.com/1"),
		models.CrawlOptions{Cluster: models.ClusterConfig{Enabled: false}})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Cluster != models.ClusterKeyDefault {
			t.Errorf("cluster = %q, want %q", r.Cluster, models.ClusterKeyDefault)
		}
	}
}

func TestCrawl_EmptyInput(t *testing.T) {
	factory := newStubFactory(0)
	s := newTestScheduler(t, factory, Config{})

	if results := s.Crawl(context.Background(), nil, models.CrawlOptions{}); len(results) != 0 {
		t.Errorf("expected no results for empty input, got %d", len(results))
	}
}

func TestPause_ContextCancelWakesEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	pause(ctx, 5*time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("pause ignored cancelled context, slept %v", elapsed)
	}
}

func TestPause_ZeroDelayReturnsImmediately(t *testing.T) {
	start := time.Now()
	pause(context.Background(), 0)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("zero delay slept %v", elapsed)
	}
}
