// Package scheduler runs every cluster's crawl to completion concurrently,
// with bounded parallelism inside each cluster, and delivers all produced
// results. It is the only component with real concurrency coordination and
// resource lifecycle ownership: one browser session per cluster task, one
// page per fetch.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/use-agent/clustercrawl/cluster"
	"github.com/use-agent/clustercrawl/fetcher"
	"github.com/use-agent/clustercrawl/formatter"
	"github.com/use-agent/clustercrawl/models"
	"github.com/use-agent/clustercrawl/ratelimit"
)

// SessionFactory hands out exclusive browser sessions, one per cluster task.
type SessionFactory interface {
	NewSession(ctx context.Context) (fetcher.Session, error)
}

// Config holds the scheduler's run-wide defaults. Request-level options can
// override Depth, Timeout, Concurrency and Verbose per Crawl call.
type Config struct {
	// Depth is the default ranked-input truncation.
	Depth int

	// Timeout is the default per-page navigation deadline.
	Timeout time.Duration

	// Concurrency is the default batch size inside each cluster task.
	Concurrency int

	// GlobalMaxFetches caps simultaneous page fetches across ALL clusters.
	// The per-cluster ceiling multiplies across clusters (concurrency=3
	// and 4 clusters allow 12 simultaneous fetches); this optional cap
	// bounds that system-wide. 0 disables it.
	GlobalMaxFetches int

	// ContentSelector optionally scopes text extraction.
	ContentSelector string

	// ScreenshotDir receives verbose-mode screenshots.
	ScreenshotDir string

	// MaxContentChars truncates content handed to the formatter.
	MaxContentChars int
}

// Scheduler coordinates cluster tasks. Safe for concurrent use; each Crawl
// call is an independent run with its own session registry.
type Scheduler struct {
	sessions  SessionFactory
	formatter formatter.Formatter // may be nil
	policy    *ratelimit.Policy
	robots    RobotsPolicy
	cfg       Config
}

// New creates a Scheduler. The formatter may be nil, in which case every
// result carries the deterministic fallback markdown.
func New(sessions SessionFactory, f formatter.Formatter, policy *ratelimit.Policy, cfg Config) (*Scheduler, error) {
	// Surface a bad content selector at startup, not per fetch.
	if _, err := fetcher.New(nil, fetcher.Config{
		Timeout:         cfg.Timeout,
		ContentSelector: cfg.ContentSelector,
	}); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Scheduler{
		sessions:  sessions,
		formatter: f,
		policy:    policy,
		robots:    AllowAllRobots{},
		cfg:       cfg,
	}, nil
}

// Crawl partitions the ranked results into politeness clusters and crawls
// them all. It always returns a (possibly partial) list and never an error:
// per-page failures degrade to fallback results, and only a cluster whose
// browser session could not be created contributes nothing.
//
// Ordering: no guarantee across clusters; within a cluster, results follow
// the input URL order.
func (s *Scheduler) Crawl(ctx context.Context, results []models.SearchResult, opts models.CrawlOptions) []*models.CrawlResult {
	depth := opts.Depth
	if depth <= 0 {
		depth = s.cfg.Depth
	}
	if depth > 0 && len(results) > depth {
		results = results[:depth]
	}

	clusters := cluster.Partition(results, opts.Cluster)
	if len(clusters) == 0 {
		return nil
	}

	run := runState{
		fetch:    s.newFetcher(opts),
		registry: NewSessionRegistry(),
	}
	if s.cfg.GlobalMaxFetches > 0 {
		run.globalSem = semaphore.NewWeighted(int64(s.cfg.GlobalMaxFetches))
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Concurrency
	}

	slog.Info("crawl run starting",
		"urls", len(results),
		"clusters", len(clusters),
		"concurrency", concurrency,
	)

	// One independent task per cluster, join-all at the top. No ordering
	// guarantee between tasks.
	perCluster := make([][]*models.CrawlResult, len(clusters))
	var wg sync.WaitGroup
	for i, cl := range clusters {
		wg.Add(1)
		go func(idx int, cl models.Cluster) {
			defer wg.Done()
			perCluster[idx] = s.crawlCluster(ctx, cl, concurrency, &run)
		}(i, cl)
	}
	wg.Wait()

	run.registry.CloseAll()

	out := Aggregate(clusters, perCluster)
	slog.Info("crawl run finished", "results", len(out), "clusters", len(clusters))
	return out
}

// runState carries the per-run shared pieces into cluster tasks.
type runState struct {
	fetch     *fetcher.PageFetcher
	registry  *SessionRegistry
	globalSem *semaphore.Weighted // nil when the global cap is off
}

// crawlCluster owns exactly one browser session for its full lifetime and
// works through its URLs in sequential bounded batches.
//
// Failure semantics: a session-creation failure is hard for this cluster
// only — it contributes zero results and siblings are unaffected. Everything
// past that point is soft and lands in a degraded per-page result.
func (s *Scheduler) crawlCluster(ctx context.Context, cl models.Cluster, concurrency int, run *runState) []*models.CrawlResult {
	if !s.robots.Allowed(cl.Key) {
		slog.Info("cluster skipped by robots policy", "cluster", cl.Key)
		return nil
	}

	sess, err := s.sessions.NewSession(ctx)
	if err != nil {
		slog.Error("session creation failed, dropping cluster",
			"cluster", cl.Key,
			"urls", len(cl.URLs),
			"error", err,
		)
		return nil
	}
	run.registry.Register(cl.Key, sess)
	// The session is released once all batches are done, regardless of
	// per-page outcomes.
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Warn("session close failed", "cluster", cl.Key, "error", closeErr)
		}
		run.registry.Release(cl.Key)
	}()

	out := make([]*models.CrawlResult, 0, len(cl.URLs))
	for start := 0; start < len(cl.URLs); start += concurrency {
		end := min(start+concurrency, len(cl.URLs))
		out = append(out, s.crawlBatch(ctx, sess, cl.URLs[start:end], run)...)

		// Politeness delay between batches, not after the last.
		if end < len(cl.URLs) {
			pause(ctx, s.policy.Delay(cl.Key))
		}
	}
	return out
}

// crawlBatch fans out one batch and waits for all members. Result positions
// match input positions even though completion timing is unordered, and a
// failing URL never blocks or alters its siblings.
func (s *Scheduler) crawlBatch(ctx context.Context, sess fetcher.Session, urls []string, run *runState) []*models.CrawlResult {
	results := make([]*models.CrawlResult, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			if run.globalSem != nil {
				if err := run.globalSem.Acquire(ctx, 1); err == nil {
					defer run.globalSem.Release(1)
				}
			}
			results[idx] = run.fetch.Fetch(ctx, sess, target)
		}(i, u)
	}
	wg.Wait()

	return results
}

// newFetcher builds the per-run page fetcher with request overrides applied.
func (s *Scheduler) newFetcher(opts models.CrawlOptions) *fetcher.PageFetcher {
	fcfg := fetcher.Config{
		Timeout:         s.cfg.Timeout,
		Verbose:         opts.Verbose,
		ScreenshotDir:   s.cfg.ScreenshotDir,
		ContentSelector: s.cfg.ContentSelector,
		MaxContentChars: s.cfg.MaxContentChars,
	}
	if opts.Timeout > 0 {
		fcfg.Timeout = opts.Timeout
	}
	// The selector was validated in New; this cannot fail for the same input.
	pf, err := fetcher.New(s.formatter, fcfg)
	if err != nil {
		pf, _ = fetcher.New(s.formatter, fetcher.Config{Timeout: fcfg.Timeout})
	}
	return pf
}

// pause sleeps for the politeness delay, waking early on context
// cancellation.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
