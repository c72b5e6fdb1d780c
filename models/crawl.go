package models

import "time"

// SearchResult is one ranked entry from a search provider. The slice handed
// to the scheduler is ordered best-first and is never mutated.
type SearchResult struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Relevance   float64 `json:"relevance,omitempty"`
}

// Sentinel cluster keys produced by the partitioner.
const (
	// ClusterKeyInvalid collects URLs that could not be parsed or have no
	// hostname. They still get crawled, just without a meaningful origin key.
	ClusterKeyInvalid = "invalid-urls"

	// ClusterKeyMerged collects the smallest clusters when the raw cluster
	// count exceeds MaxClusters.
	ClusterKeyMerged = "merged-small-clusters"

	// ClusterKeyDefault is used when clustering is disabled.
	ClusterKeyDefault = "default"
)

// Cluster strategies.
const (
	ClusterByDomain = "domain"
	ClusterByTLD    = "tld"
	ClusterByCustom = "custom"
)

// ClusterConfig controls how URLs are partitioned into politeness clusters.
// It is immutable for the duration of one scheduler run.
type ClusterConfig struct {
	// Enabled toggles clustering. When false all URLs land in one
	// "default" cluster.
	Enabled bool `json:"enabled"`

	// MaxClusters caps the number of returned clusters. Overflow clusters
	// are merged into the "merged-small-clusters" bucket. <=0 means no cap.
	MaxClusters int `json:"max_clusters,omitempty"`

	// ClusterBy selects the key derivation: "domain", "tld" or "custom".
	ClusterBy string `json:"cluster_by,omitempty"`

	// ClusterFn derives the cluster key when ClusterBy is "custom".
	// Must be deterministic. Not serialisable.
	ClusterFn func(url string) string `json:"-"`
}

// Cluster is one partition of crawl targets sharing a rate-limit policy.
// URLs keep the relative order they had in the scheduler input.
type Cluster struct {
	Key  string   `json:"key"`
	URLs []string `json:"urls"`
}

// CrawlOptions are the run-wide knobs for one Crawl invocation.
type CrawlOptions struct {
	// Depth truncates the ranked input to its first Depth entries. <=0
	// means crawl everything supplied.
	Depth int `json:"depth,omitempty"`

	// Timeout bounds navigation per page. Exceeding it is a soft failure:
	// extraction proceeds against whatever DOM state exists.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Concurrency is the batch size inside each cluster task. The ceiling
	// is per cluster, not global.
	Concurrency int `json:"concurrency,omitempty"`

	// Cluster controls partitioning for this run.
	Cluster ClusterConfig `json:"cluster"`

	// Verbose enables diagnostic screenshots and per-stage logging.
	Verbose bool `json:"verbose,omitempty"`
}

// CrawlResult is produced once per attempted URL, even on partial failure,
// and is never mutated after creation. Only URLs whose entire cluster failed
// at the session level are absent from a run's output.
type CrawlResult struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Markdown  string    `json:"markdown"`
	Timestamp time.Time `json:"timestamp"`
	Cluster   string    `json:"cluster,omitempty"`
}
