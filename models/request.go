package models

// CrawlRequest is the payload for POST /api/v1/crawl.
type CrawlRequest struct {
	// URLs to crawl, best-first. Either URLs or Results must be set.
	URLs []string `json:"urls,omitempty"`

	// Results are pre-ranked search results. Takes precedence over URLs.
	Results []SearchResult `json:"results,omitempty"`

	// Depth truncates the input to its first N entries. Default: 5. Max: 50.
	Depth int `json:"depth,omitempty" binding:"omitempty,min=1,max=50"`

	// TimeoutSeconds bounds per-page navigation. Default: 30. Max: 120.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" binding:"omitempty,min=1,max=120"`

	// Concurrency is the batch size inside each cluster. Default: 3. Max: 10.
	Concurrency int `json:"concurrency,omitempty" binding:"omitempty,min=1,max=10"`

	// ClusterBy selects the partition key: "domain" (default) or "tld".
	ClusterBy string `json:"cluster_by,omitempty" binding:"omitempty,oneof=domain tld"`

	// MaxClusters caps the cluster count. Default: 5. Max: 20.
	MaxClusters int `json:"max_clusters,omitempty" binding:"omitempty,min=1,max=20"`

	// Verbose enables diagnostic screenshots for this run.
	Verbose bool `json:"verbose,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// CrawlResponse is the immediate response for POST /api/v1/crawl.
type CrawlResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// CrawlStatusResponse is the response for GET /api/v1/crawl/:id.
type CrawlStatusResponse struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Total   int            `json:"total"`
	Results []*CrawlResult `json:"results,omitempty"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// CrawlJob tracks an in-progress crawl run.
type CrawlJob struct {
	ID            string
	Status        string // "processing", "completed", "failed"
	Total         int
	Results       []*CrawlResult
	CreatedAt     int64 // unix timestamp
	WebhookURL    string
	WebhookSecret string
}
