package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/models"
	"github.com/use-agent/clustercrawl/scheduler"
	"github.com/use-agent/clustercrawl/webhook"
)

// PostCrawl returns a handler for POST /api/v1/crawl. The crawl itself runs
// in the background; the response carries the job ID to poll.
func PostCrawl(s *scheduler.Scheduler, store *JobStore, crawlCfg config.CrawlConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		results := req.Results
		if len(results) == 0 {
			results = make([]models.SearchResult, 0, len(req.URLs))
			for _, u := range req.URLs {
				results = append(results, models.SearchResult{URL: u})
			}
		}
		if len(results) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "either urls or results must be provided",
				},
			})
			return
		}

		opts := buildOptions(req, crawlCfg)

		jobID := "crawl-" + randomID()
		job := &models.CrawlJob{
			ID:            jobID,
			Status:        "processing",
			CreatedAt:     time.Now().Unix(),
			WebhookURL:    req.WebhookURL,
			WebhookSecret: req.WebhookSecret,
		}
		store.Put(job)

		go runJob(s, store, jobID, results, opts)

		total := len(results)
		if opts.Depth > 0 && total > opts.Depth {
			total = opts.Depth
		}
		c.JSON(http.StatusOK, models.CrawlResponse{
			ID:     jobID,
			Status: "processing",
			Total:  total,
		})
	}
}

// GetCrawl returns a handler for GET /api/v1/crawl/:id.
func GetCrawl(store *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "crawl job not found",
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.CrawlStatusResponse{
			ID:      job.ID,
			Status:  job.Status,
			Total:   job.Total,
			Results: job.Results,
		})
	}
}

// runJob executes the crawl and records the outcome. A run with zero results
// (every cluster failed, or no crawlable input) counts as failed.
func runJob(s *scheduler.Scheduler, store *JobStore, jobID string, results []models.SearchResult, opts models.CrawlOptions) {
	crawled := s.Crawl(context.Background(), results, opts)

	status := "completed"
	if len(crawled) == 0 {
		status = "failed"
	}
	store.Complete(jobID, status, crawled)

	slog.Info("crawl job finished", "id", jobID, "status", status, "total", len(crawled))

	job, ok := store.Get(jobID)
	if ok && job.WebhookURL != "" {
		eventType := webhook.EventCrawlCompleted
		if status == "failed" {
			eventType = webhook.EventCrawlFailed
		}
		webhook.DeliverAsync(job.WebhookURL, job.WebhookSecret, &webhook.Event{
			Type:      eventType,
			JobID:     jobID,
			Timestamp: time.Now().Unix(),
			Data: models.CrawlStatusResponse{
				ID:      jobID,
				Status:  status,
				Total:   len(crawled),
				Results: crawled,
			},
		})
	}
}

// buildOptions merges request fields over the configured crawl defaults.
func buildOptions(req models.CrawlRequest, cfg config.CrawlConfig) models.CrawlOptions {
	opts := models.CrawlOptions{
		Depth:       cfg.Depth,
		Concurrency: cfg.Concurrency,
		Verbose:     req.Verbose,
		Cluster: models.ClusterConfig{
			Enabled:     true,
			MaxClusters: cfg.MaxClusters,
			ClusterBy:   cfg.ClusterBy,
		},
	}
	if req.Depth > 0 {
		opts.Depth = req.Depth
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.ClusterBy != "" {
		opts.Cluster.ClusterBy = req.ClusterBy
	}
	if req.MaxClusters > 0 {
		opts.Cluster.MaxClusters = req.MaxClusters
	}
	return opts
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
