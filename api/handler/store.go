package handler

import (
	"sync"
	"time"

	"github.com/use-agent/clustercrawl/models"
)

// JobStore tracks in-flight and completed crawl jobs. It is created once in
// main and passed to the handlers that need it; all mutation happens under
// its lock so pollers never observe a half-updated job.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.CrawlJob
	ttl  time.Duration
}

// NewJobStore creates a store whose jobs expire ttl after creation. A
// background janitor evicts expired jobs every 5 minutes.
func NewJobStore(ttl time.Duration) *JobStore {
	js := &JobStore{
		jobs: make(map[string]*models.CrawlJob),
		ttl:  ttl,
	}
	go js.janitor()
	return js
}

// Put registers a new job.
func (js *JobStore) Put(job *models.CrawlJob) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobs[job.ID] = job
}

// Get returns a snapshot of the job so callers can read it without racing
// the completing goroutine.
func (js *JobStore) Get(id string) (models.CrawlJob, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	job, ok := js.jobs[id]
	if !ok {
		return models.CrawlJob{}, false
	}
	return *job, true
}

// Complete transitions a job to its terminal status with its results.
func (js *JobStore) Complete(id, status string, results []*models.CrawlResult) {
	js.mu.Lock()
	defer js.mu.Unlock()
	job, ok := js.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Results = results
	job.Total = len(results)
}

// janitor evicts jobs older than the TTL.
func (js *JobStore) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-js.ttl).Unix()
		js.mu.Lock()
		for id, job := range js.jobs {
			if job.CreatedAt < cutoff {
				delete(js.jobs, id)
			}
		}
		js.mu.Unlock()
	}
}
