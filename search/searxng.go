package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/models"
)

// SearxNG queries a SearxNG-compatible instance via its JSON API.
type SearxNG struct {
	client  *http.Client
	baseURL string
}

// NewSearxNG creates a provider against cfg.BaseURL. If httpClient is nil a
// client with cfg.Timeout is used.
func NewSearxNG(httpClient *http.Client, cfg config.SearchConfig) *SearxNG {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &SearxNG{client: httpClient, baseURL: cfg.BaseURL}
}

// searxResponse mirrors the fields we need from SearxNG's JSON format.
type searxResponse struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query and returns up to limit ranked results. The instance
// returns results best-first; order is preserved.
func (s *SearxNG) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if s.baseURL == "" {
		return nil, models.NewCrawlError(models.ErrCodeSearch, "search provider not configured", nil)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSearch, "build search request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSearch, "search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewCrawlError(models.ErrCodeSearch,
			fmt.Sprintf("search instance returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSearch, "read search response", err)
	}

	var parsed searxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSearch, "decode search response", err)
	}

	out := make([]models.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		out = append(out, models.SearchResult{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Content,
			Relevance:   r.Score,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
