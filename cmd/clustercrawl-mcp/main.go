package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/clustercrawl/config"
	"github.com/use-agent/clustercrawl/models"
	"github.com/use-agent/clustercrawl/search"
)

// crawlResponse mirrors the clustercrawl API response for job creation.
type crawlResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// crawlStatusResponse mirrors the clustercrawl job status API response.
type crawlStatusResponse struct {
	ID      string                `json:"id"`
	Status  string                `json:"status"`
	Total   int                   `json:"total"`
	Results []*models.CrawlResult `json:"results"`
}

func main() {
	apiURL := os.Getenv("CLUSTERCRAWL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("CLUSTERCRAWL_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "CLUSTERCRAWL_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"clustercrawl",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	crawlPagesTool := mcp.NewTool("crawl_pages",
		mcp.WithDescription("Crawl a list of URLs with a headless browser, grouped into politeness clusters by origin, and return markdown for each page. Pages that fail still return a degraded result."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("URLs to crawl, best-first"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Crawl only the first N URLs (default: 5, max: 50)"),
		),
		mcp.WithNumber("concurrency",
			mcp.Description("Pages fetched in parallel within one cluster (default: 3, max: 10)"),
		),
		mcp.WithString("cluster_by",
			mcp.Description("Politeness grouping key: 'domain' (default) or 'tld'"),
			mcp.Enum("domain", "tld"),
		),
	)
	s.AddTool(crawlPagesTool, handleCrawlPages(apiURL, apiKey))

	searchAndCrawlTool := mcp.NewTool("search_and_crawl",
		mcp.WithDescription("Search the web for a query, then crawl the top-ranked result pages and return their markdown. Requires CLUSTERCRAWL_SEARCH_URL to point at a SearxNG-compatible instance."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to crawl (default: 5)"),
		),
	)
	s.AddTool(searchAndCrawlTool, handleSearchAndCrawl(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleCrawlPages(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		payload := map[string]interface{}{
			"urls": urls,
		}
		args := request.GetArguments()
		if depth, ok := args["depth"]; ok {
			payload["depth"] = depth
		}
		if concurrency, ok := args["concurrency"]; ok {
			payload["concurrency"] = concurrency
		}
		if clusterBy := request.GetString("cluster_by", ""); clusterBy != "" {
			payload["cluster_by"] = clusterBy
		}

		return submitAndPoll(ctx, client, apiURL, apiKey, payload)
	}
}

func handleSearchAndCrawl(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}
	cfg := config.Load()
	provider := search.NewSearxNG(nil, cfg.Search)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := request.GetInt("limit", 5)

		results, err := provider.Search(ctx, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText("No search results for query: " + query), nil
		}

		payload := map[string]interface{}{
			"results": results,
			"depth":   limit,
		}
		return submitAndPoll(ctx, client, apiURL, apiKey, payload)
	}
}

// submitAndPoll creates a crawl job, waits for it to finish and formats the
// crawled pages as one text block.
func submitAndPoll(ctx context.Context, client *http.Client, apiURL, apiKey string, payload interface{}) (*mcp.CallToolResult, error) {
	respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/crawl", payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("crawl request failed: %v", err)), nil
	}

	var crawlResp crawlResponse
	if err := json.Unmarshal(respBody, &crawlResp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl response: %v", err)), nil
	}
	if crawlResp.ID == "" {
		return mcp.NewToolResultError("crawl job creation failed: " + string(respBody)), nil
	}

	resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/crawl/"+crawlResp.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling crawl job failed: %v", err)), nil
	}

	var statusResp crawlStatusResponse
	if err := json.Unmarshal(resultBody, &statusResp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl status: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Crawl %s: %s (%d pages)\n\n", statusResp.ID, statusResp.Status, statusResp.Total))
	for i, r := range statusResp.Results {
		sb.WriteString(fmt.Sprintf("--- Page %d: %s (%s, cluster %s) ---\n%s\n\n",
			i+1, r.Title, r.URL, r.Cluster, r.Markdown))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// apiPost sends a POST request to the clustercrawl API and returns the
// response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer
// "processing" or the context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}
