// Package search supplies ranked URLs for the crawl pipeline. Providers
// return best-first results; ranking quality is the provider's business.
package search

import (
	"context"

	"github.com/use-agent/clustercrawl/models"
)

// Provider turns a query into a ranked list of search results.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}
