package scheduler

import "github.com/use-agent/clustercrawl/models"

// Aggregate flattens per-cluster outputs into the final result list, tagging
// each result with its cluster key. Clusters appear in their first-seen
// partition order; inside a cluster, results keep input URL order. Clusters
// that failed at the resource level contributed a nil slice and are simply
// absent — no error stubs.
func Aggregate(clusters []models.Cluster, perCluster [][]*models.CrawlResult) []*models.CrawlResult {
	total := 0
	for _, results := range perCluster {
		total += len(results)
	}

	out := make([]*models.CrawlResult, 0, total)
	for i, results := range perCluster {
		for _, r := range results {
			if r == nil {
				continue
			}
			r.Cluster = clusters[i].Key
			out = append(out, r)
		}
	}
	return out
}
