// Package cluster partitions ranked crawl targets into politeness clusters,
// typically keyed by origin hostname, so that each origin gets its own
// browser session and rate-limit schedule.
package cluster

import (
	"net/url"
	"sort"
	"strings"

	"github.com/use-agent/clustercrawl/models"
)

// Partition groups the ranked results into clusters per cfg.
//
// Guarantees:
//   - every input URL lands in exactly one cluster, none duplicated or dropped
//   - URLs keep their relative input order inside each cluster
//   - clusters are returned in first-seen key order
//   - the returned cluster count never exceeds cfg.MaxClusters (when > 0)
//
// The result is deterministic for deterministic input order and ClusterFn.
func Partition(results []models.SearchResult, cfg models.ClusterConfig) []models.Cluster {
	if !cfg.Enabled {
		urls := make([]string, 0, len(results))
		for _, r := range results {
			urls = append(urls, r.URL)
		}
		if len(urls) == 0 {
			return nil
		}
		return []models.Cluster{{Key: models.ClusterKeyDefault, URLs: urls}}
	}

	byKey := make(map[string]int) // key -> index into clusters
	var clusters []models.Cluster

	for _, r := range results {
		key := deriveKey(r.URL, cfg)
		idx, ok := byKey[key]
		if !ok {
			idx = len(clusters)
			byKey[key] = idx
			clusters = append(clusters, models.Cluster{Key: key})
		}
		clusters[idx].URLs = append(clusters[idx].URLs, r.URL)
	}

	if cfg.MaxClusters > 0 && len(clusters) > cfg.MaxClusters {
		clusters = mergeOverflow(clusters, cfg.MaxClusters)
	}
	return clusters
}

// deriveKey maps one URL to its cluster key.
func deriveKey(rawURL string, cfg models.ClusterConfig) string {
	if cfg.ClusterBy == models.ClusterByCustom && cfg.ClusterFn != nil {
		if key := cfg.ClusterFn(rawURL); key != "" {
			return key
		}
		return models.ClusterKeyInvalid
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return models.ClusterKeyInvalid
	}

	host := strings.ToLower(u.Hostname())
	if cfg.ClusterBy == models.ClusterByTLD {
		if dot := strings.LastIndex(host, "."); dot >= 0 && dot < len(host)-1 {
			return host[dot+1:]
		}
		// No dot (e.g. "localhost") — fall back to the full hostname.
		return host
	}
	return host
}

// mergeOverflow reduces the cluster count to maxClusters by keeping the
// largest maxClusters-1 clusters and concatenating all remaining clusters'
// URLs into one "merged-small-clusters" bucket.
//
// Ties on size break by first-seen order (stable sort), so the outcome is a
// documented policy rather than an insertion-order accident.
func mergeOverflow(clusters []models.Cluster, maxClusters int) []models.Cluster {
	sorted := make([]models.Cluster, len(clusters))
	copy(sorted, clusters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].URLs) > len(sorted[j].URLs)
	})

	kept := sorted[:maxClusters-1]
	merged := models.Cluster{Key: models.ClusterKeyMerged}
	for _, c := range sorted[maxClusters-1:] {
		merged.URLs = append(merged.URLs, c.URLs...)
	}

	// Re-emit kept clusters in their original first-seen order, merged last.
	keptSet := make(map[string]struct{}, len(kept))
	for _, c := range kept {
		keptSet[c.Key] = struct{}{}
	}
	out := make([]models.Cluster, 0, maxClusters)
	for _, c := range clusters {
		if _, ok := keptSet[c.Key]; ok {
			out = append(out, c)
		}
	}
	return append(out, merged)
}
