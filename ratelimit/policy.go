// Package ratelimit decides how long a cluster task sleeps between batches.
package ratelimit

import (
	"strings"
	"time"

	"github.com/use-agent/clustercrawl/config"
)

// Policy maps a cluster key to an inter-batch delay. It holds no state and
// performs no I/O, so it is safe to call from any concurrent cluster task.
type Policy struct {
	baseDelay time.Duration
	rules     []config.RateRule
}

// NewPolicy builds a Policy from configuration. Rules are checked in the
// order supplied; the first matching pattern wins.
func NewPolicy(cfg config.RateLimitConfig) *Policy {
	return &Policy{
		baseDelay: cfg.BaseDelay,
		rules:     cfg.Rules,
	}
}

// Delay returns the politeness delay for the given cluster key. A key that
// textually contains a configured pattern gets that rule's delay; everything
// else gets the base delay.
func (p *Policy) Delay(clusterKey string) time.Duration {
	key := strings.ToLower(clusterKey)
	for _, r := range p.rules {
		if strings.Contains(key, strings.ToLower(r.Pattern)) {
			return r.Delay
		}
	}
	return p.baseDelay
}
