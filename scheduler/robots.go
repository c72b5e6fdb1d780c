package scheduler

// RobotsPolicy decides whether a cluster may be crawled at all, evaluated
// once per cluster task before its session is created.
type RobotsPolicy interface {
	Allowed(clusterKey string) bool
}

// AllowAllRobots always permits crawling. This is a policy point kept for a
// future robots.txt implementation, not a compliance mechanism.
type AllowAllRobots struct{}

// Allowed reports true for every cluster.
func (AllowAllRobots) Allowed(string) bool { return true }
