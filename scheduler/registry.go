package scheduler

import (
	"log/slog"
	"sync"

	"github.com/use-agent/clustercrawl/fetcher"
)

// SessionRegistry tracks the sessions opened during one run so the run can
// always be torn down completely, even if a cluster task leaked its session.
// One registry is instantiated per run and passed explicitly — never a
// process-wide singleton.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]fetcher.Session // cluster key -> open session
}

// NewSessionRegistry creates an empty per-run registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]fetcher.Session)}
}

// Register records an open session under its cluster key.
func (r *SessionRegistry) Register(clusterKey string, sess fetcher.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clusterKey] = sess
}

// Release removes a session from the registry once its owner closed it.
func (r *SessionRegistry) Release(clusterKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clusterKey)
}

// Len returns the number of sessions currently registered.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll force-closes any session still registered at run end. Under
// normal operation every cluster task released its own session and this is
// a no-op.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, sess := range r.sessions {
		slog.Warn("closing leaked session", "cluster", key)
		if err := sess.Close(); err != nil {
			slog.Warn("leaked session close failed", "cluster", key, "error", err)
		}
		delete(r.sessions, key)
	}
}
