package api

import "sync"

// invalidationGate collapses concurrent invalidation verdicts per scope.
// The first caller becomes the leader and runs the sweep; followers get a
// channel that closes when the leader finishes, so a burst of parallel
// 401s produces exactly one clear sequence.
type invalidationGate struct {
	mu       sync.Mutex
	inflight map[Scope]chan struct{}
}

// join registers a caller for the scope. It returns the completion channel
// and whether the caller is the leader.
func (g *invalidationGate) join(scope Scope) (<-chan struct{}, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inflight == nil {
		g.inflight = make(map[Scope]chan struct{})
	}
	if done, ok := g.inflight[scope]; ok {
		return done, false
	}
	done := make(chan struct{})
	g.inflight[scope] = done
	return done, true
}

// release completes the in-flight sweep, waking every follower.
func (g *invalidationGate) release(scope Scope) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if done, ok := g.inflight[scope]; ok {
		close(done)
		delete(g.inflight, scope)
	}
}
