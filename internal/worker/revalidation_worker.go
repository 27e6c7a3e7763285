package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/service"
)

// RevalidationWorker drives periodic session revalidation. Polling is a
// coarse stand-in for server-pushed invalidation; the interval is
// configurable for that reason.
type RevalidationWorker struct {
	session  *service.SessionService
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRevalidationWorker builds a worker. A non-positive interval disables it.
func NewRevalidationWorker(session *service.SessionService, interval time.Duration, logger *zap.Logger) *RevalidationWorker {
	return &RevalidationWorker{
		session:  session,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the revalidation loop. Calling it more than once is a
// no-op.
func (w *RevalidationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	if w.interval <= 0 {
		w.logger.Info("revalidation disabled")
		close(w.done)
		return
	}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := w.session.Revalidate(ctx); err != nil {
					w.logger.Warn("revalidation tick failed", zap.Error(err))
				}
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to finish. It is idempotent and
// returns immediately when Start was never called.
func (w *RevalidationWorker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.done
	}
}
