package engine

import "sync/atomic"

// Token is the cooperative cancellation switch shared by one batch of
// workers. It is set at most once per batch and read by every worker at
// each work-item boundary; in-flight network calls are never interrupted.
type Token struct {
	cancelled atomic.Bool
}

func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}
