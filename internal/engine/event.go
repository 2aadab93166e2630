package engine

import (
	"time"

	"github.com/proxyscope/internal/proxy"
)

// Action identifies which kind of batch produced an event.
type Action string

const (
	ActionScrape Action = "scrape"
	ActionCheck  Action = "check"
)

// RowID is an opaque handle the result sink uses to locate where a check
// result belongs (for instance a table row). The engine never interprets
// it; it only carries it back unchanged.
type RowID any

// CheckTarget pairs a proxy with the sink-side row it was taken from.
type CheckTarget struct {
	Row   RowID
	Proxy proxy.Proxy
}

// StatusEvent signals that a probe is starting, so the sink can clear
// stale display data for the row.
type StatusEvent struct {
	Action Action
	Row    RowID
}

// CheckData carries the observations of a successful probe.
type CheckData struct {
	Kind  proxy.Kind
	Anon  proxy.Anonymity
	Speed float64 // seconds
}

// ResultEvent reports the outcome of one work item. For scrape batches
// Proxies holds the discovered candidates (possibly empty). For check
// batches Check holds the probe observations, or nil when the probe
// failed; Message carries the diagnostic in that case.
type ResultEvent struct {
	Action  Action
	Row     RowID
	Proxies []proxy.Proxy
	Check   *CheckData
	Message string
}

// BatchSummary is emitted exactly once per batch, after every worker has
// finished or the batch was aborted before any worker started. Err is
// non-empty only for an aborted batch.
type BatchSummary struct {
	Action    Action
	Total     int
	Done      int
	Cancelled bool
	Elapsed   time.Duration
	Err       string
}

// Sink consumes the coordinator's event stream. Calls arrive from a single
// goroutine, in arbitrary interleaving across workers but in input order
// within one worker's items.
type Sink interface {
	OnStatus(StatusEvent)
	OnResult(ResultEvent)
	OnBatchFinished(BatchSummary)
}

// event is the internal wire format between workers and the coordinator's
// consumer loop. Exactly one field is set.
type event struct {
	status   *StatusEvent
	result   *ResultEvent
	finished bool
}
