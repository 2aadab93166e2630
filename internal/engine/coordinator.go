package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/proxyscope/internal/metrics"
)

// Options configures one coordinator. Threads is the fixed worker pool
// size; Timeout bounds each network call and Delay is slept between
// consecutive items of one worker.
type Options struct {
	Threads      int
	Timeout      time.Duration
	Delay        time.Duration
	JudgeURL     string
	UserAgent    string
	SocksEnabled bool
}

func (o Options) validate() error {
	if o.Threads < 1 {
		return &ConfigError{Reason: "thread count must be at least 1"}
	}
	if o.Timeout <= 0 {
		return &ConfigError{Reason: "request timeout must be positive"}
	}
	if o.Delay < 0 {
		return &ConfigError{Reason: "request delay must not be negative"}
	}
	return nil
}

// Resolver looks up the caller's own public address before a check batch.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Coordinator owns the worker pool. It partitions work across workers,
// consumes their shared event stream from a single goroutine, forwards
// events to the sink and tracks progress. Because that consuming
// goroutine is the only writer, the done counter and all sink mutation
// need no locks.
type Coordinator struct {
	opts     Options
	sink     Sink
	resolver Resolver
	metrics  *metrics.Collector

	mu       sync.Mutex
	running  bool
	token    *Token
	events   chan event
	realAddr string

	done  atomic.Int64
	total atomic.Int64
}

func New(opts Options, sink Sink, resolver Resolver, collector *metrics.Collector) *Coordinator {
	return &Coordinator{
		opts:     opts,
		sink:     sink,
		resolver: resolver,
		metrics:  collector,
	}
}

// Scrape starts a scrape batch over the given source URLs. It returns
// once the workers are started; events flow to the sink asynchronously.
func (c *Coordinator) Scrape(urls []string) error {
	if err := c.opts.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBatchRunning
	}
	c.running = true
	c.token = &Token{}
	c.events = make(chan event, c.opts.Threads*2)
	c.mu.Unlock()

	c.total.Store(int64(len(urls)))
	c.done.Store(0)

	client := newScrapeClient(c.opts.Timeout)

	partitions := Split(urls, c.opts.Threads)
	workers := 0
	for i, part := range partitions {
		if len(part) == 0 {
			continue
		}
		workers++
		w := &scrapeWorker{
			id:        i,
			urls:      part,
			client:    client,
			timeout:   c.opts.Timeout,
			delay:     c.opts.Delay,
			userAgent: c.opts.UserAgent,
			token:     c.token,
			events:    c.events,
		}
		go w.run()
	}

	log.Infof("Scrape batch started: %d sources across %d workers", len(urls), workers)
	go c.consume(ActionScrape, workers, len(urls), time.Now())

	return nil
}

// Check starts a check batch over the given targets. The caller's real
// address is resolved first; a resolve failure aborts the batch before
// any worker starts and surfaces a single fatal diagnostic to the sink.
func (c *Coordinator) Check(targets []CheckTarget) error {
	if err := c.opts.validate(); err != nil {
		return err
	}
	if c.opts.JudgeURL == "" {
		return &ConfigError{Reason: "judge URL is not set"}
	}

	// The token exists before the resolve call so a Stop arriving while
	// the resolve is in flight cancels this batch, not a stale one.
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBatchRunning
	}
	c.running = true
	c.token = &Token{}
	c.events = make(chan event, c.opts.Threads*2)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	addr, err := c.resolver.Resolve(ctx)
	cancel()
	if err != nil {
		resolveErr := &ResolveError{Err: err}
		log.Errorf("Check batch aborted: %v", resolveErr)
		c.sink.OnBatchFinished(BatchSummary{Action: ActionCheck, Err: resolveErr.Error()})

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return resolveErr
	}

	c.mu.Lock()
	c.realAddr = addr
	c.mu.Unlock()

	c.total.Store(int64(len(targets)))
	c.done.Store(0)

	partitions := Split(targets, c.opts.Threads)
	workers := 0
	for i, part := range partitions {
		if len(part) == 0 {
			continue
		}
		workers++
		w := &checkWorker{
			id:           i,
			targets:      part,
			timeout:      c.opts.Timeout,
			delay:        c.opts.Delay,
			judgeURL:     c.opts.JudgeURL,
			realAddr:     addr,
			userAgent:    c.opts.UserAgent,
			socksEnabled: c.opts.SocksEnabled,
			token:        c.token,
			events:       c.events,
		}
		go w.run()
	}

	log.Infof("Check batch started: %d proxies across %d workers, real address %s", len(targets), workers, addr)
	go c.consume(ActionCheck, workers, len(targets), time.Now())

	return nil
}

// consume is the single event consumer for one batch. It is the only
// execution context that increments done and calls the sink.
func (c *Coordinator) consume(action Action, workers, total int, start time.Time) {
	finished := 0
	done := 0
	token := c.token

	for finished < workers {
		ev := <-c.events

		switch {
		case ev.finished:
			finished++

		case ev.status != nil:
			c.sink.OnStatus(*ev.status)

		case ev.result != nil:
			done++
			c.done.Store(int64(done))
			c.record(ev.result)
			c.sink.OnResult(*ev.result)
		}
	}

	cancelled := token.Cancelled()
	elapsed := time.Since(start)
	log.Infof("Batch %s finished: %d/%d items in %v (cancelled=%t)", action, done, total, elapsed, cancelled)

	// The summary must reach the sink before the next batch can be
	// accepted; clearing running first would let a new consumer's events
	// interleave with this callback.
	c.sink.OnBatchFinished(BatchSummary{
		Action:    action,
		Total:     total,
		Done:      done,
		Cancelled: cancelled,
		Elapsed:   elapsed,
	})

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Coordinator) record(result *ResultEvent) {
	if c.metrics == nil {
		return
	}
	switch result.Action {
	case ActionScrape:
		c.metrics.RecordScrapeResult(len(result.Proxies), result.Message != "")
	case ActionCheck:
		if result.Check != nil {
			c.metrics.RecordCheckSuccess()
			c.metrics.RecordCheckDuration(result.Check.Speed)
		} else {
			c.metrics.RecordCheckFailure()
		}
	}
}

// Stop flips the batch's cancellation token. Workers finish their
// in-flight probe and exit at the next item boundary; stop latency is
// bounded by one timeout plus delay per worker. Calling Stop when no
// batch is running is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.token != nil {
		c.token.Cancel()
		log.Info("Stop requested, cancelling batch")
	}
}

// Running reports whether a batch is currently in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Progress returns the completed and total item counts of the current or
// last batch.
func (c *Coordinator) Progress() (done, total int64) {
	return c.done.Load(), c.total.Load()
}

// RealAddr returns the caller's public address from the last successful
// resolve, or empty.
func (c *Coordinator) RealAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.realAddr
}

func newScrapeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
