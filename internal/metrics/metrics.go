package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Check batch metrics
	checksTotal   *prometheus.CounterVec
	checksSuccess prometheus.Counter
	checksFailure prometheus.Counter
	checkDuration prometheus.Histogram

	// Scrape batch metrics
	scrapesTotal   *prometheus.CounterVec
	proxiesScraped prometheus.Counter

	// Table state
	proxiesKnown prometheus.Gauge

	// Batch lifecycle
	batchesTotal *prometheus.CounterVec

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of proxy checks",
			},
			[]string{"result"},
		),
		checksSuccess: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_success_total",
				Help:      "Total number of successful proxy checks",
			},
		),
		checksFailure: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_failure_total",
				Help:      "Total number of failed proxy checks",
			},
		),
		checkDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Proxy check duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		scrapesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrapes_total",
				Help:      "Total number of source scrapes",
			},
			[]string{"result"},
		),
		proxiesScraped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxies_scraped_total",
				Help:      "Total number of proxy candidates scraped from sources",
			},
		),
		proxiesKnown: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "proxies_known",
				Help:      "Current number of proxies in the table",
			},
		),
		batchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batches run",
			},
			[]string{"action", "outcome"},
		),
		apiRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func (c *Collector) RecordCheckSuccess() {
	c.checksTotal.WithLabelValues("success").Inc()
	c.checksSuccess.Inc()
}

func (c *Collector) RecordCheckFailure() {
	c.checksTotal.WithLabelValues("failure").Inc()
	c.checksFailure.Inc()
}

func (c *Collector) RecordCheckDuration(seconds float64) {
	c.checkDuration.Observe(seconds)
}

func (c *Collector) RecordScrapeResult(proxiesFound int, failed bool) {
	result := "success"
	if failed {
		result = "failure"
	}
	c.scrapesTotal.WithLabelValues(result).Inc()
	c.proxiesScraped.Add(float64(proxiesFound))
}

func (c *Collector) SetProxiesKnown(count int) {
	c.proxiesKnown.Set(float64(count))
}

func (c *Collector) RecordBatch(action string, cancelled bool) {
	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	c.batchesTotal.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
