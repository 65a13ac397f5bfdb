package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActiveCallsProvider exposes the number of calls in the registry.
type ActiveCallsProvider interface {
	Active() int
}

// FailedOutcomeCounter returns how many outcomes wait in the retry queue.
type FailedOutcomeCounter interface {
	CountFailed(ctx context.Context) (int, error)
}

// Collector gathers gauges at scrape time. Any provider may be nil.
type Collector struct {
	calls     ActiveCallsProvider
	failed    FailedOutcomeCounter
	startTime time.Time

	activeCallsDesc    *prometheus.Desc
	failedOutcomesDesc *prometheus.Desc
	uptimeDesc         *prometheus.Desc
}

func NewCollector(calls ActiveCallsProvider, failed FailedOutcomeCounter, startTime time.Time) *Collector {
	return &Collector{
		calls:     calls,
		failed:    failed,
		startTime: startTime,

		activeCallsDesc: prometheus.NewDesc(
			namespace+"_active_calls",
			"Calls currently tracked by the call registry",
			nil, nil,
		),
		failedOutcomesDesc: prometheus.NewDesc(
			namespace+"_failed_outcomes",
			"Outcomes in the ledger waiting for a CRM retry",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			namespace+"_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.failedOutcomesDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.calls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.calls.Active()),
		)
	}

	if c.failed != nil {
		n, err := c.failed.CountFailed(ctx)
		if err != nil {
			slog.Error("metrics: failed to count failed outcomes", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.failedOutcomesDesc, prometheus.GaugeValue,
				float64(n),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}

// NewRegistry builds a registry with process/Go collectors plus ours.
func NewRegistry(p *Pipeline, c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if p != nil {
		if err := p.Register(reg); err != nil {
			return nil, err
		}
	}
	if c != nil {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
