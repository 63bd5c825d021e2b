package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"hostsync/fetcher"
	"hostsync/refresh"
	"hostsync/source"
)

// Collector exports refresh progress and outcomes as Prometheus metrics.
// It is both a refresh.ProgressSink and a refresh.Observer.
type Collector struct {
	items         *prometheus.CounterVec
	itemErrors    *prometheus.CounterVec
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	pending       prometheus.Gauge
	cycleItems    prometheus.Gauge
	lastCycle     prometheus.Gauge
	lastFailures  prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostsync_items_total",
				Help: "Finished list items by outcome",
			},
			[]string{"outcome"},
		),
		itemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostsync_item_errors_total",
				Help: "Failed list items by error code",
			},
			[]string{"code"},
		),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostsync_cycles_total",
			Help: "Completed refresh cycles",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostsync_cycle_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostsync_pending_items",
			Help: "Items of the running cycle that have not finished yet",
		}),
		cycleItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostsync_cycle_items",
			Help: "Enabled items in the current or last cycle",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostsync_last_cycle_timestamp_seconds",
			Help: "Unix time the last refresh cycle finished",
		}),
		lastFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostsync_last_cycle_failures",
			Help: "Failed items in the last refresh cycle",
		}),
	}

	reg.MustRegister(c.items, c.itemErrors, c.cycles, c.cycleDuration,
		c.pending, c.cycleItems, c.lastCycle, c.lastFailures)
	return c
}

func (c *Collector) Progress(total, remaining int, _ []string) {
	c.cycleItems.Set(float64(total))
	c.pending.Set(float64(remaining))
}

func (c *Collector) ItemFinished(_ source.Item, outcome fetcher.Outcome, err error) {
	c.items.WithLabelValues(outcome.String()).Inc()
	if err == nil {
		return
	}
	code := "unknown"
	var ferr *fetcher.Error
	if errors.As(err, &ferr) {
		code = string(ferr.Code)
	}
	c.itemErrors.WithLabelValues(code).Inc()
}

func (c *Collector) CycleFinished(r *refresh.Report) {
	c.cycles.Inc()
	c.cycleDuration.Observe(r.Duration().Seconds())
	c.lastCycle.Set(float64(r.Finished.Unix()))
	c.lastFailures.Set(float64(len(r.Errors)))
	c.pending.Set(0)
}
