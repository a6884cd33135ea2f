// Package metrics exposes the agent's Prometheus metrics. The
// collector observes the event bus for transition and completion
// counters and reads queue depth and storage headroom through gauge
// functions, so it adds no coupling to the pipeline itself.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

const namespace = "mxfmover"

// Collector holds the metric instruments and their bus subscriptions.
type Collector struct {
	registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	bytesCopied  prometheus.Counter
	copyDuration prometheus.Histogram
	copySpeed    prometheus.Histogram
	scanCycle    prometheus.Histogram

	unsubs []func()
}

// NewCollector registers all instruments and subscribes to the bus.
// machine is used to resolve completed records for size and duration.
func NewCollector(machine *state.Machine, q *queue.Queue, monitor *storage.Monitor, bus *events.Bus) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_transitions_total",
			Help:      "File state transitions by resulting status.",
		}, []string{"status"}),
		bytesCopied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_copied_total",
			Help:      "Bytes landed at the destination by completed copies.",
		}),
		copyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "copy_duration_seconds",
			Help:      "Wall time of completed copies.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		copySpeed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "copy_speed_mbps",
			Help:      "Observed copy throughput in MB/s.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		scanCycle: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_cycle_duration_seconds",
			Help:      "Wall time of one scanner iteration over the source tree.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs currently waiting in the copy queue.",
	}, func() float64 { return float64(q.Len()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_paused",
		Help:      "Whether queue admission is paused (1) or running (0).",
	}, func() float64 {
		if q.Paused() {
			return 1
		}
		return 0
	})

	for _, kind := range []string{storage.KindSource, storage.KindDestination} {
		info := monitor.SourceInfo
		if kind == storage.KindDestination {
			info = monitor.DestinationInfo
		}
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "storage_free_bytes",
			Help:        "Free bytes at the monitored location.",
			ConstLabels: prometheus.Labels{"kind": kind},
		}, func() float64 { return float64(info().FreeBytes) })

		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "storage_degraded",
			Help:        "Whether the location blocks copies (1) or not (0).",
			ConstLabels: prometheus.Labels{"kind": kind},
		}, func() float64 {
			if info().Status.Degraded() {
				return 1
			}
			return 0
		})
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_files",
		Help:      "Records currently held in the repository.",
	}, func() float64 { return float64(machine.Repository().Count()) })

	c.unsubs = append(c.unsubs,
		bus.Subscribe(events.TopicFileStatus, func(_ string, data any) {
			ev, ok := data.(*events.FileStatusChangedEvent)
			if !ok {
				return
			}
			c.transitions.WithLabelValues(ev.NewStatus).Inc()

			if state.FileStatus(ev.NewStatus) != state.StatusCompleted {
				return
			}
			rec, found := machine.Repository().GetByID(ev.FileID)
			if !found {
				return
			}
			c.bytesCopied.Add(float64(rec.FileSize))
			if rec.StartedCopyingAt != nil && rec.CompletedAt != nil {
				d := rec.CompletedAt.Sub(*rec.StartedCopyingAt)
				c.copyDuration.Observe(d.Seconds())
				if d > 0 {
					c.copySpeed.Observe(float64(rec.FileSize) / (1024 * 1024) / d.Seconds())
				}
			}
		}),
		bus.Subscribe(events.TopicScanCycle, func(_ string, data any) {
			ev, ok := data.(*events.ScanCycleEvent)
			if !ok {
				return
			}
			c.scanCycle.Observe(ev.Duration.Seconds())
		}),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Timeout: 10 * time.Second,
	})
}

// Close removes the bus subscriptions.
func (c *Collector) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
