// Package metrics exposes Prometheus metrics for the pipeline run history.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/neurospin/gofreesurfer/pkg/store"
)

// Collector tracks pipeline run counters and host load on its own registry
// so that several collectors can coexist in one process.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	mu       sync.Mutex
	observed map[string]bool

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsByStatus *prometheus.GaugeVec
	uptime       prometheus.Gauge
	cpuPercent   prometheus.Gauge
	memoryUsed   prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		observed:  map[string]bool{},
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total pipeline runs launched, by tool and final status",
			},
			[]string{"tool", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"tool"},
		),
		runsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_runs_by_status",
				Help: "Runs currently recorded in the store, by status",
			},
			[]string{"status"},
		),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_uptime_seconds",
			Help: "Seconds since the status server started",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_host_cpu_percent",
			Help: "Host CPU usage percentage",
		}),
		memoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_host_memory_used_bytes",
			Help: "Host memory in use",
		}),
	}

	c.registry.MustRegister(c.runsTotal)
	c.registry.MustRegister(c.runDuration)
	c.registry.MustRegister(c.runsByStatus)
	c.registry.MustRegister(c.uptime)
	c.registry.MustRegister(c.cpuPercent)
	c.registry.MustRegister(c.memoryUsed)

	return c
}

// SyncStore refreshes the per-status gauge from the run store and counts
// every finished run into the totals and the duration histogram. A run is
// observed at most once per collector, repeated syncs are safe.
func (c *Collector) SyncStore(s store.Store) {
	for status, n := range s.CountByStatus() {
		c.runsByStatus.WithLabelValues(status).Set(float64(n))
	}
	for _, run := range s.GetAllRuns() {
		if run.CompletedAt == nil {
			continue
		}
		c.mu.Lock()
		seen := c.observed[run.ID]
		c.observed[run.ID] = true
		c.mu.Unlock()
		if seen {
			continue
		}
		c.runsTotal.WithLabelValues(run.Tool, run.Status).Inc()
		c.runDuration.WithLabelValues(run.Tool).Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}
}

// SampleHost refreshes the uptime, host CPU and memory gauges.
func (c *Collector) SampleHost() {
	c.uptime.Set(time.Since(c.startTime).Seconds())
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		c.cpuPercent.Set(percents[0])
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		c.memoryUsed.Set(float64(vmem.Used))
	}
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
