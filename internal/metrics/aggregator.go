// Package metrics implements the rolling completion counters, the periodic
// aggregation pass, and the prometheus export.
package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/magickw/linkDAO-sub004/internal/registry"
	"github.com/magickw/linkDAO-sub004/internal/types"
)

// Snapshot is the immutable result of one aggregation pass. Readers always
// see a complete, consistent view.
type Snapshot struct {
	TotalRequests     uint64    `json:"total_requests"`
	Successes         uint64    `json:"successes"`
	Failures          uint64    `json:"failures"`
	RequestsPerSecond float64   `json:"requests_per_second"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	ErrorRate         float64   `json:"error_rate"`
	HealthyServers    int       `json:"healthy_servers"`
	TotalServers      int       `json:"total_servers"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryUsedMB      float64   `json:"memory_used_mb"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// Aggregator accumulates completion reports via atomic counters on the
// request path and recomputes a published snapshot on a fixed cadence.
// The aggregation pass only reads the counters; it holds no lock that the
// request path contends on.
type Aggregator struct {
	total      atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64
	latencySum atomic.Int64 // milliseconds

	interval time.Duration
	clock    clockwork.Clock
	registry *registry.Registry
	logger   types.Logger

	snapshot atomic.Value // Snapshot

	windowMu    sync.Mutex
	windowStart time.Time
	windowTotal uint64
	windowFails uint64

	completions *prometheus.CounterVec
	latency     prometheus.Histogram
	errorRate   prometheus.Gauge
	healthy     prometheus.Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an aggregator. Collectors are registered on promReg (nil means
// the default registerer); an aggregator built against a registerer that
// already holds the collectors shares them instead of updating orphans.
func New(interval time.Duration, reg *registry.Registry, promReg prometheus.Registerer, clock clockwork.Clock, logger types.Logger) *Aggregator {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if promReg == nil {
		promReg = prometheus.DefaultRegisterer
	}

	a := &Aggregator{
		interval: interval,
		clock:    clock,
		registry: reg,
		logger:   logger,
		stopCh:   make(chan struct{}),

		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balancer_completions_total",
				Help: "Completed requests by result",
			},
			[]string{"result"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "balancer_request_duration_seconds",
				Help:    "Reported request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		errorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "balancer_error_rate",
				Help: "Error rate over the last aggregation window",
			},
		),
		healthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "balancer_healthy_servers",
				Help: "Servers currently in healthy state",
			},
		),
	}
	a.windowStart = clock.Now()

	a.completions = registerOrReuse(promReg, a.completions).(*prometheus.CounterVec)
	a.latency = registerOrReuse(promReg, a.latency).(prometheus.Histogram)
	a.errorRate = registerOrReuse(promReg, a.errorRate).(prometheus.Gauge)
	a.healthy = registerOrReuse(promReg, a.healthy).(prometheus.Gauge)

	a.snapshot.Store(Snapshot{GeneratedAt: clock.Now()})
	return a
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor.
func registerOrReuse(r prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

// RecordCompletion folds one completion report into the counters. Safe for
// arbitrarily many concurrent callers.
func (a *Aggregator) RecordCompletion(latency time.Duration, success bool) {
	a.total.Add(1)
	a.latencySum.Add(latency.Milliseconds())
	if success {
		a.successes.Add(1)
		a.completions.WithLabelValues("success").Inc()
	} else {
		a.failures.Add(1)
		a.completions.WithLabelValues("failure").Inc()
	}
	a.latency.Observe(latency.Seconds())
}

// Start launches the aggregation loop.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := a.clock.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-ticker.Chan():
				a.Refresh()
			}
		}
	}()
}

// Stop terminates the aggregation loop.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// GetSnapshot returns the last published snapshot.
func (a *Aggregator) GetSnapshot() Snapshot {
	return a.snapshot.Load().(Snapshot)
}

// Refresh recomputes and publishes the snapshot immediately. The periodic
// loop calls this every tick.
func (a *Aggregator) Refresh() {
	now := a.clock.Now()
	total := a.total.Load()
	successes := a.successes.Load()
	failures := a.failures.Load()

	a.windowMu.Lock()
	elapsed := now.Sub(a.windowStart).Seconds()
	windowTotal := total - a.windowTotal
	windowFails := failures - a.windowFails
	a.windowStart = now
	a.windowTotal = total
	a.windowFails = failures
	a.windowMu.Unlock()

	rps := 0.0
	if elapsed > 0 {
		rps = float64(windowTotal) / elapsed
	}
	errRate := 0.0
	if windowTotal > 0 {
		errRate = float64(windowFails) / float64(windowTotal)
	}

	servers := a.registry.List(types.ListFilter{})
	healthyCount := 0
	rtSum := 0.0
	rtN := 0
	for _, s := range servers {
		if s.Status == types.StatusHealthy {
			healthyCount++
		}
		if s.ResponseTimeMs > 0 {
			rtSum += s.ResponseTimeMs
			rtN++
		}
	}
	avgRT := 0.0
	if rtN > 0 {
		avgRT = rtSum / float64(rtN)
	}

	snap := Snapshot{
		TotalRequests:     total,
		Successes:         successes,
		Failures:          failures,
		RequestsPerSecond: rps,
		AvgResponseTimeMs: avgRT,
		ErrorRate:         errRate,
		HealthyServers:    healthyCount,
		TotalServers:      len(servers),
		GeneratedAt:       now,
	}
	snap.CPUPercent, snap.MemoryUsedMB = systemUsage()

	a.errorRate.Set(errRate)
	a.healthy.Set(float64(healthyCount))
	a.snapshot.Store(snap)

	a.logger.Debug("metrics aggregated",
		"total", total,
		"rps", rps,
		"error_rate", errRate,
		"healthy_servers", healthyCount,
	)
}

// systemUsage samples process-host CPU and memory. Failures are tolerated;
// the gauges simply stay at zero.
func systemUsage() (cpuPercent, memUsedMB float64) {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}
	return cpuPercent, memUsedMB
}
