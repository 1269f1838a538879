package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MetricsManager is a singleton that owns the Prometheus registry and the
// host/runtime gauges.
type MetricsManager struct {
	// System metrics
	systemCPUUsage    *prometheus.GaugeVec
	systemMemoryUsage *prometheus.GaugeVec

	// Go runtime metrics
	goGoroutines    prometheus.Gauge
	goHeapAlloc     prometheus.Gauge
	goHeapSys       prometheus.Gauge
	goGCPauseNs     prometheus.Histogram
	goGCCPUFraction prometheus.Gauge

	// Process metrics
	processRSS       prometheus.Gauge
	processStartTime prometheus.Gauge

	registry *prometheus.Registry

	initialized bool
	mu          sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// Handler serves the singleton registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetInstance().registry, promhttp.HandlerOpts{})
}

// InitializeMetrics registers the system gauges (thread-safe)
func (mm *MetricsManager) InitializeMetrics(app string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.initialized {
		return
	}

	constLabels := prometheus.Labels{"app": app}

	mm.systemCPUUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "system_cpu_usage_percent",
			Help:        "Current CPU usage percentage",
			ConstLabels: constLabels,
		},
		[]string{"core"},
	)

	mm.systemMemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "system_memory_usage_bytes",
			Help:        "Current memory usage in bytes",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)

	mm.goGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_goroutines",
		Help:        "Number of goroutines that currently exist",
		ConstLabels: constLabels,
	})

	mm.goHeapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_heap_alloc_bytes",
		Help:        "Heap memory usage in bytes",
		ConstLabels: constLabels,
	})

	mm.goHeapSys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_heap_sys_bytes",
		Help:        "Heap memory reserved in bytes",
		ConstLabels: constLabels,
	})

	mm.goGCPauseNs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "app_gc_pause_nanoseconds",
		Help:        "GC pause time in nanoseconds",
		Buckets:     prometheus.ExponentialBuckets(1000, 2, 20),
		ConstLabels: constLabels,
	})

	mm.goGCCPUFraction = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_gc_cpu_fraction",
		Help:        "Fraction of CPU time used by GC",
		ConstLabels: constLabels,
	})

	mm.processRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_process_resident_memory_bytes",
		Help:        "Resident set size of this process",
		ConstLabels: constLabels,
	})

	mm.processStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "app_process_start_time_seconds",
		Help:        "Start time of the process since unix epoch in seconds",
		ConstLabels: constLabels,
	})

	mm.registry.MustRegister(
		mm.systemCPUUsage,
		mm.systemMemoryUsage,
		mm.goGoroutines,
		mm.goHeapAlloc,
		mm.goHeapSys,
		mm.goGCPauseNs,
		mm.goGCCPUFraction,
		mm.processRSS,
		mm.processStartTime,
	)

	mm.processStartTime.Set(float64(time.Now().Unix()))
	mm.initialized = true
}

// StartSystemMetrics collects host and runtime metrics every interval until
// ctx is done. It is a no-op unless ENABLE_SYSTEM_METRICS is "true".
func StartSystemMetrics(ctx context.Context, app string, interval time.Duration) {
	if os.Getenv("ENABLE_SYSTEM_METRICS") != "true" {
		return
	}

	mm := GetInstance()
	mm.InitializeMetrics(app)

	log.Info().Str("app", app).Dur("interval", interval).Msg("Starting system metrics collection")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.collectSystemMetrics()
				mm.collectGoRuntimeMetrics()
			}
		}
	}()
}

// collectSystemMetrics collects system-level metrics
func (mm *MetricsManager) collectSystemMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			mm.systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
		mm.systemMemoryUsage.WithLabelValues("free").Set(float64(vmstat.Free))
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			mm.processRSS.Set(float64(info.RSS))
		}
	}
}

// collectGoRuntimeMetrics collects Go runtime metrics
func (mm *MetricsManager) collectGoRuntimeMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Set(float64(runtime.NumGoroutine()))
	mm.goHeapAlloc.Set(float64(m.HeapAlloc))
	mm.goHeapSys.Set(float64(m.HeapSys))
	mm.goGCPauseNs.Observe(float64(m.PauseNs[(m.NumGC+255)%256]))
	mm.goGCCPUFraction.Set(m.GCCPUFraction)
}
