// exporter.go - Prometheus gauges mirroring the latest diagnostic report,
// plus request metrics for the HTTP server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
)

const namespace = "perfkit"

// Exporter owns a registry and the perfkit metric families.
type Exporter struct {
	reg *prometheus.Registry

	score       *prometheus.GaugeVec
	vitals      *prometheus.GaugeVec
	bundleBytes *prometheus.GaugeVec
	bundleLoad  prometheus.Gauge
	duplicates  prometheus.Gauge
	memoryUsage prometheus.Gauge
	memoryUsed  prometheus.Gauge
	pressure    prometheus.Gauge
	leaks       *prometheus.GaugeVec
	violations  prometheus.Gauge
	reports     prometheus.Counter

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewExporter registers every family on reg. A nil reg gets a fresh one
// with the Go and process collectors.
func NewExporter(reg *prometheus.Registry) *Exporter {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)
	return &Exporter{
		reg: reg,
		score: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Latest 0-100 score per subsystem",
		}, []string{"subsystem"}),
		vitals: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vitals",
			Name:      "value",
			Help:      "Latest recorded web vital (ms, or unitless for cls)",
		}, []string{"metric"}),
		bundleBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "size_bytes",
			Help:      "Bundle size in bytes",
		}, []string{"encoding"}),
		bundleLoad: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "load_time_ms",
			Help:      "Summed script load time in milliseconds",
		}),
		duplicates: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "duplicate_packages",
			Help:      "Packages bundled more than once",
		}),
		memoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "usage_percent",
			Help:      "Heap usage as a percentage of the limit",
		}),
		memoryUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "used_bytes",
			Help:      "Used heap bytes",
		}),
		pressure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "pressure_active",
			Help:      "1 while usage is above the pressure threshold",
		}),
		leaks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "leaks",
			Help:      "Suspected leaks by severity",
		}, []string{"severity"}),
		violations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_violations",
			Help:      "Budget violations in the latest report",
		}),
		reports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Diagnostic reports observed",
		}),
		requestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})
}

// Attach mirrors every report m publishes. Returns the unsubscribe func.
func (e *Exporter) Attach(m *monitor.Monitor) func() {
	if last, ok := m.LastReport(); ok {
		e.Observe(last)
	}
	return m.SubscribeReports(e.Observe)
}

// Observe updates every gauge from r. Vitals that were never recorded
// are removed rather than exported as zero.
func (e *Exporter) Observe(r monitor.FullReport) {
	e.reports.Inc()
	e.score.WithLabelValues("performance").Set(float64(r.Performance.Score))
	e.score.WithLabelValues("bundle").Set(float64(r.Bundle.Score))

	snap := r.Performance.Metrics
	for name, v := range map[string]*float64{
		"lcp":  snap.LCP,
		"fid":  snap.FID,
		"cls":  snap.CLS,
		"fcp":  snap.FCP,
		"ttfb": snap.TTFB,
	} {
		if v == nil {
			e.vitals.DeleteLabelValues(name)
			continue
		}
		e.vitals.WithLabelValues(name).Set(*v)
	}

	bm := r.Bundle.Metrics
	e.bundleBytes.WithLabelValues("raw").Set(float64(bm.TotalSizeBytes))
	e.bundleBytes.WithLabelValues("gzip").Set(float64(bm.GzippedSizeBytes))
	e.bundleLoad.Set(bm.LoadTimeMs)
	e.duplicates.Set(float64(len(bm.Duplicates)))

	if mm := r.Memory.Metrics; mm != nil {
		e.memoryUsage.Set(mm.UsagePercentage)
		e.memoryUsed.Set(float64(mm.UsedBytes))
	}
	e.pressure.Set(boolGauge(r.Memory.PressureActive))

	counts := map[memory.Severity]int{}
	for _, l := range r.Memory.Leaks {
		counts[l.Severity]++
	}
	for _, sev := range []memory.Severity{memory.SeverityCritical, memory.SeverityHigh, memory.SeverityMedium, memory.SeverityLow} {
		e.leaks.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
	e.violations.Set(float64(len(r.Violations)))
}

// Middleware records request counts and latency per chi route pattern.
func (e *Exporter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		e.requestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		e.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
