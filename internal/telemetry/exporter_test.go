package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

func ptr[T any](v T) *T { return &v }

func sampleReport() monitor.FullReport {
	return monitor.FullReport{
		Performance: vitals.Report{
			Score:   75,
			Metrics: vitals.Snapshot{LCP: ptr(3000.0), CLS: ptr(0.05)},
		},
		Bundle: bundle.Report{
			Score: 90,
			Metrics: bundle.Metrics{
				TotalSizeBytes:   600000,
				GzippedSizeBytes: 180000,
				LoadTimeMs:       1200,
				Duplicates:       []bundle.DuplicateModule{{}},
			},
		},
		Memory: memory.Report{
			Metrics:        &memory.Metrics{UsedBytes: 85, UsagePercentage: 85},
			PressureActive: true,
			Leaks: []memory.Leak{
				{Severity: memory.SeverityHigh},
				{Severity: memory.SeverityHigh},
				{Severity: memory.SeverityMedium},
			},
		},
		Violations: []monitor.Violation{{Metric: "lcp"}},
	}
}

func TestObserveSetsGauges(t *testing.T) {
	t.Parallel()
	e := NewExporter(prometheus.NewRegistry())
	e.Observe(sampleReport())

	assert.Equal(t, 75.0, testutil.ToFloat64(e.score.WithLabelValues("performance")))
	assert.Equal(t, 90.0, testutil.ToFloat64(e.score.WithLabelValues("bundle")))
	assert.Equal(t, 3000.0, testutil.ToFloat64(e.vitals.WithLabelValues("lcp")))
	assert.Equal(t, 0.05, testutil.ToFloat64(e.vitals.WithLabelValues("cls")))
	assert.Equal(t, 2, testutil.CollectAndCount(e.vitals), "unrecorded vitals are not exported")
	assert.Equal(t, 600000.0, testutil.ToFloat64(e.bundleBytes.WithLabelValues("raw")))
	assert.Equal(t, 180000.0, testutil.ToFloat64(e.bundleBytes.WithLabelValues("gzip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.duplicates))
	assert.Equal(t, 85.0, testutil.ToFloat64(e.memoryUsage))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.pressure))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.leaks.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.leaks.WithLabelValues("medium")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.leaks.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.violations))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.reports))
}

func TestObserveDropsVitalsThatDisappear(t *testing.T) {
	t.Parallel()
	e := NewExporter(prometheus.NewRegistry())
	e.Observe(sampleReport())

	r := sampleReport()
	r.Performance.Metrics = vitals.Snapshot{}
	e.Observe(r)
	assert.Equal(t, 0, testutil.CollectAndCount(e.vitals))
}

func TestAttachFollowsMonitor(t *testing.T) {
	t.Parallel()
	m := monitor.New(monitor.Options{DiagnosticInterval: time.Hour})
	e := NewExporter(prometheus.NewRegistry())
	unsubscribe := e.Attach(m)

	m.RunDiagnostics(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.reports))
	assert.Equal(t, 100.0, testutil.ToFloat64(e.score.WithLabelValues("performance")))

	unsubscribe()
	m.RunDiagnostics(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.reports))

	// A late attach picks up the last report immediately.
	late := NewExporter(prometheus.NewRegistry())
	defer late.Attach(m)()
	assert.Equal(t, 1.0, testutil.ToFloat64(late.reports))
}

func TestHandlerAndMiddleware(t *testing.T) {
	t.Parallel()
	e := NewExporter(nil)

	r := chi.NewRouter()
	r.Use(e.Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", e.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/items/42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1.0, testutil.ToFloat64(e.requestCounter.WithLabelValues("GET", "/api/items/{id}", "418")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "perfkit_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
