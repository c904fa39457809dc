package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

type detachedEl struct{}

func (*detachedEl) IsConnected() bool { return false }

func newTestMonitor(t *testing.T, opts Options) (*Monitor, *host.PushHost) {
	t.Helper()
	h := host.NewPushHost()
	opts.Host = h
	m := New(opts)
	t.Cleanup(m.Stop)
	return m, h
}

func TestStartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, h := newTestMonitor(t, Options{DiagnosticInterval: time.Hour})
	m.Stop()
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	assert.Positive(t, h.ObserverCount())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())
	assert.Equal(t, 0, h.ObserverCount())
}

func TestDiagnosticLoopPublishesReports(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, h := newTestMonitor(t, Options{DiagnosticInterval: 10 * time.Millisecond})
	var got atomic.Int32
	unsubscribe := m.SubscribeReports(func(FullReport) { got.Add(1) })
	defer unsubscribe()

	var busGot atomic.Int32
	require.NoError(t, m.Bus().Subscribe(TopicReport, func(FullReport) { busGot.Add(1) }))

	require.NoError(t, m.Start(context.Background()))
	h.Deliver(host.Entry{Type: host.EntryLCP, RenderTime: 1200})

	require.Eventually(t, func() bool { return got.Load() >= 2 && busGot.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	last, ok := m.LastReport()
	require.True(t, ok)
	assert.NotEmpty(t, last.ID)
	require.NotNil(t, last.Performance.Metrics.LCP)
	assert.Equal(t, 1200.0, *last.Performance.Metrics.LCP)
}

func TestBudgetViolationsAndRegression(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var seen [][]Violation
	core, logs := observer.New(zap.WarnLevel)
	m, h := newTestMonitor(t, Options{
		Logger: zap.New(core),
		Budget: DefaultBudget,
		OnViolation: func(v []Violation) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		},
	})
	m.Vitals().Start()
	t.Cleanup(m.Vitals().Stop)

	h.Deliver(host.Entry{Type: host.EntryLCP, RenderTime: 2000})
	first := m.RunDiagnostics(context.Background())
	assert.Empty(t, first.Violations)
	assert.Nil(t, first.Regression)

	h.Deliver(host.Entry{Type: host.EntryLCP, RenderTime: 5000})
	second := m.RunDiagnostics(context.Background())
	require.NotEmpty(t, second.Violations)
	metrics := map[string]bool{}
	for _, v := range second.Violations {
		metrics[v.Metric] = true
	}
	assert.True(t, metrics["lcp"])
	require.NotNil(t, second.Regression)
	assert.Equal(t, "regressed", second.Regression.Verdict)

	mu.Lock()
	assert.Len(t, seen, 1)
	mu.Unlock()
	assert.NotZero(t, logs.FilterMessage("performance budget exceeded").Len())
}

func TestBudgetCheck(t *testing.T) {
	t.Parallel()
	perf := vitals.BuildReport(func() vitals.Snapshot {
		s := vitals.NewSnapshot()
		s.CLS = vitals.Float(0.3)
		s.FID = vitals.Float(20)
		return s
	}())
	bun := bundle.Report{Metrics: bundle.Metrics{TotalSizeBytes: 2 << 20}}

	v := DefaultBudget.Check(perf, bun)
	names := []string{}
	for _, x := range v {
		names = append(names, x.Metric)
	}
	assert.ElementsMatch(t, []string{"cls", "bundle_bytes"}, names)
	assert.Empty(t, Budget{}.Check(perf, bun), "zero budget disables every check")
}

func TestSevereLeaksTriggerOptimize(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t, Options{})
	m.Memory().TrackEventListener(&detachedEl{}, "click")
	m.Memory().RegisterComponent("Dead")
	m.Memory().UnregisterComponent("Dead")

	r := m.RunDiagnostics(context.Background())
	assert.True(t, memory.HasSevereLeak(r.Memory.Leaks))
	assert.Empty(t, m.Memory().Components(), "optimize purged zero-instance components")
}

func TestComponentOwnsListenerLeaks(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t, Options{})
	c := m.Mount("Dropdown")
	el := &detachedEl{}
	c.TrackEventListener(el, "keydown")

	r := m.FullReport()
	require.Len(t, r.Memory.Components, 1)
	require.Len(t, r.Memory.Components[0].Leaks, 1)
	assert.Equal(t, memory.LeakEventListener, r.Memory.Components[0].Leaks[0].Kind)

	c.UntrackEventListener(el, "keydown")
	assert.Empty(t, m.FullReport().Memory.Components[0].Leaks)
}

type countingObserver struct{ disconnects atomic.Int32 }

func (o *countingObserver) Disconnect() { o.disconnects.Add(1) }

func TestSustainedPressureOptimizesOnce(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t, Options{})

	early := &countingObserver{}
	m.Memory().RegisterObserver("early", early)
	m.Memory().Record(host.MemoryReadout{UsedBytes: 90, TotalBytes: 90, LimitBytes: 100})
	require.True(t, m.Memory().PressureActive())
	assert.Equal(t, int32(1), early.disconnects.Load(), "breach start optimizes once")

	late := &countingObserver{}
	m.Memory().RegisterObserver("late", late)
	for range 3 {
		m.Memory().Record(host.MemoryReadout{UsedBytes: 91, TotalBytes: 91, LimitBytes: 100})
		r := m.RunDiagnostics(context.Background())
		assert.True(t, r.Memory.PressureActive)
	}
	assert.Zero(t, late.disconnects.Load(), "no further optimize during the same breach")
	assert.Equal(t, 1, m.Memory().ObserverCount())
}

func TestComponentTracking(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t, Options{DiagnosticInterval: time.Hour})
	require.NoError(t, m.Start(context.Background()))

	c := m.Mount("Table")
	m.Mount("Table")
	assert.Equal(t, 2, m.Memory().LiveInstances("Table"))

	d := c.Render(func() { time.Sleep(2 * time.Millisecond) })
	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	done := m.TrackRender("Table")
	done()
	done()

	snap := m.Vitals().GetMetrics()
	assert.Equal(t, 2, snap.RerenderCount["Table"])

	c.Unmount()
	c.Unmount()
	assert.Equal(t, 1, m.Memory().LiveInstances("Table"))
	assert.Equal(t, "Table", c.Name())
}

func TestDevSurface(t *testing.T) {
	t.Parallel()
	prod, _ := newTestMonitor(t, Options{})
	ran := false
	assert.Zero(t, prod.Dev().Measure("x", func() { ran = true }))
	assert.True(t, ran)
	assert.Nil(t, prod.Dev().LiveReport())
	assert.False(t, prod.Dev().Enabled())

	core, logs := observer.New(zap.InfoLevel)
	dev, _ := newTestMonitor(t, Options{Development: true, Logger: zap.New(core)})
	elapsed := dev.Dev().Measure("block", func() { time.Sleep(time.Millisecond) })
	assert.GreaterOrEqual(t, elapsed, time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("measure").Len())
	require.NotNil(t, dev.Dev().LiveReport())
}

func TestExportReport(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t, Options{})
	out, err := m.ExportReport()
	require.NoError(t, err)
	var r FullReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 100, r.Performance.Score)
	assert.Equal(t, 100, r.Bundle.Score)
	assert.NotEmpty(t, r.ID)
}
