// monitor.go - Orchestration facade: one diagnostic context per process.
// Owns the vitals collector, bundle analyzer and memory optimizer, runs the
// periodic diagnostic pass and fans reports out to subscribers.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/analytics"
	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/util"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

// TopicReport is the EventBus topic carrying every FullReport.
const TopicReport = "perfkit:report"

// DefaultDiagnosticInterval is the cadence of the diagnostic pass.
const DefaultDiagnosticInterval = 30 * time.Second

// Options configures a Monitor.
type Options struct {
	Host      host.Host
	Provider  bundle.ModuleGraphProvider
	SizeTable *bundle.SizeTable
	Sink      analytics.Sink
	Bus       evbus.Bus
	Global    memory.GlobalScope
	Logger    *zap.Logger

	Page                 string
	Development          bool
	DiagnosticInterval   time.Duration
	MemorySampleInterval time.Duration
	PressureThreshold    float64

	Budget      Budget
	OnViolation func([]Violation)
}

// FullReport aggregates the three subsystem reports.
type FullReport struct {
	ID          string               `json:"id"`
	Performance vitals.Report        `json:"performance"`
	Bundle      bundle.Report        `json:"bundle"`
	Memory      memory.Report        `json:"memory"`
	Violations  []Violation          `json:"violations"`
	Regression  *vitals.SnapshotDiff `json:"regression,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Monitor is the diagnostic context.
type Monitor struct {
	opts   Options
	logger *zap.Logger
	bus    evbus.Bus

	vitals *vitals.Collector
	bundle *bundle.Analyzer
	memory *memory.Optimizer

	mu       sync.Mutex
	running  bool
	ticker   *util.Ticker
	cancel   context.CancelFunc
	last     *FullReport
	baseline *vitals.Snapshot
	subs     map[int]func(FullReport)
	nextSub  int
}

// New builds the subsystems. Nothing runs until Start.
func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Host == nil {
		opts.Host = host.NewPushHost(host.WithLogger(opts.Logger))
	}
	if opts.Bus == nil {
		opts.Bus = evbus.New()
	}
	if opts.DiagnosticInterval <= 0 {
		opts.DiagnosticInterval = DefaultDiagnosticInterval
	}
	logger := opts.Logger.Named("monitor")

	return &Monitor{
		opts:   opts,
		logger: logger,
		bus:    opts.Bus,
		vitals: vitals.NewCollector(opts.Host, vitals.Config{
			MemorySampleInterval: opts.MemorySampleInterval,
			Sink:                 opts.Sink,
			Page:                 opts.Page,
		}, opts.Logger),
		bundle: bundle.NewAnalyzer(opts.Host, opts.Provider, opts.SizeTable, opts.Logger),
		memory: memory.New(opts.Host, memory.Config{
			SampleInterval:    opts.MemorySampleInterval,
			PressureThreshold: opts.PressureThreshold,
			Bus:               opts.Bus,
			Global:            opts.Global,
		}, opts.Logger),
		subs: make(map[int]func(FullReport)),
	}
}

// Vitals returns the Web Vitals collector.
func (m *Monitor) Vitals() *vitals.Collector { return m.vitals }

// Bundle returns the bundle analyzer.
func (m *Monitor) Bundle() *bundle.Analyzer { return m.bundle }

// Memory returns the memory optimizer.
func (m *Monitor) Memory() *memory.Optimizer { return m.memory }

// Host returns the instrumentation host.
func (m *Monitor) Host() host.Host { return m.opts.Host }

// Bus returns the broadcast bus (reports and memory pressure).
func (m *Monitor) Bus() evbus.Bus { return m.bus }

// Development reports whether the dev surface is enabled.
func (m *Monitor) Development() bool { return m.opts.Development }

// Start starts every subsystem and the diagnostic loop. Idempotent.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.mu.Unlock()

	m.vitals.Start()
	m.bundle.Start()
	m.memory.Start()
	if err := m.bundle.Refresh(ctx); err != nil {
		m.logger.Debug("initial module graph refresh failed", zap.Error(err))
	}

	ticker := util.StartTicker(m.logger, "monitor.diagnostics", m.opts.DiagnosticInterval, func() {
		m.RunDiagnostics(loopCtx)
	})
	m.mu.Lock()
	m.ticker = ticker
	m.mu.Unlock()

	m.logger.Info("monitoring started",
		zap.Duration("diagnostic_interval", m.opts.DiagnosticInterval),
		zap.Bool("development", m.opts.Development))
	return nil
}

// Stop tears everything down synchronously. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	ticker, cancel := m.ticker, m.cancel
	m.ticker, m.cancel = nil, nil
	m.mu.Unlock()

	cancel()
	ticker.Stop()
	m.vitals.Stop()
	m.bundle.Stop()
	m.memory.Stop()
	m.logger.Info("monitoring stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// FullReport builds a report from current state without side effects.
func (m *Monitor) FullReport() FullReport {
	perf := m.vitals.GenerateReport()
	bun := m.bundle.GenerateReport()
	mem := m.memory.GenerateReport()
	budget := m.opts.Budget
	violations := budget.Check(perf, bun)
	if violations == nil {
		violations = []Violation{}
	}
	return FullReport{
		ID:          uuid.NewString(),
		Performance: perf,
		Bundle:      bun,
		Memory:      mem,
		Violations:  violations,
		Timestamp:   time.Now().UTC(),
	}
}

// RunDiagnostics performs one diagnostic pass: refresh the module graph,
// build the full report, enforce budgets, react to memory findings and
// notify subscribers.
func (m *Monitor) RunDiagnostics(ctx context.Context) FullReport {
	if err := m.bundle.Refresh(ctx); err != nil {
		m.logger.Debug("module graph refresh failed", zap.Error(err))
	}
	r := m.FullReport()

	m.mu.Lock()
	if m.baseline != nil {
		d := vitals.Compare(*m.baseline, r.Performance.Metrics)
		if d.Regressed() {
			r.Regression = &d
		}
	}
	snap := r.Performance.Metrics.Clone()
	m.baseline = &snap
	m.mu.Unlock()

	if len(r.Violations) > 0 {
		for _, v := range r.Violations {
			m.logger.Warn("performance budget exceeded",
				zap.String("metric", v.Metric),
				zap.Float64("value", v.Value),
				zap.Float64("limit", v.Limit))
		}
		if m.opts.OnViolation != nil {
			util.SafeCall(m.logger, "monitor.on_violation", func() { m.opts.OnViolation(r.Violations) })
		}
	}
	if r.Regression != nil {
		m.logger.Warn("performance regressed", zap.String("summary", r.Regression.Summary))
	}
	// Pressure already optimized once when the breach started.
	if memory.HasSevereLeak(r.Memory.Leaks) {
		res := m.memory.Optimize()
		m.logger.Info("memory optimization triggered by diagnostics",
			zap.Int("leaks", len(r.Memory.Leaks)),
			zap.Int("observers_disconnected", res.ObserversDisconnected))
	}

	m.mu.Lock()
	m.last = &r
	subs := make([]func(FullReport), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	util.SafeCall(m.logger, "monitor.publish", func() { m.bus.Publish(TopicReport, r) })
	for _, fn := range subs {
		util.SafeCall(m.logger, "monitor.subscriber", func() { fn(r) })
	}
	return r
}

// LastReport returns the report of the most recent diagnostic pass.
func (m *Monitor) LastReport() (FullReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return FullReport{}, false
	}
	return *m.last, true
}

// SubscribeReports registers fn for every diagnostic pass and returns its
// unsubscribe func.
func (m *Monitor) SubscribeReports(fn func(FullReport)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// ExportReport returns a full report as indented JSON.
func (m *Monitor) ExportReport() (string, error) {
	data, err := json.MarshalIndent(m.FullReport(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal full report: %w", err)
	}
	return string(data), nil
}
