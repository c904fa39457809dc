// optimizer.go - Memory sampling, trend, pressure reaction and cleanup.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/buffers"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// TopicPressure is the EventBus topic for PressureEvent broadcasts.
const TopicPressure = "memory:pressure"

const (
	DefaultSampleInterval    = 5 * time.Second
	DefaultPressureThreshold = 80.0
	DefaultHistorySize       = 20
	trendWindow              = 3
	trendThreshold           = 0.05
	optimizedHistorySize     = 5
)

// Config tunes an Optimizer.
type Config struct {
	SampleInterval time.Duration
	// PressureThreshold is a usage percentage in (0, 100].
	PressureThreshold float64
	HistorySize       int
	// Bus carries pressure broadcasts. A private bus is created when nil.
	Bus evbus.Bus
	// Global is inspected for dom-reference leaks. Optional.
	Global GlobalScope
}

// Optimizer tracks component lifetimes, listeners, observers and timers,
// samples host memory and reacts to pressure.
type Optimizer struct {
	host   host.Host
	logger *zap.Logger
	cfg    Config
	bus    evbus.Bus
	timers *TimerTracker

	mu         sync.Mutex
	components map[string]int
	listeners  map[Element]map[string]struct{}
	owners     map[Element]string
	observers  map[string]Observer
	global     GlobalScope
	history    *buffers.RingBuffer[Metrics]
	pressure   bool
	running    bool
	generation uint64
	ticker     *util.Ticker
	warned     bool
	lastLeaks  int
	subs       map[int]func(PressureEvent)
	nextSub    int
}

// New creates a stopped optimizer.
func New(h host.Host, cfg Config, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.PressureThreshold <= 0 || cfg.PressureThreshold > 100 {
		cfg.PressureThreshold = DefaultPressureThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	bus := cfg.Bus
	if bus == nil {
		bus = evbus.New()
	}
	logger = logger.Named("memory")
	return &Optimizer{
		host:       h,
		logger:     logger,
		cfg:        cfg,
		bus:        bus,
		timers:     NewTimerTracker(logger),
		components: make(map[string]int),
		listeners:  make(map[Element]map[string]struct{}),
		owners:     make(map[Element]string),
		observers:  make(map[string]Observer),
		global:     cfg.Global,
		history:    buffers.NewRingBuffer[Metrics](cfg.HistorySize),
		subs:       make(map[int]func(PressureEvent)),
	}
}

// Timers returns the tracker whose timers count toward leak detection.
func (o *Optimizer) Timers() *TimerTracker { return o.timers }

// Bus returns the broadcast bus.
func (o *Optimizer) Bus() evbus.Bus { return o.bus }

// Start begins periodic sampling. Idempotent.
func (o *Optimizer) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	ticker := util.StartTicker(o.logger, "memory.sample", o.cfg.SampleInterval, func() { o.tick(gen) })

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		ticker.Stop()
		return
	}
	o.ticker = ticker
	o.mu.Unlock()
	o.tick(gen)
}

// Stop halts sampling and cancels every tracked timer. Safe to call
// repeatedly or before Start.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		o.timers.Stop()
		return
	}
	o.running = false
	o.generation++
	ticker := o.ticker
	o.ticker = nil
	o.mu.Unlock()

	ticker.Stop()
	o.timers.Stop()
}

func (o *Optimizer) tick(gen uint64) {
	o.mu.Lock()
	live := o.running && o.generation == gen
	o.mu.Unlock()
	if !live {
		return
	}
	o.Sample()
	leaks := o.DetectLeaks()

	o.mu.Lock()
	changed := len(leaks) != o.lastLeaks
	o.lastLeaks = len(leaks)
	o.mu.Unlock()
	if changed {
		o.logger.Debug("leak heuristics updated", zap.Int("suspected", len(leaks)))
	}
}

// ============================================
// Sampling
// ============================================

// Sample reads host memory once, appends it to the history and runs the
// pressure check. Returns false when the host has no memory readout.
func (o *Optimizer) Sample() (Metrics, bool) {
	if o.host == nil {
		return Metrics{}, false
	}
	r, ok := o.host.Memory()
	if !ok || r.LimitBytes == 0 {
		o.mu.Lock()
		warned := o.warned
		o.warned = true
		o.mu.Unlock()
		if !warned {
			o.logger.Warn("memory readout unavailable; sampling disabled")
		}
		return Metrics{}, false
	}
	return o.Record(r), true
}

// Record folds an externally obtained readout into the history.
func (o *Optimizer) Record(r host.MemoryReadout) Metrics {
	m := Metrics{
		UsedBytes:  r.UsedBytes,
		TotalBytes: r.TotalBytes,
		LimitBytes: r.LimitBytes,
		Timestamp:  time.Now().UTC(),
	}
	if r.LimitBytes > 0 {
		m.UsagePercentage = float64(r.UsedBytes) / float64(r.LimitBytes) * 100
	}

	o.mu.Lock()
	recent := o.history.ReadLast(trendWindow - 1)
	m.Trend = ComputeTrend(append(recent, m))
	o.history.WriteOne(m)

	breached := false
	if m.UsagePercentage >= o.cfg.PressureThreshold {
		breached = !o.pressure
		o.pressure = true
	} else {
		o.pressure = false
	}
	o.mu.Unlock()

	if breached {
		o.onPressure(m)
	}
	return m
}

// ComputeTrend compares the oldest and newest of the last three samples.
// A relative change of at least 5% is a trend; fewer than three samples is
// stable.
func ComputeTrend(samples []Metrics) Trend {
	if len(samples) < trendWindow {
		return TrendStable
	}
	window := samples[len(samples)-trendWindow:]
	first, last := float64(window[0].UsedBytes), float64(window[len(window)-1].UsedBytes)
	if first == 0 {
		if last > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (last - first) / first
	switch {
	case change >= trendThreshold:
		return TrendIncreasing
	case change <= -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Current returns the latest sample.
func (o *Optimizer) Current() (Metrics, bool) {
	last := o.history.ReadLast(1)
	if len(last) == 0 {
		return Metrics{}, false
	}
	return last[0], true
}

// History returns the retained samples, oldest first.
func (o *Optimizer) History() []Metrics { return o.history.ReadAll() }

// PressureActive reports whether usage is currently above the threshold.
func (o *Optimizer) PressureActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pressure
}

// ============================================
// Pressure
// ============================================

func (o *Optimizer) onPressure(m Metrics) {
	ev := PressureEvent{UsagePercentage: m.UsagePercentage, Threshold: o.cfg.PressureThreshold, At: m.Timestamp}
	o.logger.Warn("memory pressure",
		zap.Float64("usage_percentage", ev.UsagePercentage),
		zap.Float64("threshold", ev.Threshold))

	util.SafeCall(o.logger, "memory.pressure.publish", func() { o.bus.Publish(TopicPressure, ev) })
	o.mu.Lock()
	subs := make([]func(PressureEvent), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()
	for _, fn := range subs {
		util.SafeCall(o.logger, "memory.pressure.subscriber", func() { fn(ev) })
	}
	o.Optimize()
}

// SubscribePressure registers fn for pressure notifications and returns
// its unsubscribe func. Consumers that prefer the bus can subscribe to
// TopicPressure on Bus() instead.
func (o *Optimizer) SubscribePressure(fn func(PressureEvent)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// ============================================
// Optimization
// ============================================

// OptimizeResult summarizes one cleanup pass.
type OptimizeResult struct {
	GCHinted              bool `json:"gc_hinted"`
	ObserversDisconnected int  `json:"observers_disconnected"`
	HistoryTrimmedTo      int  `json:"history_trimmed_to"`
	ComponentsPurged      int  `json:"components_purged"`
}

// Optimize hints GC when the host supports it, disconnects every observer,
// trims history to the last five samples and purges components with no
// live instances. Never fails.
func (o *Optimizer) Optimize() OptimizeResult {
	var res OptimizeResult
	if gc, ok := o.host.(host.GCHinter); ok {
		util.SafeCall(o.logger, "memory.gc", func() { res.GCHinted = gc.HintGC() })
	}

	o.mu.Lock()
	observers := o.observers
	o.observers = make(map[string]Observer)
	for name, n := range o.components {
		if n <= 0 {
			delete(o.components, name)
			res.ComponentsPurged++
		}
	}
	o.mu.Unlock()

	for id, ob := range observers {
		if util.SafeCall(o.logger, "memory.observer.disconnect."+id, ob.Disconnect) {
			res.ObserversDisconnected++
		}
	}
	o.history.TrimToLast(optimizedHistorySize)
	res.HistoryTrimmedTo = o.history.Len()

	o.logger.Info("memory optimized",
		zap.Bool("gc_hinted", res.GCHinted),
		zap.Int("observers_disconnected", res.ObserversDisconnected),
		zap.Int("components_purged", res.ComponentsPurged))
	return res
}

// ============================================
// Report
// ============================================

// GenerateReport assembles metrics, leaks, components and history.
func (o *Optimizer) GenerateReport() Report {
	leaks := o.DetectLeaks()
	comps := o.componentInfos(leaks)
	r := Report{
		Leaks:           leaks,
		Components:      comps,
		Recommendations: recommendations(leaks),
		History:         o.History(),
		ActiveTimers:    o.timers.Active(),
		Timestamp:       time.Now().UTC(),
	}
	if m, ok := o.Current(); ok {
		r.Metrics = &m
		if m.UsagePercentage >= o.cfg.PressureThreshold {
			r.Recommendations = append(r.Recommendations,
				fmt.Sprintf("Heap usage is %.0f%% of the limit; release caches and large buffers.", m.UsagePercentage))
		}
	}
	o.mu.Lock()
	r.Observers = len(o.observers)
	r.TrackedElements = len(o.listeners)
	r.PressureActive = o.pressure
	o.mu.Unlock()
	return r
}

// ExportReport returns the report as indented JSON.
func (o *Optimizer) ExportReport() (string, error) {
	data, err := json.MarshalIndent(o.GenerateReport(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal memory report: %w", err)
	}
	return string(data), nil
}
