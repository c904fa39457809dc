// collector.go - Web Vitals collector fed by host timing entries.
// Start subscribes to every entry type the host supports plus a periodic
// memory sample; Stop unsubscribes synchronously and keeps the snapshot
// so a final report stays queryable.
package vitals

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/analytics"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// DefaultMemorySampleInterval is the memory readout cadence.
const DefaultMemorySampleInterval = 5 * time.Second

// Config tunes a Collector.
type Config struct {
	MemorySampleInterval time.Duration
	// Sink receives each recorded vital. Optional.
	Sink analytics.Sink
	// Page is attached to forwarded analytics events.
	Page string
}

// Collector aggregates host timing entries into a Snapshot.
type Collector struct {
	host   host.Host
	logger *zap.Logger
	cfg    Config

	mu          sync.Mutex
	snap        Snapshot
	running     bool
	generation  uint64
	subs        []host.Subscription
	ticker      *util.Ticker
	warned      map[string]bool
	lastUpdated time.Time
}

// NewCollector creates a stopped collector reading from h.
func NewCollector(h host.Host, cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MemorySampleInterval <= 0 {
		cfg.MemorySampleInterval = DefaultMemorySampleInterval
	}
	return &Collector{
		host:   h,
		logger: logger.Named("vitals"),
		cfg:    cfg,
		snap:   NewSnapshot(),
		warned: make(map[string]bool),
	}
}

// Start subscribes to the host. Calling Start while running is a no-op.
// A restart clears the previous snapshot.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.generation++
	gen := c.generation
	c.snap = NewSnapshot()
	c.mu.Unlock()

	// Observe may replay buffered entries synchronously, so the lock is
	// not held while subscribing.
	var subs []host.Subscription
	for _, t := range host.AllEntryTypes {
		sub, err := c.host.Observe(t, func(e host.Entry) { c.handleEntry(gen, e) })
		if err != nil {
			if errors.Is(err, host.ErrUnsupported) {
				c.warnOnce(string(t), "entry type unsupported by host")
			} else {
				c.logger.Warn("observe failed", zap.String("entry_type", string(t)), zap.Error(err))
			}
			continue
		}
		subs = append(subs, sub)
	}

	c.applyEnvironment(gen)
	ticker := util.StartTicker(c.logger, "vitals.memory", c.cfg.MemorySampleInterval, func() { c.sampleMemory(gen) })

	c.mu.Lock()
	if c.generation != gen {
		// Stopped while subscribing.
		c.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		ticker.Stop()
		return
	}
	c.subs = subs
	c.ticker = ticker
	c.mu.Unlock()

	c.sampleMemory(gen)
	c.logger.Debug("monitoring started", zap.Int("sources", len(subs)))
}

// Stop unsubscribes every source. Safe to call repeatedly or before Start.
// Entries delivered after Stop are ignored.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.generation++
	subs := c.subs
	ticker := c.ticker
	c.subs = nil
	c.ticker = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	ticker.Stop()
	c.logger.Debug("monitoring stopped")
}

// Running reports whether the collector is subscribed.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Reset clears the snapshot without touching subscriptions.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = NewSnapshot()
	c.lastUpdated = time.Time{}
}

func (c *Collector) warnOnce(capability, msg string) {
	c.mu.Lock()
	seen := c.warned[capability]
	c.warned[capability] = true
	c.mu.Unlock()
	if !seen {
		c.logger.Warn(msg, zap.String("capability", capability))
	}
}

// ============================================
// Entry handling
// ============================================

// vital is a value recorded by one entry, to be forwarded after unlock.
type vital struct {
	name  string
	value float64
}

func (c *Collector) handleEntry(gen uint64, e host.Entry) {
	c.mu.Lock()
	if !c.running || c.generation != gen {
		c.mu.Unlock()
		return
	}
	recorded := c.applyLocked(e)
	if len(recorded) > 0 || e.Type == host.EntryResource {
		c.lastUpdated = time.Now()
	}
	c.mu.Unlock()

	for _, v := range recorded {
		c.forward(v)
	}
}

// applyLocked folds one entry into the snapshot.
func (c *Collector) applyLocked(e host.Entry) []vital {
	s := &c.snap
	switch e.Type {
	case host.EntryPaint:
		if e.Name == "first-contentful-paint" && s.FCP == nil {
			s.FCP = Float(e.StartTime)
			return []vital{{"fcp", e.StartTime}}
		}
	case host.EntryLCP:
		v := e.RenderTime
		if v <= 0 {
			v = e.LoadTime
		}
		if v <= 0 {
			v = e.StartTime
		}
		// Candidates only grow; a late or replayed smaller one is stale.
		if s.LCP != nil && v <= *s.LCP {
			return nil
		}
		s.LCP = Float(v)
		return []vital{{"lcp", v}}
	case host.EntryFirstInput:
		if s.FID == nil {
			v := max(0, e.ProcessingStart-e.StartTime)
			s.FID = Float(v)
			return []vital{{"fid", v}}
		}
	case host.EntryLayoutShift:
		if e.HadRecentInput {
			return nil
		}
		total := e.Value
		if s.CLS != nil {
			total += *s.CLS
		}
		s.CLS = Float(total)
		return []vital{{"cls", total}}
	case host.EntryNavigation:
		var out []vital
		if e.ResponseStart > 0 {
			v := max(0, e.ResponseStart-e.RequestStart)
			s.TTFB = Float(v)
			out = append(out, vital{"ttfb", v})
		}
		if e.DomContentLoadedEventEnd > 0 {
			s.DOMContentLoaded = Float(e.DomContentLoadedEventEnd)
		}
		if e.LoadEventEnd > 0 {
			s.LoadComplete = Float(e.LoadEventEnd)
		}
		return out
	case host.EntryResource:
		if e.IsScript() {
			size := e.TransferSize
			if size <= 0 {
				size = e.EncodedBodySize
			}
			if size > 0 {
				total := size
				if s.BundleSizeBytes != nil {
					total += *s.BundleSizeBytes
				}
				s.BundleSizeBytes = &total
			}
		}
	}
	return nil
}

func (c *Collector) forward(v vital) {
	if c.cfg.Sink == nil {
		return
	}
	ev := analytics.NewEvent(v.name, v.value, string(Rate(v.name, v.value)))
	ev.Page = c.cfg.Page
	util.SafeCall(c.logger, "vitals.analytics", func() { c.cfg.Sink.Record(ev) })
}

// applyEnvironment reads the network and device class once per start.
func (c *Collector) applyEnvironment(gen uint64) {
	network, netOK := c.host.NetworkClass()
	width, vpOK := c.host.Viewport()
	if !netOK {
		c.warnOnce("network", "network class unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	if netOK {
		c.snap.NetworkClass = network
	}
	c.snap.DeviceClass = ClassifyDevice(width, vpOK)
}

func (c *Collector) sampleMemory(gen uint64) {
	m, ok := c.host.Memory()
	if !ok || m.LimitBytes == 0 {
		c.warnOnce("memory", "memory readout unavailable")
		return
	}
	ratio := float64(m.UsedBytes) / float64(m.LimitBytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.generation != gen {
		return
	}
	c.snap.MemoryUsageRatio = Float(ratio)
}

// ============================================
// Public accessors
// ============================================

// TrackComponentRender records the last render duration of name and bumps
// its rerender count. Ignored while the collector is stopped.
func (c *Collector) TrackComponentRender(name string, durationMs float64) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.snap.ComponentRenderTime[name] = durationMs
	c.snap.RerenderCount[name]++
	c.lastUpdated = time.Now()
}

// GetMetrics returns a copy of the current snapshot.
func (c *Collector) GetMetrics() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Clone()
}

// LastUpdated is when the snapshot last changed (zero if never).
func (c *Collector) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// GenerateReport derives a report from the current snapshot without
// modifying it.
func (c *Collector) GenerateReport() Report {
	return BuildReport(c.GetMetrics())
}

// BuildReport derives a report from any snapshot.
func BuildReport(s Snapshot) Report {
	issues := DeriveIssues(s)
	if issues == nil {
		issues = []Issue{}
	}
	return Report{
		Score:           Score(s),
		Metrics:         s,
		Ratings:         Ratings(s),
		Issues:          issues,
		Recommendations: Recommendations(issues),
		Timestamp:       time.Now().UTC(),
	}
}

// ExportReport returns the current report as indented JSON.
func (c *Collector) ExportReport() (string, error) {
	data, err := json.MarshalIndent(c.GenerateReport(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal performance report: %w", err)
	}
	return string(data), nil
}
