// analyzer.go - Passive bundle metrics and rule-based optimizations.
// Sizes and load times come from resource timing entries; module-level
// detail comes from the configured ModuleGraphProvider.
package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/buffers"
	"github.com/brennhill/gasoline-perfkit/internal/host"
)

const (
	splitThresholdBytes  = 500 * 1024
	splitSavingsRatio    = 0.3
	slowLoadThresholdMs  = 3000
	slowLoadSavingsRatio = 0.5
	largeModuleBytes     = 100 * 1024
	treeShakeRatio       = 0.25
	maxChunkHistory      = 100
)

// Analyzer accumulates bundle metrics.
type Analyzer struct {
	host     host.Host
	provider ModuleGraphProvider
	table    *SizeTable
	logger   *zap.Logger

	mu          sync.Mutex
	running     bool
	generation  uint64
	sub         host.Subscription
	totalBytes  int64
	gzipBytes   int64
	loadTimeMs  float64
	parseTimeMs float64
	graph       Graph
	graphErr    bool
	chunks      *buffers.RingBuffer[ChunkLoad]
}

// NewAnalyzer builds an analyzer. A nil provider means no introspection;
// a nil table uses the defaults.
func NewAnalyzer(h host.Host, provider ModuleGraphProvider, table *SizeTable, logger *zap.Logger) *Analyzer {
	if provider == nil {
		provider = NoopProvider{}
	}
	if table == nil {
		table = NewSizeTable(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		host:     h,
		provider: provider,
		table:    table,
		logger:   logger.Named("bundle"),
		chunks:   buffers.NewRingBuffer[ChunkLoad](maxChunkHistory),
	}
}

// Start observes resource entries. Idempotent; a restart clears the
// accumulated sizes.
func (a *Analyzer) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.generation++
	gen := a.generation
	a.totalBytes, a.gzipBytes, a.loadTimeMs = 0, 0, 0
	a.mu.Unlock()

	if a.host == nil {
		return
	}
	sub, err := a.host.Observe(host.EntryResource, func(e host.Entry) { a.observe(gen, e) })
	if err != nil {
		if errors.Is(err, host.ErrUnsupported) {
			a.logger.Warn("resource timing unsupported; bundle sizes limited to module graph")
		} else {
			a.logger.Warn("observe resources", zap.Error(err))
		}
		return
	}
	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	a.sub = sub
	a.mu.Unlock()
}

// Stop unsubscribes. Safe to call repeatedly.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.generation++
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (a *Analyzer) observe(gen uint64, e host.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running || a.generation != gen {
		return
	}
	a.observeLocked(e)
}

// ObserveResource folds one resource entry in directly, bypassing the host.
func (a *Analyzer) ObserveResource(e host.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observeLocked(e)
}

func (a *Analyzer) observeLocked(e host.Entry) {
	if !e.IsScript() {
		return
	}
	raw := e.DecodedBodySize
	if raw <= 0 {
		raw = e.TransferSize
	}
	wire := e.TransferSize
	if wire <= 0 {
		wire = e.EncodedBodySize
	}
	a.totalBytes += max(raw, 0)
	a.gzipBytes += max(wire, 0)
	a.loadTimeMs += max(e.Duration, 0)
}

// RecordParseTime adds script parse/compile time reported by the client.
func (a *Analyzer) RecordParseTime(ms float64) {
	if !(ms > 0) {
		return
	}
	a.mu.Lock()
	a.parseTimeMs += ms
	a.mu.Unlock()
}

// Refresh pulls the module graph from the provider. Provider failures are
// logged once and leave the previous graph in place.
func (a *Analyzer) Refresh(ctx context.Context) error {
	g, err := a.provider.Graph(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		if !a.graphErr {
			a.logger.Warn("module graph unavailable", zap.Error(err))
		}
		a.graphErr = true
		return fmt.Errorf("refresh module graph: %w", err)
	}
	a.graphErr = false
	a.graph = g
	return nil
}

// SetGraph replaces the module graph, e.g. from a metafile watcher.
func (a *Analyzer) SetGraph(g Graph) {
	a.mu.Lock()
	a.graph = g
	a.mu.Unlock()
}

// ============================================
// Chunk loads
// ============================================

// TrackChunkLoad runs load, records its duration and returns its error.
// Recording never delays or alters the load itself.
func (a *Analyzer) TrackChunkLoad(name string, load func() error) error {
	start := time.Now()
	err := load()
	a.RecordChunkLoad(name, time.Since(start), err)
	return err
}

// RecordChunkLoad records a chunk load measured elsewhere.
func (a *Analyzer) RecordChunkLoad(name string, d time.Duration, err error) {
	cl := ChunkLoad{Name: name, DurationMs: float64(d.Microseconds()) / 1000, At: time.Now().UTC()}
	if err != nil {
		cl.Error = err.Error()
	}
	a.chunks.WriteOne(cl)
	a.logger.Debug("chunk loaded", zap.String("chunk", name), zap.Float64("duration_ms", cl.DurationMs), zap.Error(err))
}

// ============================================
// Metrics, rules and report
// ============================================

// Metrics returns the current aggregate.
func (a *Analyzer) Metrics() Metrics {
	a.mu.Lock()
	total, gzip := a.totalBytes, a.gzipBytes
	load, parse := a.loadTimeMs, a.parseTimeMs
	g := a.graph
	a.mu.Unlock()

	modules := make([]ModuleInfo, len(g.Modules))
	copy(modules, g.Modules)
	var modTotal, modGzip int64
	for i := range modules {
		m := &modules[i]
		if m.SizeBytes == 0 {
			if name, _, ok := PackageOf(m.Name); ok {
				if est, ok := a.table.Lookup(name); ok {
					m.SizeBytes = est.SizeBytes
				}
			} else if est, ok := a.table.Lookup(m.Name); ok {
				m.SizeBytes = est.SizeBytes
			}
		}
		if m.GzippedSizeBytes == 0 {
			m.GzippedSizeBytes = int64(float64(m.SizeBytes) * DefaultGzipRatio)
		}
		modTotal += m.SizeBytes
		modGzip += m.GzippedSizeBytes
	}
	if total == 0 {
		total, gzip = modTotal, modGzip
	}

	dups := g.Duplicates
	if dups == nil {
		dups = DetectDuplicates(modules)
	}
	if dups == nil {
		dups = []DuplicateModule{}
	}
	return Metrics{
		TotalSizeBytes:   total,
		GzippedSizeBytes: gzip,
		Modules:          modules,
		Duplicates:       dups,
		LoadTimeMs:       load,
		ParseTimeMs:      parse,
		Chunks:           a.chunks.ReadAll(),
	}
}

// AnalyzeOptimizations applies every rule to the current metrics.
func (a *Analyzer) AnalyzeOptimizations() []Optimization {
	return Optimize(a.Metrics(), a.table)
}

// Optimize applies the independent rules to m. Rules may co-fire.
func Optimize(m Metrics, table *SizeTable) []Optimization {
	opts := []Optimization{}

	if m.TotalSizeBytes > splitThresholdBytes {
		opts = append(opts, Optimization{
			Kind:        KindCodeSplit,
			Impact:      ImpactHigh,
			Description: fmt.Sprintf("Bundle is %s; split it by route and lazy-load non-critical code", humanBytes(m.TotalSizeBytes)),
			Savings:     float64(m.TotalSizeBytes) * splitSavingsRatio,
			Unit:        "bytes",
			Action:      "Introduce dynamic import() boundaries at route and feature level.",
		})
	}

	if len(m.Duplicates) > 0 {
		var wasted int64
		names := make([]string, 0, len(m.Duplicates))
		for _, d := range m.Duplicates {
			wasted += d.TotalWastedBytes
			names = append(names, d.Name)
		}
		opts = append(opts, Optimization{
			Kind:        KindDeduplicate,
			Impact:      ImpactMedium,
			Description: fmt.Sprintf("%d package(s) are bundled more than once: %v", len(m.Duplicates), names),
			Savings:     float64(wasted),
			Unit:        "bytes",
			Action:      "Align dependency versions or add resolutions so a single copy is shipped.",
		})
	}

	if m.LoadTimeMs > slowLoadThresholdMs {
		opts = append(opts, Optimization{
			Kind:        KindLoadTime,
			Impact:      ImpactHigh,
			Description: fmt.Sprintf("Scripts took %.0fms to load", m.LoadTimeMs),
			Savings:     m.LoadTimeMs * slowLoadSavingsRatio,
			Unit:        "ms",
			Action:      "Serve scripts from a CDN with compression and long-lived caching; preload critical chunks.",
		})
	}

	var large []string
	var largeBytes int64
	for _, mod := range m.Modules {
		if mod.SizeBytes > largeModuleBytes {
			large = append(large, mod.Name)
			largeBytes += mod.SizeBytes
		}
	}
	if len(large) > 0 {
		sort.Strings(large)
		opts = append(opts, Optimization{
			Kind:        KindTreeShake,
			Impact:      ImpactMedium,
			Description: fmt.Sprintf("%d module(s) exceed %s: %v", len(large), humanBytes(largeModuleBytes), large),
			Savings:     float64(largeBytes) * treeShakeRatio,
			Unit:        "bytes",
			Action:      "Import only the members you use and prefer ESM builds so unused exports are tree-shaken.",
		})
	}

	if table != nil {
		opts = append(opts, replacements(m.Modules, table)...)
	}
	return opts
}

// replacements suggests lighter alternatives for heavy packages listed in
// the size table.
func replacements(modules []ModuleInfo, table *SizeTable) []Optimization {
	seen := make(map[string]bool)
	var out []Optimization
	for _, mod := range modules {
		name, _, ok := PackageOf(mod.Name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		est, ok := table.Lookup(name)
		if !ok || est.Alternative == "" {
			continue
		}
		var savings float64
		if alt, ok := table.Lookup(est.Alternative); ok && alt.SizeBytes < est.SizeBytes {
			savings = float64(est.SizeBytes - alt.SizeBytes)
		}
		out = append(out, Optimization{
			Kind:        KindReplace,
			Impact:      ImpactLow,
			Description: fmt.Sprintf("%s is heavy; %s is a lighter alternative", name, est.Alternative),
			Savings:     savings,
			Unit:        "bytes",
			Action:      fmt.Sprintf("Replace %s with %s.", name, est.Alternative),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out
}

// Score rates bundle health from 0 to 100.
func Score(m Metrics) int {
	score := 100
	switch {
	case m.TotalSizeBytes > 1024*1024:
		score -= 30
	case m.TotalSizeBytes > 500*1024:
		score -= 20
	case m.TotalSizeBytes > 250*1024:
		score -= 10
	}
	switch {
	case m.LoadTimeMs > 5000:
		score -= 25
	case m.LoadTimeMs > 3000:
		score -= 15
	case m.LoadTimeMs > 1500:
		score -= 5
	}
	score -= min(20, len(m.Duplicates)*5)
	return max(0, min(100, score))
}

var impactRank = map[Impact]int{ImpactHigh: 0, ImpactMedium: 1, ImpactLow: 2}

// GenerateReport builds the optimization report from current state.
func (a *Analyzer) GenerateReport() Report {
	return BuildReport(a.Metrics(), a.table)
}

// BuildReport derives a report from metrics.
func BuildReport(m Metrics, table *SizeTable) Report {
	opts := Optimize(m, table)
	ranked := append([]Optimization(nil), opts...)
	sort.SliceStable(ranked, func(i, j int) bool { return impactRank[ranked[i].Impact] < impactRank[ranked[j].Impact] })
	recs := make([]string, 0, len(ranked))
	for _, o := range ranked {
		recs = append(recs, o.Action)
	}
	return Report{
		Metrics:         m,
		Optimizations:   opts,
		Score:           Score(m),
		Recommendations: recs,
		Timestamp:       time.Now().UTC(),
	}
}

// ExportReport returns the report as indented JSON.
func (a *Analyzer) ExportReport() (string, error) {
	data, err := json.MarshalIndent(a.GenerateReport(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bundle report: %w", err)
	}
	return string(data), nil
}

func humanBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.0fKB", float64(n)/1024)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
