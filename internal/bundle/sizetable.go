// sizetable.go - Calibration data: approximate minified sizes of common
// libraries. These are estimates that drift as libraries evolve; they are
// used only to fill in unknown sizes and to suggest lighter alternatives.
package bundle

import (
	"maps"
	"sync"
)

// LibraryEstimate is the calibration entry for one package.
type LibraryEstimate struct {
	SizeBytes   int64  `json:"size_bytes" yaml:"size_bytes"`
	Alternative string `json:"alternative,omitempty" yaml:"alternative,omitempty"`
}

// DefaultGzipRatio estimates gzipped size from minified size.
const DefaultGzipRatio = 0.3

// DefaultSizeTable is the built-in calibration table.
var DefaultSizeTable = map[string]LibraryEstimate{
	"react":           {SizeBytes: 6_500},
	"react-dom":       {SizeBytes: 130_000},
	"lodash":          {SizeBytes: 72_000, Alternative: "lodash-es"},
	"moment":          {SizeBytes: 290_000, Alternative: "date-fns"},
	"date-fns":        {SizeBytes: 80_000},
	"chart.js":        {SizeBytes: 200_000},
	"recharts":        {SizeBytes: 420_000, Alternative: "lightweight-charts"},
	"axios":           {SizeBytes: 30_000, Alternative: "fetch"},
	"jquery":          {SizeBytes: 87_000},
	"rxjs":            {SizeBytes: 150_000},
	"@mui/material":   {SizeBytes: 330_000},
	"antd":            {SizeBytes: 1_100_000},
	"framer-motion":   {SizeBytes: 160_000},
	"lucide-react":    {SizeBytes: 600_000},
	"core-js":         {SizeBytes: 240_000},
	"xlsx":            {SizeBytes: 900_000},
	"pdfjs-dist":      {SizeBytes: 1_300_000},
	"@tanstack/query": {SizeBytes: 40_000},
}

// SizeTable is an overridable lookup of library estimates.
type SizeTable struct {
	mu      sync.RWMutex
	entries map[string]LibraryEstimate
}

// NewSizeTable starts from the defaults and applies overrides on top.
func NewSizeTable(overrides map[string]LibraryEstimate) *SizeTable {
	t := &SizeTable{entries: maps.Clone(DefaultSizeTable)}
	for name, e := range overrides {
		t.entries[name] = e
	}
	return t
}

// Lookup returns the estimate for a package.
func (t *SizeTable) Lookup(pkg string) (LibraryEstimate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[pkg]
	return e, ok
}

// Set adds or replaces an estimate.
func (t *SizeTable) Set(pkg string, e LibraryEstimate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[pkg] = e
}

// Len returns the number of entries.
func (t *SizeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
