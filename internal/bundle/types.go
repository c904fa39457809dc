// types.go - Bundle metrics, optimization and report types.
//
// JSON CONVENTION: All fields use snake_case.
package bundle

import "time"

// ModuleInfo describes one module in the shipped bundle.
type ModuleInfo struct {
	Name             string   `json:"name"`
	SizeBytes        int64    `json:"size_bytes"`
	GzippedSizeBytes int64    `json:"gzipped_size_bytes"`
	Chunks           []string `json:"chunks"` // sorted, unique
	IsEntry          bool     `json:"is_entry"`
	IsVendor         bool     `json:"is_vendor"`
}

// DuplicateModule is a package shipped more than once. OccurrenceCount is
// always at least 2.
type DuplicateModule struct {
	Name             string `json:"name"`
	OccurrenceCount  int    `json:"occurrence_count"`
	TotalWastedBytes int64  `json:"total_wasted_bytes"`
}

// ChunkLoad is one observed lazy chunk load.
type ChunkLoad struct {
	Name       string    `json:"name"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Metrics is the aggregate bundle view.
type Metrics struct {
	TotalSizeBytes   int64             `json:"total_size_bytes"`
	GzippedSizeBytes int64             `json:"gzipped_size_bytes"`
	Modules          []ModuleInfo      `json:"modules"`
	Duplicates       []DuplicateModule `json:"duplicates"`
	LoadTimeMs       float64           `json:"load_time_ms"`
	ParseTimeMs      float64           `json:"parse_time_ms"`
	Chunks           []ChunkLoad       `json:"chunks,omitempty"`
}

// Impact ranks an optimization.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Optimization kinds.
const (
	KindCodeSplit   = "code-split"
	KindDeduplicate = "deduplicate"
	KindLoadTime    = "load-time"
	KindTreeShake   = "tree-shake"
	KindReplace     = "replace-library"
)

// Optimization is one rule-based recommendation. Savings is in bytes,
// except for KindLoadTime where it is milliseconds.
type Optimization struct {
	Kind        string  `json:"kind"`
	Impact      Impact  `json:"impact"`
	Description string  `json:"description"`
	Savings     float64 `json:"savings"`
	Unit        string  `json:"unit"`
	Action      string  `json:"action"`
}

// Report is the full optimization report.
type Report struct {
	Metrics         Metrics        `json:"metrics"`
	Optimizations   []Optimization `json:"optimizations"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	Timestamp       time.Time      `json:"timestamp"`
}
