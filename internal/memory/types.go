// types.go - Memory metrics, leak and report types, plus the UI-side
// handles the optimizer tracks.
//
// JSON CONVENTION: All fields use snake_case.
package memory

import "time"

// Element is a UI element handle. Implementations must be comparable
// (pointer types are) because elements key the listener registry.
type Element interface {
	IsConnected() bool
}

// Describer is optionally implemented by elements to label leak reports.
type Describer interface {
	Describe() string
}

// Observer is an observer-like handle that can be disconnected.
type Observer interface {
	Disconnect()
}

// Binding is one name/value pair in the global scope.
type Binding struct {
	Name  string
	Value any
}

// GlobalScope enumerates global bindings for dom-reference leak detection.
type GlobalScope interface {
	Bindings() []Binding
}

// Trend of heap usage across the last three samples.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Metrics is one memory sample.
type Metrics struct {
	UsedBytes       uint64    `json:"used_bytes"`
	TotalBytes      uint64    `json:"total_bytes"`
	LimitBytes      uint64    `json:"limit_bytes"`
	UsagePercentage float64   `json:"usage_percentage"`
	Trend           Trend     `json:"trend"`
	Timestamp       time.Time `json:"timestamp"`
}

// LeakKind classifies a suspected leak.
type LeakKind string

const (
	LeakEventListener LeakKind = "event-listener"
	LeakInterval      LeakKind = "interval"
	LeakObserver      LeakKind = "observer"
	LeakDOMReference  LeakKind = "dom-reference"
	LeakClosure       LeakKind = "closure"
)

// Severity of a suspected leak.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Leak is a heuristic finding. False positives and negatives are expected.
type Leak struct {
	Kind           LeakKind `json:"kind"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Remedy         string   `json:"remedy"`
	Related        string   `json:"related,omitempty"`
	RelatedElement Element  `json:"-"`
}

// ComponentInfo is the registry view of one component name.
type ComponentInfo struct {
	Name              string `json:"name"`
	LiveInstanceCount int    `json:"live_instance_count"`
	Leaks             []Leak `json:"leaks"`
}

// PressureEvent is broadcast when usage crosses the pressure threshold.
type PressureEvent struct {
	UsagePercentage float64   `json:"usage_percentage"`
	Threshold       float64   `json:"threshold"`
	At              time.Time `json:"at"`
}

// Report is the full memory report.
type Report struct {
	Metrics         *Metrics        `json:"metrics,omitempty"`
	Leaks           []Leak          `json:"leaks"`
	Components      []ComponentInfo `json:"components"`
	Recommendations []string        `json:"recommendations"`
	History         []Metrics       `json:"history"`
	ActiveTimers    int             `json:"active_timers"`
	Observers       int             `json:"observers"`
	TrackedElements int             `json:"tracked_elements"`
	PressureActive  bool            `json:"pressure_active"`
	Timestamp       time.Time       `json:"timestamp"`
}
