// types.go - Snapshot, issue and report types for the Web Vitals collector.
//
// JSON CONVENTION: All fields use snake_case.
package vitals

import "time"

// ============================================
// Snapshot
// ============================================

// DeviceClass buckets the viewport width.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
)

// ClassifyDevice maps a viewport width to a device class. Unknown widths
// are treated as desktop.
func ClassifyDevice(width float64, ok bool) DeviceClass {
	switch {
	case !ok || width <= 0:
		return DeviceDesktop
	case width < 768:
		return DeviceMobile
	case width < 1024:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Snapshot is the aggregate of everything the collector has observed.
// Nil pointers mean the metric is absent (not yet observed or unsupported).
// Vitals replace their previous value except CLS and rerender counts,
// which accumulate.
type Snapshot struct {
	LCP  *float64 `json:"lcp,omitempty"`
	FID  *float64 `json:"fid,omitempty"`
	CLS  *float64 `json:"cls,omitempty"`
	FCP  *float64 `json:"fcp,omitempty"`
	TTFB *float64 `json:"ttfb,omitempty"`

	DOMContentLoaded *float64 `json:"dom_content_loaded,omitempty"`
	LoadComplete     *float64 `json:"load_complete,omitempty"`

	MemoryUsageRatio *float64    `json:"memory_usage_ratio,omitempty"`
	NetworkClass     string      `json:"network_class,omitempty"`
	DeviceClass      DeviceClass `json:"device_class"`

	ComponentRenderTime map[string]float64 `json:"component_render_time"`
	RerenderCount       map[string]int     `json:"rerender_count"`

	BundleSizeBytes *int64 `json:"bundle_size_bytes,omitempty"`
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		DeviceClass:         DeviceDesktop,
		ComponentRenderTime: make(map[string]float64),
		RerenderCount:       make(map[string]int),
	}
}

// Clone deep-copies s so callers cannot reach collector state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.LCP = clonePtr(s.LCP)
	out.FID = clonePtr(s.FID)
	out.CLS = clonePtr(s.CLS)
	out.FCP = clonePtr(s.FCP)
	out.TTFB = clonePtr(s.TTFB)
	out.DOMContentLoaded = clonePtr(s.DOMContentLoaded)
	out.LoadComplete = clonePtr(s.LoadComplete)
	out.MemoryUsageRatio = clonePtr(s.MemoryUsageRatio)
	out.BundleSizeBytes = clonePtr(s.BundleSizeBytes)
	out.ComponentRenderTime = make(map[string]float64, len(s.ComponentRenderTime))
	for k, v := range s.ComponentRenderTime {
		out.ComponentRenderTime[k] = v
	}
	out.RerenderCount = make(map[string]int, len(s.RerenderCount))
	for k, v := range s.RerenderCount {
		out.RerenderCount[k] = v
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v. Convenient for building snapshots.
func Float(v float64) *float64 { return &v }

// ============================================
// Issues and reports
// ============================================

// Severity of a performance issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category groups issues by the part of the page they concern.
type Category string

const (
	CategoryLoading   Category = "loading"
	CategoryRendering Category = "rendering"
	CategoryMemory    Category = "memory"
	CategoryNetwork   Category = "network"
	CategoryBundle    Category = "bundle"
)

// Priority orders remediation work.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Issue is one derived threshold breach. Issues are regenerated on every
// report and carry no identity.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	Message     string   `json:"message"`
	ImpactScore int      `json:"impact_score"` // 1..10
	Remedy      string   `json:"remedy"`
	Priority    Priority `json:"priority"`
}

// Report is the derived view of a snapshot at a point in time.
type Report struct {
	Score           int               `json:"score"`
	Metrics         Snapshot          `json:"metrics"`
	Ratings         map[string]Rating `json:"ratings"`
	Issues          []Issue           `json:"issues"`
	Recommendations []string          `json:"recommendations"`
	Timestamp       time.Time         `json:"timestamp"`
}
