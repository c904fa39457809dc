// host.go - Host instrumentation boundary.
// The browser (or any other runtime) is an external collaborator. Everything
// the collectors know about paint, layout, input, navigation, resources and
// memory arrives through the Host interface. Every capability is optional:
// absence is reported as ErrUnsupported or ok=false, never as a panic.
//
// JSON CONVENTION: snake_case fields on the wire.
package host

import (
	"errors"
	"strings"
)

// ErrUnsupported marks a capability the host cannot provide.
var ErrUnsupported = errors.New("host: capability unsupported")

// EntryType names a timing entry stream, matching PerformanceObserver types.
type EntryType string

const (
	EntryPaint       EntryType = "paint"
	EntryLCP         EntryType = "largest-contentful-paint"
	EntryFirstInput  EntryType = "first-input"
	EntryLayoutShift EntryType = "layout-shift"
	EntryNavigation  EntryType = "navigation"
	EntryResource    EntryType = "resource"
)

// AllEntryTypes lists every stream a collector may subscribe to.
var AllEntryTypes = []EntryType{
	EntryPaint, EntryLCP, EntryFirstInput, EntryLayoutShift, EntryNavigation, EntryResource,
}

// Entry is one timing entry. Only the fields relevant to its Type are set.
type Entry struct {
	Type      EntryType `json:"type"`
	Name      string    `json:"name,omitempty"`
	StartTime float64   `json:"start_time"`
	Duration  float64   `json:"duration,omitempty"`

	// largest-contentful-paint
	RenderTime float64 `json:"render_time,omitempty"`
	LoadTime   float64 `json:"load_time,omitempty"`
	Size       float64 `json:"size,omitempty"`

	// first-input
	ProcessingStart float64 `json:"processing_start,omitempty"`

	// layout-shift
	Value          float64 `json:"value,omitempty"`
	HadRecentInput bool    `json:"had_recent_input,omitempty"`

	// navigation + resource
	RequestStart             float64 `json:"request_start,omitempty"`
	ResponseStart            float64 `json:"response_start,omitempty"`
	ResponseEnd              float64 `json:"response_end,omitempty"`
	DomContentLoadedEventEnd float64 `json:"dom_content_loaded_event_end,omitempty"`
	LoadEventEnd             float64 `json:"load_event_end,omitempty"`
	TransferSize             int64   `json:"transfer_size,omitempty"`
	EncodedBodySize          int64   `json:"encoded_body_size,omitempty"`
	DecodedBodySize          int64   `json:"decoded_body_size,omitempty"`
	InitiatorType            string  `json:"initiator_type,omitempty"`
}

// IsScript reports whether a resource entry loaded JavaScript.
func (e Entry) IsScript() bool {
	if e.Type != EntryResource {
		return false
	}
	if e.InitiatorType == "script" {
		return true
	}
	name := e.Name
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.HasSuffix(name, ".js") || strings.HasSuffix(name, ".mjs")
}

// MemoryReadout mirrors performance.memory: used / total / limit heap bytes.
type MemoryReadout struct {
	UsedBytes  uint64 `json:"used_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
	LimitBytes uint64 `json:"limit_bytes"`
}

// Subscription is a live observer registration.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a plain func to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// Host is the instrumentation surface consumed by the collectors.
type Host interface {
	// Observe registers fn for every entry of type t, including entries
	// already buffered by the host. Returns ErrUnsupported when the host
	// cannot observe t.
	Observe(t EntryType, fn func(Entry)) (Subscription, error)
	// Memory returns the current heap readout, if the host exposes one.
	Memory() (MemoryReadout, bool)
	// NetworkClass returns the effective connection class ("4g", "3g" ...).
	NetworkClass() (string, bool)
	// Viewport returns the layout viewport width in CSS pixels.
	Viewport() (float64, bool)
}

// GCHinter is implemented by hosts that can be asked to collect garbage.
// HintGC returns false when the hint was not honoured.
type GCHinter interface {
	HintGC() bool
}
