// push.go - In-process host fed by pushed entries.
// The HTTP ingest server (browser snippet / extension) and tests deliver
// timing entries and readouts here; PushHost fans them out to observers in
// delivery order and buffers a bounded backlog per entry type so late
// observers see earlier entries, like a buffered PerformanceObserver.
package host

import (
	"sync"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// maxBufferedEntries bounds the replay backlog per entry type.
const maxBufferedEntries = 250

// PushOption configures a PushHost.
type PushOption func(*PushHost)

// WithEntryTypes restricts which entry types the host claims to support.
// Observing any other type returns ErrUnsupported.
func WithEntryTypes(types ...EntryType) PushOption {
	return func(h *PushHost) {
		h.supported = make(map[EntryType]bool, len(types))
		for _, t := range types {
			h.supported[t] = true
		}
	}
}

// WithLogger sets the logger used for observer panics.
func WithLogger(logger *zap.Logger) PushOption {
	return func(h *PushHost) { h.logger = logger }
}

// PushHost implements Host over pushed data.
type PushHost struct {
	mu        sync.Mutex
	logger    *zap.Logger
	supported map[EntryType]bool
	observers map[EntryType]map[int]func(Entry)
	backlog   map[EntryType][]Entry
	nextID    int

	memory    *MemoryReadout
	network   string
	viewport  float64
	gcHint    func() bool
	delivered int64
}

// NewPushHost creates a host supporting every entry type unless restricted.
func NewPushHost(opts ...PushOption) *PushHost {
	h := &PushHost{
		logger:    zap.NewNop(),
		observers: make(map[EntryType]map[int]func(Entry)),
		backlog:   make(map[EntryType][]Entry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PushHost) supports(t EntryType) bool {
	if h.supported == nil {
		return true
	}
	return h.supported[t]
}

// Observe implements Host.
func (h *PushHost) Observe(t EntryType, fn func(Entry)) (Subscription, error) {
	h.mu.Lock()
	if !h.supports(t) {
		h.mu.Unlock()
		return nil, ErrUnsupported
	}
	id := h.nextID
	h.nextID++
	if h.observers[t] == nil {
		h.observers[t] = make(map[int]func(Entry))
	}
	h.observers[t][id] = fn
	replay := append([]Entry(nil), h.backlog[t]...)
	h.mu.Unlock()

	for _, e := range replay {
		h.call(fn, e)
	}

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.observers[t], id)
			h.mu.Unlock()
		})
	}), nil
}

// Deliver pushes entries to observers in order. Entries of unsupported
// types are dropped. Returns the number of entries accepted.
func (h *PushHost) Deliver(entries ...Entry) int {
	accepted := 0
	for _, e := range entries {
		h.mu.Lock()
		if !h.supports(e.Type) {
			h.mu.Unlock()
			continue
		}
		buf := append(h.backlog[e.Type], e)
		if len(buf) > maxBufferedEntries {
			buf = buf[len(buf)-maxBufferedEntries:]
		}
		h.backlog[e.Type] = buf
		fns := make([]func(Entry), 0, len(h.observers[e.Type]))
		for _, fn := range h.observers[e.Type] {
			fns = append(fns, fn)
		}
		h.delivered++
		h.mu.Unlock()

		for _, fn := range fns {
			h.call(fn, e)
		}
		accepted++
	}
	return accepted
}

func (h *PushHost) call(fn func(Entry), e Entry) {
	util.SafeCall(h.logger, "host.observer."+string(e.Type), func() { fn(e) })
}

// SetMemory records the latest memory readout.
func (h *PushHost) SetMemory(m MemoryReadout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.memory = &m
}

// SetNetworkClass records the effective connection class.
func (h *PushHost) SetNetworkClass(class string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.network = class
}

// SetViewport records the viewport width.
func (h *PushHost) SetViewport(width float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewport = width
}

// SetGCHint installs the function backing HintGC.
func (h *PushHost) SetGCHint(fn func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gcHint = fn
}

// Memory implements Host.
func (h *PushHost) Memory() (MemoryReadout, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.memory == nil {
		return MemoryReadout{}, false
	}
	return *h.memory, true
}

// NetworkClass implements Host.
func (h *PushHost) NetworkClass() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.network, h.network != ""
}

// Viewport implements Host.
func (h *PushHost) Viewport() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewport, h.viewport > 0
}

// HintGC implements GCHinter.
func (h *PushHost) HintGC() bool {
	h.mu.Lock()
	fn := h.gcHint
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn()
}

// ObserverCount returns the number of live observers across all types.
func (h *PushHost) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.observers {
		n += len(m)
	}
	return n
}

// Delivered returns the number of entries accepted so far.
func (h *PushHost) Delivered() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered
}
