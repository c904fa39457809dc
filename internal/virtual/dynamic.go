// dynamic.go - Virtual list with estimated, then measured, row heights.
// Unmeasured rows use the estimate. The total extent is the running sum of
// measured-or-estimated sizes, so it shifts as measurements replace
// estimates; that drift is accepted and visible as possible scroll jitter.
package virtual

import (
	"sort"
	"sync"
	"time"
)

// DefaultEstimatedItemHeight is used when no estimator is configured or
// the estimator returns a non-positive size.
const DefaultEstimatedItemHeight = 50.0

// DynamicOptions configures a DynamicList.
type DynamicOptions struct {
	ItemCount           int
	ContainerHeight     float64
	Overscan            int
	EstimateItemHeight  func(index int) float64
	ScrollingResetDelay time.Duration
}

// DynamicList virtualizes rows whose heights are learned by measurement.
type DynamicList struct {
	scroller

	sizesMu  sync.RWMutex
	opts     DynamicOptions
	measured map[int]float64 // sparse: only rows that reported a size
	offsets  []float64       // prefix sums, len = ItemCount+1; nil when dirty
}

// NewDynamicList creates an unattached list.
func NewDynamicList(opts DynamicOptions) *DynamicList {
	l := &DynamicList{opts: opts, measured: make(map[int]float64)}
	l.scroller.init(opts.ScrollingResetDelay)
	return l
}

// Attach binds the list to c.
func (l *DynamicList) Attach(c ScrollContainer) { l.attach(c) }

// Detach unregisters the scroll listener.
func (l *DynamicList) Detach() { l.detach() }

// HandleScroll feeds a scroll event without a container.
func (l *DynamicList) HandleScroll(offset float64) { l.handleScroll(offset) }

// State returns the current scroll state.
func (l *DynamicList) State() State { return l.snapshot() }

// EstimateItemHeight returns the estimate for index.
func (l *DynamicList) EstimateItemHeight(index int) float64 {
	l.sizesMu.RLock()
	defer l.sizesMu.RUnlock()
	return l.estimateLocked(index)
}

func (l *DynamicList) estimateLocked(index int) float64 {
	if l.opts.EstimateItemHeight != nil {
		if h := l.opts.EstimateItemHeight(index); h > 0 {
			return h
		}
	}
	return DefaultEstimatedItemHeight
}

// MeasureItem records the real size of a rendered row. Non-positive sizes
// and out-of-range indexes are ignored.
func (l *DynamicList) MeasureItem(index int, size float64) {
	l.sizesMu.Lock()
	defer l.sizesMu.Unlock()
	if index < 0 || index >= l.opts.ItemCount || !(size > 0) {
		return
	}
	if prev, ok := l.measured[index]; ok && prev == size {
		return
	}
	l.measured[index] = size
	l.offsets = nil
}

// Measured reports how many rows carry a real measurement.
func (l *DynamicList) Measured() int {
	l.sizesMu.RLock()
	defer l.sizesMu.RUnlock()
	return len(l.measured)
}

// SetItemCount updates the number of rows, dropping measurements past the end.
func (l *DynamicList) SetItemCount(n int) {
	l.sizesMu.Lock()
	defer l.sizesMu.Unlock()
	if n < 0 {
		n = 0
	}
	for i := range l.measured {
		if i >= n {
			delete(l.measured, i)
		}
	}
	l.opts.ItemCount = n
	l.offsets = nil
}

// ItemSize returns the measured size of index, or its estimate.
func (l *DynamicList) ItemSize(index int) float64 {
	l.sizesMu.RLock()
	defer l.sizesMu.RUnlock()
	return l.sizeLocked(index)
}

func (l *DynamicList) sizeLocked(index int) float64 {
	if s, ok := l.measured[index]; ok {
		return s
	}
	return l.estimateLocked(index)
}

// prefix returns cached prefix sums, rebuilding them after any change.
func (l *DynamicList) prefix() ([]float64, DynamicOptions) {
	l.sizesMu.RLock()
	if l.offsets != nil {
		offs, opts := l.offsets, l.opts
		l.sizesMu.RUnlock()
		return offs, opts
	}
	l.sizesMu.RUnlock()

	l.sizesMu.Lock()
	defer l.sizesMu.Unlock()
	if l.offsets == nil {
		n := max(l.opts.ItemCount, 0)
		offs := make([]float64, n+1)
		for i := 0; i < n; i++ {
			offs[i+1] = offs[i] + l.sizeLocked(i)
		}
		l.offsets = offs
	}
	return l.offsets, l.opts
}

// TotalSize is the sum of all measured-or-estimated row sizes.
func (l *DynamicList) TotalSize() float64 {
	offs, _ := l.prefix()
	return offs[len(offs)-1]
}

// Range returns the index window for the current offset.
func (l *DynamicList) Range() Range {
	offs, opts := l.prefix()
	return dynamicRange(offs, opts, l.State().ScrollOffset)
}

func dynamicRange(offs []float64, opts DynamicOptions, offset float64) Range {
	n := len(offs) - 1
	if n <= 0 || !(opts.ContainerHeight > 0) {
		return EmptyRange
	}
	overscan := max(opts.Overscan, 0)

	// First row whose end is past the offset.
	first := sort.Search(n, func(i int) bool { return offs[i+1] > offset })
	if first >= n {
		first = n - 1
	}
	// Last row whose start is before the viewport bottom.
	bottom := offset + opts.ContainerHeight
	last := sort.Search(n, func(i int) bool { return offs[i] >= bottom }) - 1
	if last < first {
		last = first
	}
	return Range{Start: max(0, first-overscan), End: min(n-1, last+overscan)}
}

// VirtualItems lays out the visible rows using measured-or-estimated sizes.
func (l *DynamicList) VirtualItems() []VirtualItem {
	offs, opts := l.prefix()
	r := dynamicRange(offs, opts, l.State().ScrollOffset)
	if r.IsEmpty() {
		return nil
	}
	items := make([]VirtualItem, 0, r.Len())
	for i := r.Start; i <= r.End; i++ {
		items = append(items, VirtualItem{
			Index: i,
			Start: offs[i],
			End:   offs[i+1],
			Size:  offs[i+1] - offs[i],
		})
	}
	return items
}

// ScrollToIndex clamps index, aligns it using current sizes and scrolls.
func (l *DynamicList) ScrollToIndex(index int, align Align) float64 {
	offs, opts := l.prefix()
	n := len(offs) - 1
	if n <= 0 {
		return 0
	}
	index = clampIndex(index, n)
	offset := alignedOffset(offs[index], offs[index+1]-offs[index], opts.ContainerHeight, align)
	l.scrollTo(offset)
	return offset
}
