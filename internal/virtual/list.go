// list.go - Fixed-height virtual list bound to a scroll container.
package virtual

import (
	"sync"
	"time"
)

// Options configures a FixedList.
type Options struct {
	ItemCount       int
	ItemHeight      float64
	ContainerHeight float64
	Overscan        int
	// ScrollingResetDelay overrides the 150ms isScrolling debounce.
	ScrollingResetDelay time.Duration
}

// FixedList virtualizes a list whose rows all have ItemHeight.
type FixedList struct {
	scroller

	optsMu sync.RWMutex
	opts   Options
}

// NewFixedList creates an unattached list.
func NewFixedList(opts Options) *FixedList {
	l := &FixedList{opts: opts}
	l.scroller.init(opts.ScrollingResetDelay)
	return l
}

// Attach binds the list to c. Call with nil or Detach on unmount.
func (l *FixedList) Attach(c ScrollContainer) { l.attach(c) }

// Detach unregisters the scroll listener and cancels pending timers.
func (l *FixedList) Detach() { l.detach() }

// Attached reports whether a scroll listener is currently registered.
func (l *FixedList) Attached() bool { return l.attached() }

// HandleScroll feeds a scroll event without a container (server-side use).
func (l *FixedList) HandleScroll(offset float64) { l.handleScroll(offset) }

// State returns the current scroll state.
func (l *FixedList) State() State { return l.snapshot() }

// SetItemCount updates the number of rows.
func (l *FixedList) SetItemCount(n int) {
	l.optsMu.Lock()
	defer l.optsMu.Unlock()
	l.opts.ItemCount = n
}

// SetContainerHeight updates the viewport height.
func (l *FixedList) SetContainerHeight(h float64) {
	l.optsMu.Lock()
	defer l.optsMu.Unlock()
	l.opts.ContainerHeight = h
}

func (l *FixedList) options() Options {
	l.optsMu.RLock()
	defer l.optsMu.RUnlock()
	return l.opts
}

// Range returns the index window for the current scroll offset.
func (l *FixedList) Range() Range {
	o := l.options()
	return ComputeVisibleRange(l.State().ScrollOffset, o.ItemHeight, o.ContainerHeight, o.ItemCount, o.Overscan)
}

// VirtualItems returns the rows to render. Invalid geometry yields none.
func (l *FixedList) VirtualItems() []VirtualItem {
	return Materialize(l.Range(), l.options().ItemHeight)
}

// TotalSize is the full scrollable extent.
func (l *FixedList) TotalSize() float64 {
	o := l.options()
	if o.ItemCount <= 0 || !(o.ItemHeight > 0) {
		return 0
	}
	return float64(o.ItemCount) * o.ItemHeight
}

// ScrollToIndex clamps index, aligns it and scrolls there. Returns the
// resulting offset (0 for an empty list).
func (l *FixedList) ScrollToIndex(index int, align Align) float64 {
	o := l.options()
	if o.ItemCount <= 0 {
		return 0
	}
	offset := ScrollOffsetForIndex(index, o.ItemCount, o.ItemHeight, o.ContainerHeight, align)
	l.scrollTo(offset)
	return offset
}
