// range.go - Windowed range math for fixed-size virtual lists.
// Pure functions: given the scroll position and sizes, decide which item
// indexes must be materialized. Invalid geometry degrades to an empty
// range, never to an error.
package virtual

import "math"

// Range is an inclusive index window [Start, End]. End < Start means empty.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EmptyRange is the canonical empty window.
var EmptyRange = Range{Start: 0, End: -1}

// IsEmpty reports whether the range holds no index.
func (r Range) IsEmpty() bool { return r.End < r.Start }

// Len returns the number of indexes in the range.
func (r Range) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether index i lies in the range.
func (r Range) Contains(i int) bool {
	return !r.IsEmpty() && i >= r.Start && i <= r.End
}

// VirtualItem is one materialized row: its index and pixel extent.
type VirtualItem struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Size  float64 `json:"size"`
}

// ComputeVisibleRange returns the indexes covering the viewport plus
// overscan items on both edges:
//
//	start = max(0, floor(offset/itemHeight) - overscan)
//	end   = min(itemCount-1, ceil((offset+containerHeight)/itemHeight) + overscan)
func ComputeVisibleRange(scrollOffset, itemHeight, containerHeight float64, itemCount, overscan int) Range {
	if itemCount <= 0 || !(itemHeight > 0) || !(containerHeight > 0) {
		return EmptyRange
	}
	if !(scrollOffset > 0) {
		scrollOffset = 0
	}
	if overscan < 0 {
		overscan = 0
	}

	first := int(math.Floor(scrollOffset / itemHeight))
	last := int(math.Ceil((scrollOffset + containerHeight) / itemHeight))

	start := max(0, first-overscan)
	end := min(itemCount-1, last+overscan)
	if start > itemCount-1 {
		// Scrolled past the end: keep the tail materialized.
		start = itemCount - 1
	}
	return Range{Start: start, End: end}
}

// Materialize lays out fixed-height items for r. Deterministic for a given
// range and height; a non-positive height yields no items.
func Materialize(r Range, itemHeight float64) []VirtualItem {
	if r.IsEmpty() || !(itemHeight > 0) {
		return nil
	}
	items := make([]VirtualItem, 0, r.Len())
	for i := r.Start; i <= r.End; i++ {
		start := float64(i) * itemHeight
		items = append(items, VirtualItem{
			Index: i,
			Start: start,
			End:   start + itemHeight,
			Size:  itemHeight,
		})
	}
	return items
}

// Align selects where scrollToIndex places the target item.
type Align string

const (
	AlignStart  Align = "start"
	AlignCenter Align = "center"
	AlignEnd    Align = "end"
)

// ParseAlign maps a user string to an Align, defaulting to AlignStart.
func ParseAlign(s string) Align {
	switch Align(s) {
	case AlignCenter:
		return AlignCenter
	case AlignEnd:
		return AlignEnd
	default:
		return AlignStart
	}
}

// alignedOffset positions an item of the given start and size inside the
// container. The result is never negative.
func alignedOffset(itemStart, itemSize, containerHeight float64, align Align) float64 {
	offset := itemStart
	switch align {
	case AlignCenter:
		offset = itemStart - containerHeight/2 + itemSize/2
	case AlignEnd:
		offset = itemStart - (containerHeight - itemSize)
	}
	if offset < 0 {
		return 0
	}
	return offset
}

// ScrollOffsetForIndex clamps index into [0, itemCount-1] and returns the
// scroll offset that aligns it. Returns 0 for an empty list.
func ScrollOffsetForIndex(index, itemCount int, itemHeight, containerHeight float64, align Align) float64 {
	if itemCount <= 0 || !(itemHeight > 0) {
		return 0
	}
	index = clampIndex(index, itemCount)
	return alignedOffset(float64(index)*itemHeight, itemHeight, containerHeight, align)
}

func clampIndex(index, itemCount int) int {
	if index < 0 {
		return 0
	}
	if index > itemCount-1 {
		return itemCount - 1
	}
	return index
}
