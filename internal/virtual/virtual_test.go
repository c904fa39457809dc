// virtual_test.go - Tests for windowed range math, scroll binding and
// dynamic row measurement.
package virtual

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Range math
// ============================================

func TestComputeVisibleRange_DocumentedScenario(t *testing.T) {
	t.Parallel()
	r := ComputeVisibleRange(2000, 40, 400, 1000, 0)
	assert.Equal(t, Range{Start: 50, End: 60}, r)

	r = ComputeVisibleRange(2000, 40, 400, 1000, 5)
	assert.Equal(t, Range{Start: 45, End: 65}, r)
}

func TestComputeVisibleRange_Degenerate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name               string
		offset, item, cont float64
		count, overscan    int
	}{
		{"no items", 0, 40, 400, 0, 3},
		{"zero item height", 0, 0, 400, 10, 3},
		{"negative item height", 0, -5, 400, 10, 3},
		{"zero container", 0, 40, 0, 10, 3},
		{"NaN item height", 0, math.NaN(), 400, 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeVisibleRange(tt.offset, tt.item, tt.cont, tt.count, tt.overscan)
			assert.True(t, r.IsEmpty())
			assert.Nil(t, Materialize(r, tt.item))
		})
	}
}

func TestComputeVisibleRange_EdgesClamp(t *testing.T) {
	t.Parallel()
	r := ComputeVisibleRange(0, 40, 400, 1000, 5)
	assert.Equal(t, 0, r.Start)
	assert.Equal(t, 15, r.End)

	r = ComputeVisibleRange(40*1000, 40, 400, 1000, 5)
	assert.Equal(t, 999, r.End)
	assert.LessOrEqual(t, r.Start, r.End)

	r = ComputeVisibleRange(-100, 40, 400, 3, -2)
	assert.Equal(t, Range{Start: 0, End: 2}, r)
}

func TestComputeVisibleRange_CoverageProperty(t *testing.T) {
	t.Parallel()
	heights := []float64{1, 7.5, 40, 333}
	containers := []float64{1, 100, 399.5, 2000}
	counts := []int{1, 2, 17, 1000}
	overscans := []int{0, 1, 5}

	for _, h := range heights {
		for _, c := range containers {
			for _, n := range counts {
				for _, o := range overscans {
					total := float64(n) * h
					for step := 0; step <= 20; step++ {
						offset := total * float64(step) / 20
						r := ComputeVisibleRange(offset, h, c, n, o)
						require.False(t, r.IsEmpty())

						first := int(math.Floor(offset / h))
						last := min(n-1, int(math.Ceil((offset+c)/h)))
						assert.LessOrEqual(t, r.Start, first, "h=%v c=%v n=%d o=%d off=%v", h, c, n, o, offset)
						assert.GreaterOrEqual(t, r.End, last, "h=%v c=%v n=%d o=%d off=%v", h, c, n, o, offset)
						assert.GreaterOrEqual(t, r.Start, 0)
						assert.LessOrEqual(t, r.End, n-1)
					}
				}
			}
		}
	}
}

func TestMaterializeFixedHeight(t *testing.T) {
	t.Parallel()
	items := Materialize(Range{Start: 3, End: 5}, 20)
	require.Len(t, items, 3)
	assert.Equal(t, VirtualItem{Index: 3, Start: 60, End: 80, Size: 20}, items[0])
	assert.Equal(t, VirtualItem{Index: 5, Start: 100, End: 120, Size: 20}, items[2])
	assert.Equal(t, items, Materialize(Range{Start: 3, End: 5}, 20))
}

func TestScrollOffsetForIndexAlignment(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 400.0, ScrollOffsetForIndex(10, 100, 40, 400, AlignStart))
	assert.Equal(t, 400.0-200+20, ScrollOffsetForIndex(10, 100, 40, 400, AlignCenter))
	assert.Equal(t, 400.0-(400-40), ScrollOffsetForIndex(10, 100, 40, 400, AlignEnd))

	// Clamped and never negative.
	assert.Equal(t, 0.0, ScrollOffsetForIndex(-5, 100, 40, 400, AlignStart))
	assert.Equal(t, 0.0, ScrollOffsetForIndex(1, 100, 40, 400, AlignEnd))
	assert.Equal(t, 99*40.0, ScrollOffsetForIndex(5000, 100, 40, 400, AlignStart))
	// Only the lower bound is clamped; the container clamps past-end offsets.
	assert.Equal(t, 99*40.0-200+20, ScrollOffsetForIndex(99, 100, 40, 400, AlignCenter))
	assert.True(t, ComputeVisibleRange(99*40.0-200+20, 40, 400, 100, 0).Contains(99))
	assert.Equal(t, 0.0, ScrollOffsetForIndex(3, 0, 40, 400, AlignStart))
}

func TestScrollToIndexThenRangeIncludesIndex(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 7, 1000} {
		for _, h := range []float64{10, 40, 55.5} {
			l := NewFixedList(Options{ItemCount: n, ItemHeight: h, ContainerHeight: 300, Overscan: 0})
			for i := -2; i < n+2; i += max(1, n/13) {
				l.ScrollToIndex(i, AlignStart)
				want := clampIndex(i, n)
				assert.True(t, l.Range().Contains(want), "n=%d h=%v i=%d range=%+v", n, h, i, l.Range())
			}
		}
	}
}

func TestParseAlign(t *testing.T) {
	t.Parallel()
	assert.Equal(t, AlignCenter, ParseAlign("center"))
	assert.Equal(t, AlignEnd, ParseAlign("end"))
	assert.Equal(t, AlignStart, ParseAlign("bogus"))
}

// ============================================
// Scroll container binding
// ============================================

type fakeContainer struct {
	mu        sync.Mutex
	listeners map[int]func(float64)
	nextID    int
	scrolled  []float64
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{listeners: make(map[int]func(float64))}
}

func (c *fakeContainer) OnScroll(fn func(float64)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *fakeContainer) ScrollTo(offset float64) {
	c.mu.Lock()
	c.scrolled = append(c.scrolled, offset)
	c.mu.Unlock()
	c.fire(offset)
}

func (c *fakeContainer) fire(offset float64) {
	c.mu.Lock()
	fns := make([]func(float64), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(offset)
	}
}

func (c *fakeContainer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func TestFixedListRegistersOneListenerPerContainer(t *testing.T) {
	t.Parallel()
	a, b := newFakeContainer(), newFakeContainer()
	l := NewFixedList(Options{ItemCount: 100, ItemHeight: 10, ContainerHeight: 50})

	l.Attach(a)
	l.Attach(a)
	assert.Equal(t, 1, a.count())
	assert.True(t, l.Attached())

	l.Attach(b)
	assert.Equal(t, 0, a.count(), "old container listener leaked")
	assert.Equal(t, 1, b.count())

	b.fire(200)
	assert.Equal(t, 200.0, l.State().ScrollOffset)
	assert.Equal(t, 20, l.VirtualItems()[0].Index)

	a.fire(999)
	assert.Equal(t, 200.0, l.State().ScrollOffset, "detached container still drives the list")

	l.Detach()
	assert.Equal(t, 0, b.count())
	assert.False(t, l.Attached())
}

func TestFixedListScrollingFlagDebounces(t *testing.T) {
	t.Parallel()
	l := NewFixedList(Options{ItemCount: 10, ItemHeight: 10, ContainerHeight: 50, ScrollingResetDelay: 100 * time.Millisecond})

	l.HandleScroll(5)
	assert.True(t, l.State().IsScrolling)
	time.Sleep(60 * time.Millisecond)
	l.HandleScroll(6)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.State().IsScrolling, "reset fired before the debounce window after the last event")

	require.Eventually(t, func() bool { return !l.State().IsScrolling }, time.Second, 5*time.Millisecond)
}

func TestFixedListScrollToIndexDrivesContainer(t *testing.T) {
	t.Parallel()
	c := newFakeContainer()
	l := NewFixedList(Options{ItemCount: 50, ItemHeight: 20, ContainerHeight: 100})
	l.Attach(c)
	defer l.Detach()

	off := l.ScrollToIndex(10, AlignStart)
	assert.Equal(t, 200.0, off)
	assert.Equal(t, []float64{200}, c.scrolled)
	assert.Equal(t, 200.0, l.State().ScrollOffset)
	assert.Equal(t, 1000.0, l.TotalSize())
}

func TestFixedListEmptyAndResized(t *testing.T) {
	t.Parallel()
	l := NewFixedList(Options{ItemCount: 0, ItemHeight: 20, ContainerHeight: 100})
	assert.Nil(t, l.VirtualItems())
	assert.Equal(t, 0.0, l.ScrollToIndex(3, AlignCenter))

	l.SetItemCount(10)
	l.SetContainerHeight(40)
	assert.Equal(t, Range{Start: 0, End: 2}, l.Range())
}

// ============================================
// Dynamic list
// ============================================

func TestDynamicListUsesEstimatesUntilMeasured(t *testing.T) {
	t.Parallel()
	l := NewDynamicList(DynamicOptions{
		ItemCount:          100,
		ContainerHeight:    100,
		EstimateItemHeight: func(int) float64 { return 20 },
	})
	assert.Equal(t, 2000.0, l.TotalSize())
	assert.Equal(t, Range{Start: 0, End: 4}, l.Range())

	l.MeasureItem(0, 60)
	l.MeasureItem(1, 60)
	assert.Equal(t, 2000.0+80, l.TotalSize())
	assert.Equal(t, 2, l.Measured())
	assert.Equal(t, Range{Start: 0, End: 1}, l.Range())

	items := l.VirtualItems()
	require.Len(t, items, 2)
	assert.Equal(t, VirtualItem{Index: 1, Start: 60, End: 120, Size: 60}, items[1])

	// Invalid measurements are ignored.
	l.MeasureItem(-1, 10)
	l.MeasureItem(500, 10)
	l.MeasureItem(3, 0)
	assert.Equal(t, 2, l.Measured())
}

func TestDynamicListDefaultEstimateAndOverscan(t *testing.T) {
	t.Parallel()
	l := NewDynamicList(DynamicOptions{ItemCount: 10, ContainerHeight: 100, Overscan: 2})
	assert.Equal(t, DefaultEstimatedItemHeight, l.EstimateItemHeight(3))

	l.HandleScroll(250)
	r := l.Range()
	assert.Equal(t, Range{Start: 3, End: 8}, r)
}

func TestDynamicListScrollToIndex(t *testing.T) {
	t.Parallel()
	l := NewDynamicList(DynamicOptions{
		ItemCount:          10,
		ContainerHeight:    100,
		EstimateItemHeight: func(i int) float64 { return float64(10 * (i + 1)) },
	})
	// offsets: 0,10,30,60,100,150...
	assert.Equal(t, 100.0, l.ScrollToIndex(4, AlignStart))
	assert.True(t, l.Range().Contains(4))
	assert.Equal(t, 100.0+25-50, l.ScrollToIndex(4, AlignCenter))
	assert.Equal(t, 0.0, l.ScrollToIndex(-3, AlignEnd))

	l.SetItemCount(0)
	assert.Equal(t, 0.0, l.ScrollToIndex(2, AlignStart))
	assert.Nil(t, l.VirtualItems())
}

// ============================================
// Grid + masonry
// ============================================

func TestComputeGridRange(t *testing.T) {
	t.Parallel()
	g := ComputeGridRange(GridParams{
		ScrollTop: 100, ScrollLeft: 0,
		RowHeight: 50, ColumnWidth: 100,
		ViewportHeight: 200, ViewportWidth: 300,
		RowCount: 100, ColumnCount: 10,
		Overscan: 1,
	})
	assert.Equal(t, Range{Start: 1, End: 7}, g.Rows)
	assert.Equal(t, Range{Start: 0, End: 4}, g.Columns)
	assert.Equal(t, 35, g.Cells())

	assert.True(t, ComputeGridRange(GridParams{RowHeight: 1, ColumnWidth: 1}).IsEmpty())
}

func TestLayoutMasonryShortestColumn(t *testing.T) {
	t.Parallel()
	layout := LayoutMasonry([]float64{100, 50, 30, 40}, 2, 200, 10)
	require.Len(t, layout.Positions, 4)

	assert.Equal(t, 0, layout.Positions[0].Column)
	assert.Equal(t, 1, layout.Positions[1].Column)
	assert.Equal(t, 210.0, layout.Positions[1].X)
	// Column 1 is at 60, column 0 at 110.
	assert.Equal(t, 1, layout.Positions[2].Column)
	assert.Equal(t, 60.0, layout.Positions[2].Y)
	// Column 1 now at 100, column 0 at 110.
	assert.Equal(t, 1, layout.Positions[3].Column)
	assert.Equal(t, 100.0, layout.Positions[3].Y)
	assert.Equal(t, 140.0, layout.Height)

	assert.Empty(t, LayoutMasonry([]float64{1}, 0, 10, 0).Positions)
}
