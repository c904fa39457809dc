// grid.go - Two-dimensional windowing and masonry placement.
package virtual

// GridParams describes a fixed-cell grid viewport.
type GridParams struct {
	ScrollTop      float64
	ScrollLeft     float64
	RowHeight      float64
	ColumnWidth    float64
	ViewportHeight float64
	ViewportWidth  float64
	RowCount       int
	ColumnCount    int
	Overscan       int
}

// GridRange is the row and column windows of a grid.
type GridRange struct {
	Rows    Range `json:"rows"`
	Columns Range `json:"columns"`
}

// IsEmpty reports whether no cell is visible.
func (g GridRange) IsEmpty() bool { return g.Rows.IsEmpty() || g.Columns.IsEmpty() }

// Cells returns the number of cells to materialize.
func (g GridRange) Cells() int { return g.Rows.Len() * g.Columns.Len() }

// ComputeGridRange applies ComputeVisibleRange independently per axis.
func ComputeGridRange(p GridParams) GridRange {
	return GridRange{
		Rows:    ComputeVisibleRange(p.ScrollTop, p.RowHeight, p.ViewportHeight, p.RowCount, p.Overscan),
		Columns: ComputeVisibleRange(p.ScrollLeft, p.ColumnWidth, p.ViewportWidth, p.ColumnCount, p.Overscan),
	}
}

// ============================================
// Masonry
// ============================================

// MasonryPosition is where one masonry tile is placed.
type MasonryPosition struct {
	Index  int     `json:"index"`
	Column int     `json:"column"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MasonryLayout is a complete placement plus the tallest column height.
type MasonryLayout struct {
	Positions []MasonryPosition `json:"positions"`
	Height    float64           `json:"height"`
}

// LayoutMasonry places each tile in the currently shortest column (lowest
// column index on ties). Every call recomputes all positions, O(n) per
// change; there is no incremental path for appended tiles.
func LayoutMasonry(heights []float64, columns int, columnWidth, gap float64) MasonryLayout {
	if columns <= 0 || !(columnWidth > 0) {
		return MasonryLayout{}
	}
	if gap < 0 {
		gap = 0
	}
	colHeights := make([]float64, columns)
	positions := make([]MasonryPosition, 0, len(heights))
	for i, h := range heights {
		if h < 0 {
			h = 0
		}
		col := 0
		for c := 1; c < columns; c++ {
			if colHeights[c] < colHeights[col] {
				col = c
			}
		}
		positions = append(positions, MasonryPosition{
			Index:  i,
			Column: col,
			X:      float64(col) * (columnWidth + gap),
			Y:      colHeights[col],
			Width:  columnWidth,
			Height: h,
		})
		colHeights[col] += h + gap
	}

	tallest := 0.0
	for _, ch := range colHeights {
		tallest = max(tallest, ch)
	}
	if tallest > 0 {
		// No gap below the last tile.
		tallest -= gap
	}
	return MasonryLayout{Positions: positions, Height: tallest}
}
