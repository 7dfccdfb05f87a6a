package terrain

import "math"

// Grid is a row-major elevation raster. Cells hold an elevation in
// meters or NaN for no-data. Float32 matches tile precision (0.01 m
// steps) at half the memory of float64, which matters for large
// mosaics.
type Grid struct {
	Width  int
	Height int
	Data   []float32
}

// NewGrid allocates a grid with every cell set to no-data.
func NewGrid(width, height int) *Grid {
	data := make([]float32, width*height)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &Grid{Width: width, Height: height, Data: data}
}

// At returns the elevation at (row, col).
func (g *Grid) At(row, col int) float32 {
	return g.Data[row*g.Width+col]
}

// Set writes the elevation at (row, col).
func (g *Grid) Set(row, col int, v float32) {
	g.Data[row*g.Width+col] = v
}

// Valid reports whether the cell at (row, col) holds real data.
func (g *Grid) Valid(row, col int) bool {
	return !math.IsNaN(float64(g.Data[row*g.Width+col]))
}

// ValidCount returns the number of cells holding real data.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(float64(v)) {
			n++
		}
	}
	return n
}

// MinMax returns the smallest and largest valid elevations. ok is
// false when the grid holds no data at all.
func (g *Grid) MinMax() (min, max float64, ok bool) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		f := float64(v)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
		ok = true
	}
	return min, max, ok
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	data := make([]float32, len(g.Data))
	copy(data, g.Data)
	return &Grid{Width: g.Width, Height: g.Height, Data: data}
}

// Paste copies src into g with its top-left cell at (row, col).
// Cells falling outside g are ignored.
func (g *Grid) Paste(src *Grid, row, col int) {
	for r := 0; r < src.Height; r++ {
		dr := row + r
		if dr < 0 || dr >= g.Height {
			continue
		}
		for c := 0; c < src.Width; c++ {
			dc := col + c
			if dc < 0 || dc >= g.Width {
				continue
			}
			g.Data[dr*g.Width+dc] = src.Data[r*src.Width+c]
		}
	}
}

// Crop narrows the grid in place to rows [rowStart, rowEnd) and
// columns [colStart, colEnd).
func (g *Grid) Crop(rowStart, rowEnd, colStart, colEnd int) {
	width := colEnd - colStart
	height := rowEnd - rowStart
	data := make([]float32, width*height)
	for r := 0; r < height; r++ {
		copy(data[r*width:(r+1)*width],
			g.Data[(rowStart+r)*g.Width+colStart:(rowStart+r)*g.Width+colEnd])
	}
	g.Width = width
	g.Height = height
	g.Data = data
}
