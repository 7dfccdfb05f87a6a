package mosaic

import (
	"fmt"

	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

// Mosaic is an assembled elevation raster with its geographic
// reference: the actual covered bounds and the implied per-pixel
// degree size. Row 0 is the northern edge.
type Mosaic struct {
	Grid   *terrain.Grid
	Bounds slippy.Bounds
}

// ErrEmpty is reported when an assembled or cropped mosaic contains no
// valid data at all.
type ErrEmpty struct{}

func (ErrEmpty) Error() string {
	return "mosaic contains no valid elevation data; check connectivity and confirm the region has coverage"
}

// Assemble pastes fetched tiles into one raster covering the tile
// rectangle. Tiles missing from the map leave their block as no-data.
// The mosaic bounds are the exact geographic extent of the tile
// rectangle, which is generally larger than whatever request produced
// it.
func Assemble(tileRange slippy.TileRange, fetched map[slippy.Tile]*terrain.Grid, tileSize int) *Mosaic {
	grid := terrain.NewGrid(tileRange.Width()*tileSize, tileRange.Height()*tileSize)

	for tile, data := range fetched {
		if tile.Z != tileRange.Z {
			continue
		}
		row := (tile.Y - tileRange.MinY) * tileSize
		col := (tile.X - tileRange.MinX) * tileSize
		grid.Paste(data, row, col)
	}

	return &Mosaic{
		Grid:   grid,
		Bounds: tileRange.Bounds(),
	}
}

// PixelSize returns the degree span of one pixel in each axis. Both
// values are positive; latitude decreases with increasing row.
func (m *Mosaic) PixelSize() (lonDeg, latDeg float64) {
	return m.Bounds.Width() / float64(m.Grid.Width),
		m.Bounds.Height() / float64(m.Grid.Height)
}

// PixelToLatLon converts fractional pixel coordinates to geographic
// degrees using the mosaic's linear geo-transform.
func (m *Mosaic) PixelToLatLon(row, col float64) (lat, lon float64) {
	lonDeg, latDeg := m.PixelSize()
	return m.Bounds.North - row*latDeg, m.Bounds.West + col*lonDeg
}

// Crop narrows the mosaic in place to the requested bounds. Edges are
// converted to pixel offsets by linear interpolation against the
// current bounds, clamped into range, and forced to span at least one
// pixel so a sub-pixel request still yields a raster. The bounds are
// then recomputed from the actual pixel offsets used, not reused from
// the request: the crop snaps to pixel edges.
func (m *Mosaic) Crop(request slippy.Bounds) {
	lonDeg, latDeg := m.PixelSize()

	colStart := int((request.West - m.Bounds.West) / lonDeg)
	colEnd := int((request.East - m.Bounds.West) / lonDeg)
	rowStart := int((m.Bounds.North - request.North) / latDeg)
	rowEnd := int((m.Bounds.North - request.South) / latDeg)

	// clamp against tile-boundary rounding, and never let the
	// result collapse to zero size
	if colStart < 0 {
		colStart = 0
	}
	if colStart > m.Grid.Width-1 {
		colStart = m.Grid.Width - 1
	}
	if colEnd < colStart+1 {
		colEnd = colStart + 1
	}
	if colEnd > m.Grid.Width {
		colEnd = m.Grid.Width
	}
	if rowStart < 0 {
		rowStart = 0
	}
	if rowStart > m.Grid.Height-1 {
		rowStart = m.Grid.Height - 1
	}
	if rowEnd < rowStart+1 {
		rowEnd = rowStart + 1
	}
	if rowEnd > m.Grid.Height {
		rowEnd = m.Grid.Height
	}

	m.Grid.Crop(rowStart, rowEnd, colStart, colEnd)

	west := m.Bounds.West + float64(colStart)*lonDeg
	north := m.Bounds.North - float64(rowStart)*latDeg
	m.Bounds = slippy.Bounds{
		West:  west,
		East:  west + float64(m.Grid.Width)*lonDeg,
		North: north,
		South: north - float64(m.Grid.Height)*latDeg,
	}
}

// Validate reports ErrEmpty when no pixel holds data.
func (m *Mosaic) Validate() error {
	if m.Grid.ValidCount() == 0 {
		return ErrEmpty{}
	}
	return nil
}

// Describe returns a short human-readable summary for logs.
func (m *Mosaic) Describe() string {
	min, max, ok := m.Grid.MinMax()
	if !ok {
		return fmt.Sprintf("%dx%dpx, empty", m.Grid.Width, m.Grid.Height)
	}
	return fmt.Sprintf("%dx%dpx, %.1fm to %.1fm", m.Grid.Width, m.Grid.Height, min, max)
}
