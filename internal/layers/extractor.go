package layers

import (
	"github.com/cartolab/terrastack/internal/terrain"
)

// Default extraction parameters, in raster pixels.
const (
	// DefaultTolerance is the simplification tolerance. It must stay
	// well below the minimum feature size or simplified neighbors in
	// the stack can cross.
	DefaultTolerance = 1.5
	// minTraceVertices rejects tiny traced rings as noise before
	// simplification.
	minTraceVertices = 10
	// minSimplifyInput matches the pre-simplification floor of the
	// extraction: shorter rings cannot survive as polygons.
	minSimplifyInput = 4
)

// Extractor produces the simplified silhouette outlines for elevation
// levels of a single, already-finalized elevation grid. It holds no
// mutable state, so extractions for different levels can run
// concurrently.
type Extractor struct {
	grid      *terrain.Grid
	tolerance float64
}

// NewExtractor creates an extractor over a grid with the given
// simplification tolerance in pixels.
func NewExtractor(grid *terrain.Grid, tolerance float64) *Extractor {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Extractor{grid: grid, tolerance: tolerance}
}

// Mask returns the hole-filled cumulative silhouette mask for a level.
func (e *Extractor) Mask(level float64) *Mask {
	mask := NewMask(e.grid, level)
	mask.FillHoles()
	return mask
}

// Contours extracts the closed, simplified outlines of everything at
// or above the level. Rings too short to mean anything are dropped
// silently; they are noise, not errors.
func (e *Extractor) Contours(level float64) []Contour {
	padded := e.Mask(level).Pad()

	var out []Contour
	for _, traced := range TraceBoundaries(padded) {
		if len(traced) < minTraceVertices {
			continue
		}
		contour := traced.Offset(-1, -1) // undo the pad
		if len(contour) < minSimplifyInput {
			continue
		}
		simplified := Simplify(contour, e.tolerance)
		if len(simplified) >= 3 {
			out = append(out, simplified)
		}
	}
	return out
}
