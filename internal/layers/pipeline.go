package layers

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cartolab/terrastack/internal/terrain"
)

// Pipeline derives the level sequence for a grid and serves each
// level's contours from a per-level cache, so a renderer can look up a
// layer plus its next and next-next neighbors (alignment guides and
// ink-reduction overlays) without recomputation.
type Pipeline struct {
	seq       Sequence
	extractor *Extractor

	mu    sync.Mutex
	cache map[float64][]Contour
}

// NewPipeline builds a pipeline over an already-preprocessed grid.
// The grid must hold at least one valid cell.
func NewPipeline(grid *terrain.Grid, interval float64, base *float64, tolerance float64) (*Pipeline, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("contour interval must be positive, got %f", interval)
	}
	minElev, maxElev, ok := grid.MinMax()
	if !ok {
		return nil, fmt.Errorf("grid contains no valid elevation data")
	}

	return &Pipeline{
		seq:       NewSequence(minElev, maxElev, interval, base),
		extractor: NewExtractor(grid, tolerance),
		cache:     make(map[float64][]Contour),
	}, nil
}

// Levels returns the ascending level sequence.
func (p *Pipeline) Levels() []float64 {
	return p.seq.Levels
}

// Sequence returns the underlying level sequence.
func (p *Pipeline) Sequence() Sequence {
	return p.seq
}

// IsBaseLayer reports whether the level is the stack's base layer.
func (p *Pipeline) IsBaseLayer(level float64) bool {
	return p.seq.IsBase(level)
}

// ContoursFor returns the simplified contours for a level, computing
// them on first access.
func (p *Pipeline) ContoursFor(level float64) []Contour {
	p.mu.Lock()
	if contours, ok := p.cache[level]; ok {
		p.mu.Unlock()
		return contours
	}
	p.mu.Unlock()

	contours := p.extractor.Contours(level)

	p.mu.Lock()
	p.cache[level] = contours
	p.mu.Unlock()
	return contours
}

// MaskFor returns the hole-filled silhouette mask for a level. Masks
// are cheap relative to tracing and are not cached.
func (p *Pipeline) MaskFor(level float64) *Mask {
	return p.extractor.Mask(level)
}

// Precompute fills the contour cache for every level over a bounded
// worker pool. Levels share only the read-only grid, so they
// parallelize freely. The nil error return keeps the signature honest:
// extraction cannot fail, only produce empty layers.
func (p *Pipeline) Precompute(ctx context.Context, workers int, onProgress func(done, total int)) error {
	if workers < 1 {
		workers = 1
	}

	var done int
	var progressMu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, level := range p.seq.Levels {
		g.Go(func() error {
			p.ContoursFor(level)
			if onProgress != nil {
				progressMu.Lock()
				done++
				d := done
				progressMu.Unlock()
				onProgress(d, len(p.seq.Levels))
			}
			return nil
		})
	}
	return g.Wait()
}

// Layer bundles everything a renderer needs for one sheet of the
// stack.
type Layer struct {
	Index    int // 1-based position from the bottom
	Level    float64
	IsBase   bool
	Contours []Contour
	// Outlines of the next and next-next layers, for alignment
	// guides and ink reduction. Nil near the top of the stack.
	NextContours     []Contour
	NextNextContours []Contour
}

// Layer assembles the render view of the i-th level (0-based).
func (p *Pipeline) Layer(i int) Layer {
	levels := p.seq.Levels
	layer := Layer{
		Index:    i + 1,
		Level:    levels[i],
		IsBase:   p.IsBaseLayer(levels[i]),
		Contours: p.ContoursFor(levels[i]),
	}
	if i+1 < len(levels) {
		layer.NextContours = p.ContoursFor(levels[i+1])
	}
	if i+2 < len(levels) {
		layer.NextNextContours = p.ContoursFor(levels[i+2])
	}
	return layer
}
