package layers

import (
	"context"
	"math"
	"testing"

	"github.com/cartolab/terrastack/internal/terrain"
)

// concentricGrid builds an 8x8 grid with three elevation plateaus: a
// rim at 1 m, a 6x6 shelf at 10 m and a 4x4 summit block at 20 m.
func concentricGrid() *terrain.Grid {
	g := terrain.NewGrid(8, 8)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			v := float32(1)
			if r >= 1 && r <= 6 && c >= 1 && c <= 6 {
				v = 10
			}
			if r >= 2 && r <= 5 && c >= 2 && c <= 5 {
				v = 20
			}
			g.Set(r, c, v)
		}
	}
	return g
}

func contourBBox(cs []Contour) (minRow, minCol, maxRow, maxCol float64) {
	minRow, minCol = math.Inf(1), math.Inf(1)
	maxRow, maxCol = math.Inf(-1), math.Inf(-1)
	for _, c := range cs {
		for _, p := range c {
			minRow = math.Min(minRow, p.Row)
			minCol = math.Min(minCol, p.Col)
			maxRow = math.Max(maxRow, p.Row)
			maxCol = math.Max(maxCol, p.Col)
		}
	}
	return
}

func TestNewPipelineErrors(t *testing.T) {
	g := concentricGrid()
	if _, err := NewPipeline(g, 0, nil, 0); err == nil {
		t.Error("zero interval should be rejected")
	}
	empty := terrain.NewGrid(3, 3)
	if _, err := NewPipeline(empty, 10, nil, 0); err == nil {
		t.Error("all no-data grid should be rejected")
	}
}

func TestPipelineLevels(t *testing.T) {
	p, err := NewPipeline(concentricGrid(), 10, nil, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 10, 20}
	levels := p.Levels()
	if len(levels) != len(want) {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
	for i, w := range want {
		if levels[i] != w {
			t.Errorf("levels[%d] = %f, want %f", i, levels[i], w)
		}
	}
	if !p.IsBaseLayer(0) {
		t.Error("level 0 should be the base layer")
	}
	if p.IsBaseLayer(10) {
		t.Error("level 10 should not be the base layer")
	}
}

func TestPipelineContoursNest(t *testing.T) {
	p, err := NewPipeline(concentricGrid(), 10, nil, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	boxes := make([][4]float64, 3)
	for i, level := range p.Levels() {
		cs := p.ContoursFor(level)
		if len(cs) != 1 {
			t.Fatalf("level %f: got %d contours, want 1", level, len(cs))
		}
		c := cs[0]
		if c[0] != c[len(c)-1] {
			t.Errorf("level %f: contour not closed", level)
		}
		minRow, minCol, maxRow, maxCol := contourBBox(cs)
		boxes[i] = [4]float64{minRow, minCol, maxRow, maxCol}
	}

	// each plateau outline sits strictly inside the one below
	for i := 1; i < len(boxes); i++ {
		if boxes[i][0] <= boxes[i-1][0] || boxes[i][1] <= boxes[i-1][1] ||
			boxes[i][2] >= boxes[i-1][2] || boxes[i][3] >= boxes[i-1][3] {
			t.Errorf("level %d outline %v not inside level %d outline %v",
				i, boxes[i], i-1, boxes[i-1])
		}
	}

	// outermost outline hugs the grid edge
	if boxes[0][0] != -0.5 || boxes[0][1] != -0.5 || boxes[0][2] != 7.5 || boxes[0][3] != 7.5 {
		t.Errorf("base outline bbox = %v, want -0.5..7.5", boxes[0])
	}
}

func TestPipelineMemoizes(t *testing.T) {
	p, err := NewPipeline(concentricGrid(), 10, nil, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	first := p.ContoursFor(10)
	second := p.ContoursFor(10)
	if len(first) == 0 || len(second) == 0 {
		t.Fatal("expected contours at level 10")
	}
	if &first[0][0] != &second[0][0] {
		t.Error("second lookup should return the cached contours")
	}
}

func TestPipelineLayerView(t *testing.T) {
	p, err := NewPipeline(concentricGrid(), 10, nil, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	base := p.Layer(0)
	if base.Index != 1 || base.Level != 0 || !base.IsBase {
		t.Errorf("base layer = %+v", base)
	}
	if len(base.Contours) == 0 || len(base.NextContours) == 0 || len(base.NextNextContours) == 0 {
		t.Error("base layer should carry its own, next and next-next contours")
	}

	mid := p.Layer(1)
	if mid.Index != 2 || mid.Level != 10 || mid.IsBase {
		t.Errorf("mid layer = %+v", mid)
	}
	if len(mid.NextContours) == 0 || mid.NextNextContours != nil {
		t.Errorf("mid layer neighbors = %d next, %v next-next",
			len(mid.NextContours), mid.NextNextContours)
	}

	top := p.Layer(2)
	if top.NextContours != nil || top.NextNextContours != nil {
		t.Error("top layer should have no neighbors above")
	}
}

func TestPipelinePrecompute(t *testing.T) {
	p, err := NewPipeline(concentricGrid(), 10, nil, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	var last int
	err = p.Precompute(context.Background(), 2, func(done, total int) {
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		last = done
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("final progress = %d, want 3", last)
	}
	for _, level := range p.Levels() {
		if len(p.ContoursFor(level)) == 0 {
			t.Errorf("level %f missing contours after precompute", level)
		}
	}
}

func TestExtractorDropsNoise(t *testing.T) {
	// A lone high cell traces a five-point diamond, below the noise
	// floor, so it must vanish from the output.
	g := terrain.NewGrid(5, 5)
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			g.Set(r, c, 1)
		}
	}
	g.Set(2, 2, 50)

	e := NewExtractor(g, 0.1)
	if got := e.Contours(40); len(got) != 0 {
		t.Errorf("single-cell ring should be dropped as noise, got %v", got)
	}
	if got := e.Contours(0); len(got) != 1 {
		t.Errorf("full outline should survive, got %d contours", len(got))
	}
}
