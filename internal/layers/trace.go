package layers

import "sort"

// Point is one vertex of a contour, in fractional (row, col) raster
// coordinates.
type Point struct {
	Row float64
	Col float64
}

// Contour is a closed polygon in raster-pixel space. The first and
// last point coincide.
type Contour []Point

// Boundary tracing by marching squares at the half-level isocontour of
// a binary mask. Crossings on a 0/1 field always interpolate to edge
// midpoints, so vertices land on half-integer coordinates. Diagonal
// saddles resolve as disconnected ("low" connectivity): two diagonal
// land cells touching at a corner trace as two separate boundaries.

// vertex is a contour vertex with coordinates doubled, which keeps map
// keys exact integers.
type vertex struct {
	row2 int
	col2 int
}

func (v vertex) point() Point {
	return Point{Row: float64(v.row2) / 2, Col: float64(v.col2) / 2}
}

type segment struct {
	a, b vertex
}

// cellSegments returns the boundary segments crossing one 2x2 cell
// whose top-left lattice point is (r, c).
func cellSegments(tl, tr, br, bl bool, r, c int) []segment {
	top := vertex{2 * r, 2*c + 1}
	bottom := vertex{2*r + 2, 2*c + 1}
	left := vertex{2*r + 1, 2 * c}
	right := vertex{2*r + 1, 2*c + 2}

	idx := 0
	if tl {
		idx |= 8
	}
	if tr {
		idx |= 4
	}
	if br {
		idx |= 2
	}
	if bl {
		idx |= 1
	}

	switch idx {
	case 1:
		return []segment{{bottom, left}}
	case 2:
		return []segment{{right, bottom}}
	case 3:
		return []segment{{right, left}}
	case 4:
		return []segment{{top, right}}
	case 5: // saddle
		return []segment{{top, right}, {bottom, left}}
	case 6:
		return []segment{{top, bottom}}
	case 7:
		return []segment{{top, left}}
	case 8:
		return []segment{{left, top}}
	case 9:
		return []segment{{top, bottom}}
	case 10: // saddle
		return []segment{{left, top}, {right, bottom}}
	case 11:
		return []segment{{top, right}}
	case 12:
		return []segment{{left, right}}
	case 13:
		return []segment{{right, bottom}}
	case 14:
		return []segment{{bottom, left}}
	default: // 0, 15
		return nil
	}
}

// TraceBoundaries extracts every closed boundary polyline of the mask.
// The caller is expected to pass a padded mask so no boundary touches
// the grid edge.
func TraceBoundaries(m *Mask) []Contour {
	// adjacency: every boundary vertex has exactly two neighbors
	type link struct {
		n    [2]vertex
		deg  int
		used bool
	}
	adj := make(map[vertex]*link)

	connect := func(a, b vertex) {
		la := adj[a]
		if la == nil {
			la = &link{}
			adj[a] = la
		}
		if la.deg < 2 {
			la.n[la.deg] = b
		}
		la.deg++
	}

	for r := 0; r < m.Height-1; r++ {
		for c := 0; c < m.Width-1; c++ {
			segs := cellSegments(m.At(r, c), m.At(r, c+1), m.At(r+1, c+1), m.At(r+1, c), r, c)
			for _, s := range segs {
				connect(s.a, s.b)
				connect(s.b, s.a)
			}
		}
	}

	// deterministic output order regardless of map iteration
	starts := make([]vertex, 0, len(adj))
	for v := range adj {
		starts = append(starts, v)
	}
	sort.Slice(starts, func(i, j int) bool {
		if starts[i].row2 != starts[j].row2 {
			return starts[i].row2 < starts[j].row2
		}
		return starts[i].col2 < starts[j].col2
	})

	var contours []Contour
	for _, start := range starts {
		l := adj[start]
		if l.used || l.deg != 2 {
			continue
		}

		contour := Contour{start.point()}
		prev := start
		cur := l.n[0]
		l.used = true

		for cur != start {
			cl := adj[cur]
			if cl == nil || cl.deg != 2 {
				break // degenerate geometry, drop silently
			}
			cl.used = true
			contour = append(contour, cur.point())
			next := cl.n[0]
			if next == prev {
				next = cl.n[1]
			}
			prev, cur = cur, next
		}
		if cur != start {
			continue
		}
		contour = append(contour, start.point()) // close the ring
		contours = append(contours, contour)
	}
	return contours
}

// Offset translates every vertex by (dRow, dCol), used to undo the
// padding applied before tracing.
func (c Contour) Offset(dRow, dCol float64) Contour {
	out := make(Contour, len(c))
	for i, p := range c {
		out[i] = Point{Row: p.Row + dRow, Col: p.Col + dCol}
	}
	return out
}
