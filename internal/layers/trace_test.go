package layers

import (
	"math"
	"testing"
)

func maskFromRows(rows [][]bool) *Mask {
	m := &Mask{
		Width:  len(rows[0]),
		Height: len(rows),
		Cells:  make([]bool, len(rows)*len(rows[0])),
	}
	for r, row := range rows {
		for c, v := range row {
			m.Cells[r*m.Width+c] = v
		}
	}
	return m
}

func isClosed(c Contour) bool {
	return len(c) >= 2 && c[0] == c[len(c)-1]
}

func containsPoint(c Contour, p Point) bool {
	for _, q := range c {
		if q == p {
			return true
		}
	}
	return false
}

func TestTraceSingleCell(t *testing.T) {
	m := maskFromRows([][]bool{
		{false, false, false},
		{false, true, false},
		{false, false, false},
	})
	contours := TraceBoundaries(m)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(contours))
	}
	c := contours[0]
	if !isClosed(c) {
		t.Error("contour should be closed")
	}
	if len(c) != 5 {
		t.Fatalf("got %d points, want 5 (diamond plus close)", len(c))
	}
	// edge midpoints around (1,1)
	for _, want := range []Point{{0.5, 1}, {1, 0.5}, {1, 1.5}, {1.5, 1}} {
		if !containsPoint(c, want) {
			t.Errorf("missing vertex %v in %v", want, c)
		}
	}
}

func TestTraceRectangle(t *testing.T) {
	m := maskFromRows([][]bool{
		{false, false, false, false},
		{false, true, true, false},
		{false, false, false, false},
	})
	contours := TraceBoundaries(m)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(contours))
	}
	c := contours[0]
	if !isClosed(c) {
		t.Error("contour should be closed")
	}
	// 2x1 block: six boundary vertices plus the closing point
	if len(c) != 7 {
		t.Errorf("got %d points, want 7", len(c))
	}
}

func TestTraceSaddleSplits(t *testing.T) {
	// Two land cells touching only at a corner trace as two separate
	// boundaries, not one figure-eight.
	m := maskFromRows([][]bool{
		{false, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, false},
	})
	contours := TraceBoundaries(m)
	if len(contours) != 2 {
		t.Fatalf("got %d contours, want 2", len(contours))
	}
	for i, c := range contours {
		if !isClosed(c) {
			t.Errorf("contour %d should be closed", i)
		}
		if len(c) != 5 {
			t.Errorf("contour %d has %d points, want 5", i, len(c))
		}
	}
}

func TestTraceRingWithHole(t *testing.T) {
	m := maskFromRows([][]bool{
		{false, false, false, false, false},
		{false, true, true, true, false},
		{false, true, false, true, false},
		{false, true, true, true, false},
		{false, false, false, false, false},
	})
	contours := TraceBoundaries(m)
	if len(contours) != 2 {
		t.Fatalf("got %d contours, want 2 (outer plus hole)", len(contours))
	}
}

func TestTraceDeterministic(t *testing.T) {
	m := maskFromRows([][]bool{
		{false, false, false, false, false},
		{false, true, false, true, false},
		{false, false, false, false, false},
	})
	first := TraceBoundaries(m)
	for i := 0; i < 10; i++ {
		again := TraceBoundaries(m)
		if len(again) != len(first) {
			t.Fatal("contour count changed between runs")
		}
		for j := range first {
			if len(again[j]) != len(first[j]) || again[j][0] != first[j][0] {
				t.Fatal("contour order changed between runs")
			}
		}
	}
}

func TestContourOffset(t *testing.T) {
	c := Contour{{1, 2}, {3, 4}}
	got := c.Offset(-1, -1)
	want := Contour{{0, 1}, {2, 3}}
	for i := range want {
		if math.Abs(got[i].Row-want[i].Row) > 1e-12 || math.Abs(got[i].Col-want[i].Col) > 1e-12 {
			t.Errorf("Offset[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
