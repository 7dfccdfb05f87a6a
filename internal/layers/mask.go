package layers

import (
	"github.com/cartolab/terrastack/internal/terrain"
)

// Mask is a boolean grid marking the cells belonging to one cumulative
// silhouette: valid data at or above the layer's threshold.
type Mask struct {
	Width  int
	Height int
	Cells  []bool
}

// NewMask builds the threshold mask for a level. By construction the
// mask for a higher level is a subset of any lower level's mask.
func NewMask(g *terrain.Grid, level float64) *Mask {
	m := &Mask{
		Width:  g.Width,
		Height: g.Height,
		Cells:  make([]bool, g.Width*g.Height),
	}
	for i, v := range g.Data {
		m.Cells[i] = !isNaN32(v) && float64(v) >= level
	}
	return m
}

func isNaN32(v float32) bool { return v != v }

// At returns the cell at (row, col).
func (m *Mask) At(row, col int) bool {
	return m.Cells[row*m.Width+col]
}

// FillHoles reclassifies as land every false region that cannot reach
// the grid border. An enclosed basin surrounded by qualifying land
// would otherwise punch a floating hole through a physically stacked
// layer. Sea stays excluded as long as it touches the border; a basin
// bisected exactly at the crop edge counts as open sea, which is the
// inherited border-relative rule.
func (m *Mask) FillHoles() {
	if m.Width == 0 || m.Height == 0 {
		return
	}

	reachable := make([]bool, len(m.Cells))
	queue := make([]int, 0, 2*(m.Width+m.Height))

	push := func(row, col int) {
		i := row*m.Width + col
		if !m.Cells[i] && !reachable[i] {
			reachable[i] = true
			queue = append(queue, i)
		}
	}

	for col := 0; col < m.Width; col++ {
		push(0, col)
		push(m.Height-1, col)
	}
	for row := 0; row < m.Height; row++ {
		push(row, 0)
		push(row, m.Width-1)
	}

	// 4-connected flood fill from the border
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		row, col := i/m.Width, i%m.Width
		if row > 0 {
			push(row-1, col)
		}
		if row < m.Height-1 {
			push(row+1, col)
		}
		if col > 0 {
			push(row, col-1)
		}
		if col < m.Width-1 {
			push(row, col+1)
		}
	}

	for i := range m.Cells {
		if !m.Cells[i] && !reachable[i] {
			m.Cells[i] = true
		}
	}
}

// Pad returns a copy of the mask with a one-cell false margin on all
// sides, so every boundary the tracer sees is interior to the grid.
func (m *Mask) Pad() *Mask {
	p := &Mask{
		Width:  m.Width + 2,
		Height: m.Height + 2,
		Cells:  make([]bool, (m.Width+2)*(m.Height+2)),
	}
	for row := 0; row < m.Height; row++ {
		copy(p.Cells[(row+1)*p.Width+1:(row+1)*p.Width+1+m.Width],
			m.Cells[row*m.Width:(row+1)*m.Width])
	}
	return p
}

// IsSubsetOf reports whether every set cell of m is also set in other.
func (m *Mask) IsSubsetOf(other *Mask) bool {
	if m.Width != other.Width || m.Height != other.Height {
		return false
	}
	for i, v := range m.Cells {
		if v && !other.Cells[i] {
			return false
		}
	}
	return true
}
