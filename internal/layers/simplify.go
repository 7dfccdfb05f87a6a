package layers

import "math"

// Simplify reduces a polyline with the Ramer-Douglas-Peucker
// algorithm: the vertex farthest from the chord between the endpoints
// either splits the run (when it deviates more than epsilon) or the
// whole run collapses to its two endpoints. Pure function; safe to run
// concurrently over independent contours.
func Simplify(points Contour, epsilon float64) Contour {
	if len(points) < 3 {
		return points
	}

	start, end := points[0], points[len(points)-1]
	chordRow := end.Row - start.Row
	chordCol := end.Col - start.Col
	chordLen := math.Hypot(chordRow, chordCol)

	maxDist := -1.0
	maxIdx := 0
	for i, p := range points {
		var d float64
		if chordLen == 0 {
			// closed chord: fall back to point distance
			d = math.Hypot(p.Row-start.Row, p.Col-start.Col)
		} else {
			d = math.Abs(chordRow*(start.Col-p.Col)-chordCol*(start.Row-p.Row)) / chordLen
		}
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > epsilon {
		left := Simplify(points[:maxIdx+1], epsilon)
		right := Simplify(points[maxIdx:], epsilon)
		// drop the shared split point from the left half
		out := make(Contour, 0, len(left)+len(right)-1)
		out = append(out, left[:len(left)-1]...)
		out = append(out, right...)
		return out
	}
	return Contour{start, end}
}
