package layers

import "math"

// Sequence is the ordered set of elevation thresholds for a layered
// model. Index 0 is the lowest, broadest layer; the last is the
// narrowest, near the peak. Each level stands for the cumulative
// silhouette of all terrain at or above it.
type Sequence struct {
	Levels        []float64
	Interval      float64
	EffectiveBase float64
}

// NewSequence derives the level sequence from the raster's elevation
// range. When base is nil the base elevation snaps down to a multiple
// of the interval. A negative computed base means sea-level pixels
// leaked into the raster; 0 m is the floor for a land model, so the
// base clamps there. The epsilon on the upper bound keeps the true top
// level from being lost to floating-point rounding.
func NewSequence(minElev, maxElev, interval float64, base *float64) Sequence {
	baseElev := math.Floor(minElev/interval) * interval
	if base != nil {
		baseElev = *base
	}
	effectiveBase := math.Max(0, baseElev)

	var levels []float64
	for v := effectiveBase; v <= maxElev+interval*0.01; v += interval {
		levels = append(levels, v)
	}

	return Sequence{
		Levels:        levels,
		Interval:      interval,
		EffectiveBase: effectiveBase,
	}
}

// IsBase reports whether a level is the base layer, which gets a
// distinct background treatment when rendered.
func (s Sequence) IsBase(level float64) bool {
	return level <= s.EffectiveBase+0.01
}

// Next returns the level after the given one, in ascending order.
// ok is false past the top.
func (s Sequence) Next(level float64) (float64, bool) {
	for i, v := range s.Levels {
		if v == level && i+1 < len(s.Levels) {
			return s.Levels[i+1], true
		}
	}
	return 0, false
}
