package terrain

import "math"

// NormalizeNoData rewrites sentinel cells as no-data: the raster's
// declared nodata value, plus anything at or below -9000 m, which is a
// de facto nodata convention (-9999, -32768) even when the metadata
// does not say so.
func NormalizeNoData(g *Grid, nodata *float64) {
	nan := float32(math.NaN())
	for i, v := range g.Data {
		f := float64(v)
		if nodata != nil && f == *nodata {
			g.Data[i] = nan
			continue
		}
		if f <= -9000 {
			g.Data[i] = nan
		}
	}
}

// MaskSea marks every cell below sea level as no-data. Sea surface is
// irrelevant to a land model; residual negative cells only contaminate
// the base level computation. Returns the number of cells masked.
func MaskSea(g *Grid) int {
	nan := float32(math.NaN())
	masked := 0
	for i, v := range g.Data {
		if !math.IsNaN(float64(v)) && v < 0 {
			g.Data[i] = nan
			masked++
		}
	}
	return masked
}

// ClipRange marks cells outside [min, max] as no-data. Either bound
// may be nil.
func ClipRange(g *Grid, min, max *float64) {
	nan := float32(math.NaN())
	for i, v := range g.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		f := float64(v)
		if min != nil && f < *min {
			g.Data[i] = nan
		} else if max != nil && f > *max {
			g.Data[i] = nan
		}
	}
}

// Downsample resamples the grid by the given scale factor using
// bilinear interpolation. A factor of 0.5 halves each dimension.
// No-data cells contribute nothing; an output cell with less than half
// its interpolation weight on valid input becomes no-data, so coastal
// edges do not bleed artificial elevations.
func Downsample(g *Grid, factor float64) *Grid {
	if factor == 1.0 {
		return g
	}
	outW := int(math.Round(float64(g.Width) * factor))
	outH := int(math.Round(float64(g.Height) * factor))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	out := NewGrid(outW, outH)
	scaleR := 1.0
	if outH > 1 {
		scaleR = float64(g.Height-1) / float64(outH-1)
	}
	scaleC := 1.0
	if outW > 1 {
		scaleC = float64(g.Width-1) / float64(outW-1)
	}

	for r := 0; r < outH; r++ {
		srcR := float64(r) * scaleR
		r0 := int(srcR)
		r1 := r0 + 1
		if r1 >= g.Height {
			r1 = g.Height - 1
		}
		dr := srcR - float64(r0)
		for c := 0; c < outW; c++ {
			srcC := float64(c) * scaleC
			c0 := int(srcC)
			c1 := c0 + 1
			if c1 >= g.Width {
				c1 = g.Width - 1
			}
			dc := srcC - float64(c0)

			samples := [4]float32{
				g.At(r0, c0), g.At(r0, c1),
				g.At(r1, c0), g.At(r1, c1),
			}
			weights := [4]float64{
				(1 - dr) * (1 - dc), (1 - dr) * dc,
				dr * (1 - dc), dr * dc,
			}

			sum, weight := 0.0, 0.0
			for i, s := range samples {
				if math.IsNaN(float64(s)) {
					continue
				}
				sum += float64(s) * weights[i]
				weight += weights[i]
			}
			if weight >= 0.5 {
				out.Set(r, c, float32(sum/weight))
			}
		}
	}
	return out
}

// SmoothGaussian applies a separable gaussian blur with the given
// sigma. No-data cells are treated as zero during convolution and
// restored afterwards, which smooths over tile-boundary steps without
// growing or shrinking the no-data region.
func SmoothGaussian(g *Grid, sigma float64) *Grid {
	if sigma <= 0 {
		return g
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	// NaN -> 0 working copy
	src := make([]float64, len(g.Data))
	for i, v := range g.Data {
		if !math.IsNaN(float64(v)) {
			src[i] = float64(v)
		}
	}

	// horizontal pass
	tmp := make([]float64, len(src))
	for r := 0; r < g.Height; r++ {
		base := r * g.Width
		for c := 0; c < g.Width; c++ {
			sum := 0.0
			for k, w := range kernel {
				cc := reflectIndex(c+k-radius, g.Width)
				sum += src[base+cc] * w
			}
			tmp[base+c] = sum
		}
	}

	// vertical pass
	out := g.Clone()
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			if !g.Valid(r, c) {
				continue
			}
			sum := 0.0
			for k, w := range kernel {
				rr := reflectIndex(r+k-radius, g.Height)
				sum += tmp[rr*g.Width+c] * w
			}
			out.Set(r, c, float32(sum))
		}
	}
	return out
}

// gaussianKernel returns a normalized 1D kernel truncated at 4 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflectIndex mirrors an out-of-range index back into [0, n).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
