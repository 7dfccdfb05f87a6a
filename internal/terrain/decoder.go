package terrain

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/jpeg"
	_ "image/png"
)

// Elevation tile pixel encoding. Each pixel packs a 24-bit value
// x = R*65536 + G*256 + B which decodes, in this order, to:
//
//	x == noDataValue          -> no-data
//	x <  noDataValue          -> x * 0.01 m
//	x >  noDataValue          -> (x - 1<<24) * 0.01 m
//
// The contract is bit-exact for all 2^24 values of x.
const (
	noDataValue = 8388608 // 1 << 23, RGB (128, 0, 0)
	valueWrap   = 16777216
	resolution  = 0.01
)

// DecodeElevation converts the pixel value x to meters, or NaN for the
// no-data marker.
func DecodeElevation(x uint32) float32 {
	switch {
	case x == noDataValue:
		return float32(math.NaN())
	case x < noDataValue:
		return float32(float64(x) * resolution)
	default:
		return float32((float64(x) - valueWrap) * resolution)
	}
}

// DecodeTile decodes an RGB elevation tile image into a grid. Any
// registered image format is accepted; pixels are read through the
// color model so palette and NRGBA tiles decode identically.
func DecodeTile(data []byte) (*Grid, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile image: %w", err)
	}

	b := img.Bounds()
	grid := NewGrid(b.Dx(), b.Dy())
	for row := 0; row < b.Dy(); row++ {
		for col := 0; col < b.Dx(); col++ {
			r, g, bl, _ := img.At(b.Min.X+col, b.Min.Y+row).RGBA()
			// RGBA returns 16-bit channels; the tile encoding uses the
			// high 8 bits of each
			x := (r>>8)<<16 | (g>>8)<<8 | bl>>8
			grid.Set(row, col, DecodeElevation(x))
		}
	}
	return grid, nil
}
