package slippy

import (
	"fmt"
	"math"
)

// Web Mercator constants
const (
	// Maximum latitude representable in the Web Mercator projection
	MaxLat = 85.0511287798
	// Minimum latitude representable in the Web Mercator projection
	MinLat = -85.0511287798

	// TileSize is the pixel dimension of a standard slippy map tile
	TileSize = 256
)

// Tile addresses one cell of the global power-of-two tile pyramid
type Tile struct {
	Z int // Zoom level
	X int // X coordinate (column)
	Y int // Y coordinate (row)
}

// String returns the tile in z/x/y format
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Bounds represents a geographic bounding box in degrees
type Bounds struct {
	South, North float64
	West, East   float64
}

// NewBounds builds a bounds from two corners in any order. Inverted
// ranges are reordered rather than rejected.
func NewBounds(lat1, lat2, lon1, lon2 float64) Bounds {
	return Bounds{
		South: math.Min(lat1, lat2),
		North: math.Max(lat1, lat2),
		West:  math.Min(lon1, lon2),
		East:  math.Max(lon1, lon2),
	}
}

// Width returns the longitude span in degrees.
func (b Bounds) Width() float64 { return b.East - b.West }

// Height returns the latitude span in degrees.
func (b Bounds) Height() float64 { return b.North - b.South }

// Contains reports whether other lies entirely within b.
func (b Bounds) Contains(other Bounds) bool {
	return other.South >= b.South && other.North <= b.North &&
		other.West >= b.West && other.East <= b.East
}

// checkLat rejects latitudes at or beyond the Mercator singularity.
func checkLat(lat float64) error {
	if lat <= MinLat || lat >= MaxLat {
		return fmt.Errorf("latitude %f outside Web Mercator range (%f, %f)", lat, MinLat, MaxLat)
	}
	return nil
}

// LatLonToTile converts latitude/longitude to integer tile coordinates
// at a given zoom level, using the standard OSM/Google tile scheme.
// Latitudes outside the Mercator band are an error, not a clamp: a
// caller asking for the poles gets nonsense from tan(lat).
func LatLonToTile(lat, lon float64, zoom int) (Tile, error) {
	if err := checkLat(lat); err != nil {
		return Tile{}, err
	}

	fx, fy := LatLonToTileFrac(lat, lon, zoom)

	n := 1 << zoom
	x := int(math.Floor(fx))
	y := int(math.Floor(fy))
	if x >= n {
		x = n - 1
	}
	if x < 0 {
		x = 0
	}
	if y >= n {
		y = n - 1
	}
	if y < 0 {
		y = 0
	}

	return Tile{Z: zoom, X: x, Y: y}, nil
}

// LatLonToTileFrac returns fractional tile coordinates, used for
// sub-tile pixel positioning when cropping a tile mosaic.
func LatLonToTileFrac(lat, lon float64, zoom int) (x, y float64) {
	n := float64(int(1) << zoom)
	latRad := lat * math.Pi / 180.0
	x = (lon + 180.0) / 360.0 * n
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}

// TileToLatLon returns the latitude/longitude of the north-west corner
// of the tile. It is the algebraic inverse of LatLonToTileFrac.
func TileToLatLon(x, y, zoom int) (lat, lon float64) {
	n := float64(int(1) << zoom)
	lon = float64(x)/n*360.0 - 180.0
	lat = math.Atan(math.Sinh(math.Pi*(1.0-2.0*float64(y)/n))) * 180.0 / math.Pi
	return lat, lon
}

// TileRange is a rectangle of tiles at one zoom level
type TileRange struct {
	Z          int
	MinX, MaxX int
	MinY, MaxY int
}

// BoundsToTileRange converts a bounding box to the covering tile
// rectangle at a given zoom level.
// Note: in tile coordinates Y increases downward (north to south).
func BoundsToTileRange(bounds Bounds, zoom int) (TileRange, error) {
	topLeft, err := LatLonToTile(bounds.North, bounds.West, zoom)
	if err != nil {
		return TileRange{}, err
	}
	bottomRight, err := LatLonToTile(bounds.South, bounds.East, zoom)
	if err != nil {
		return TileRange{}, err
	}

	return TileRange{
		Z:    zoom,
		MinX: topLeft.X,
		MaxX: bottomRight.X,
		MinY: topLeft.Y, // Northern tiles have smaller Y
		MaxY: bottomRight.Y,
	}, nil
}

// TileCount returns the number of tiles in the range
func (r TileRange) TileCount() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Width returns the number of tile columns.
func (r TileRange) Width() int { return r.MaxX - r.MinX + 1 }

// Height returns the number of tile rows.
func (r TileRange) Height() int { return r.MaxY - r.MinY + 1 }

// Tiles returns all tiles in the range, row-major from the north-west.
func (r TileRange) Tiles() []Tile {
	tiles := make([]Tile, 0, r.TileCount())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			tiles = append(tiles, Tile{Z: r.Z, X: x, Y: y})
		}
	}
	return tiles
}

// Bounds returns the exact geographic extent of the tile rectangle,
// computed from the corner tiles. This is generally larger than the
// bounds the range was derived from, since tiles snap to a fixed grid.
func (r TileRange) Bounds() Bounds {
	north, west := TileToLatLon(r.MinX, r.MinY, r.Z)
	south, east := TileToLatLon(r.MaxX+1, r.MaxY+1, r.Z)
	return Bounds{South: south, North: north, West: west, East: east}
}
