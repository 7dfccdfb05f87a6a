package layers

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PixelToLatLon converts fractional raster coordinates to geographic
// degrees; the mosaic's geo-transform satisfies it.
type PixelToLatLon func(row, col float64) (lat, lon float64)

// FeatureCollection georeferences one level's contours into a GeoJSON
// feature collection. Each contour becomes a single-ring polygon with
// the level recorded as a property.
func FeatureCollection(level float64, contours []Contour, transform PixelToLatLon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, contour := range contours {
		ring := make(orb.Ring, 0, len(contour)+1)
		for _, p := range contour {
			lat, lon := transform(p.Row, p.Col)
			ring = append(ring, orb.Point{lon, lat})
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		feature := geojson.NewFeature(orb.Polygon{ring})
		feature.Properties["level"] = level
		fc.Append(feature)
	}
	return fc
}

// WriteGeoJSON writes one level's georeferenced contours to path.
func WriteGeoJSON(path string, level float64, contours []Contour, transform PixelToLatLon) error {
	fc := FeatureCollection(level, contours, transform)
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal level %.0f contours: %w", level, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
