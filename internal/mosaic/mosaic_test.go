package mosaic

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

const testTileSize = 8

func tileGrid(v float32) *terrain.Grid {
	g := terrain.NewGrid(testTileSize, testTileSize)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

func testMosaic(t *testing.T) *Mosaic {
	t.Helper()
	r, err := slippy.BoundsToTileRange(slippy.NewBounds(37.81, 37.87, 139.59, 139.69), 14)
	if err != nil {
		t.Fatal(err)
	}
	fetched := make(map[slippy.Tile]*terrain.Grid)
	for i, tile := range r.Tiles() {
		fetched[tile] = tileGrid(float32(100 + i))
	}
	return Assemble(r, fetched, testTileSize)
}

func TestAssembleDimensionsAndBounds(t *testing.T) {
	r, _ := slippy.BoundsToTileRange(slippy.NewBounds(37.81, 37.87, 139.59, 139.69), 14)
	m := testMosaic(t)

	if m.Grid.Width != r.Width()*testTileSize || m.Grid.Height != r.Height()*testTileSize {
		t.Fatalf("mosaic size %dx%d, want %dx%d",
			m.Grid.Width, m.Grid.Height, r.Width()*testTileSize, r.Height()*testTileSize)
	}
	// a tile-aligned mosaic always contains the original request
	if !m.Bounds.Contains(slippy.NewBounds(37.81, 37.87, 139.59, 139.69)) {
		t.Errorf("mosaic bounds %+v do not contain the request", m.Bounds)
	}
	if m.Grid.ValidCount() != m.Grid.Width*m.Grid.Height {
		t.Errorf("fully fetched mosaic has gaps")
	}
}

func TestAssembleMissingTileLeavesGap(t *testing.T) {
	r, _ := slippy.BoundsToTileRange(slippy.NewBounds(37.81, 37.87, 139.59, 139.69), 14)
	fetched := make(map[slippy.Tile]*terrain.Grid)
	tiles := r.Tiles()
	for _, tile := range tiles[1:] { // drop the first tile
		fetched[tile] = tileGrid(5)
	}
	m := Assemble(r, fetched, testTileSize)

	want := m.Grid.Width*m.Grid.Height - testTileSize*testTileSize
	if got := m.Grid.ValidCount(); got != want {
		t.Errorf("valid count %d, want %d", got, want)
	}
	// the gap is the north-west tile block
	if m.Grid.Valid(0, 0) {
		t.Error("missing tile block holds data")
	}
	if !m.Grid.Valid(0, testTileSize) {
		t.Error("fetched tile block holds no data")
	}
}

func TestCropContainment(t *testing.T) {
	m := testMosaic(t)
	pre := m.Bounds
	request := slippy.NewBounds(37.81, 37.87, 139.59, 139.69)

	m.Crop(request)

	if !pre.Contains(m.Bounds) {
		t.Errorf("cropped bounds %+v escape the mosaic bounds %+v", m.Bounds, pre)
	}
	if m.Grid.Width < 1 || m.Grid.Height < 1 {
		t.Fatalf("degenerate crop %dx%d", m.Grid.Width, m.Grid.Height)
	}
	// the crop snaps outward by less than one pixel on each edge
	lonDeg, latDeg := m.PixelSize()
	if m.Bounds.West > request.West || m.Bounds.West < request.West-lonDeg {
		t.Errorf("west edge %f not within one pixel of %f", m.Bounds.West, request.West)
	}
	if m.Bounds.North < request.North || m.Bounds.North > request.North+latDeg {
		t.Errorf("north edge %f not within one pixel of %f", m.Bounds.North, request.North)
	}
}

func TestCropSubPixelRequestStillYieldsAPixel(t *testing.T) {
	m := testMosaic(t)
	lat := (m.Bounds.South + m.Bounds.North) / 2
	lon := (m.Bounds.West + m.Bounds.East) / 2
	m.Crop(slippy.NewBounds(lat, lat+1e-9, lon, lon+1e-9))

	if m.Grid.Width != 1 || m.Grid.Height != 1 {
		t.Errorf("sub-pixel crop produced %dx%d, want 1x1", m.Grid.Width, m.Grid.Height)
	}
}

func TestCropRecomputesBoundsFromPixels(t *testing.T) {
	m := testMosaic(t)
	lonDeg, latDeg := m.PixelSize()
	request := slippy.NewBounds(37.82, 37.86, 139.60, 139.68)
	m.Crop(request)

	// bounds must describe exactly the pixels kept
	wantWidth := m.Bounds.Width() / lonDeg
	wantHeight := m.Bounds.Height() / latDeg
	if math.Abs(wantWidth-float64(m.Grid.Width)) > 1e-6 {
		t.Errorf("bounds width %f px, grid width %d", wantWidth, m.Grid.Width)
	}
	if math.Abs(wantHeight-float64(m.Grid.Height)) > 1e-6 {
		t.Errorf("bounds height %f px, grid height %d", wantHeight, m.Grid.Height)
	}
}

func TestValidateEmptyMosaic(t *testing.T) {
	r, _ := slippy.BoundsToTileRange(slippy.NewBounds(37.81, 37.87, 139.59, 139.69), 14)
	m := Assemble(r, nil, testTileSize)
	if err := m.Validate(); err == nil {
		t.Fatal("empty mosaic validated")
	}
	m2 := testMosaic(t)
	if err := m2.Validate(); err != nil {
		t.Fatalf("full mosaic failed validation: %v", err)
	}
}

func TestGeoTIFFRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "uncompressed"
		if compress {
			name = "deflate"
		}
		t.Run(name, func(t *testing.T) {
			m := testMosaic(t)
			m.Crop(slippy.NewBounds(37.81, 37.87, 139.59, 139.69))
			m.Grid.Set(2, 3, float32(math.NaN())) // a nodata cell

			path := filepath.Join(t.TempDir(), "dem.tif")
			if err := WriteGeoTIFF(path, m, compress); err != nil {
				t.Fatal(err)
			}

			got, err := ReadGeoTIFF(path)
			if err != nil {
				t.Fatal(err)
			}
			if got.Grid.Width != m.Grid.Width || got.Grid.Height != m.Grid.Height {
				t.Fatalf("size %dx%d, want %dx%d",
					got.Grid.Width, got.Grid.Height, m.Grid.Width, m.Grid.Height)
			}
			for i := range m.Grid.Data {
				a, b := m.Grid.Data[i], got.Grid.Data[i]
				if math.IsNaN(float64(a)) != math.IsNaN(float64(b)) {
					t.Fatalf("cell %d nodata mismatch", i)
				}
				if !math.IsNaN(float64(a)) && a != b {
					t.Fatalf("cell %d = %f, want %f", i, b, a)
				}
			}
			for _, d := range []float64{
				got.Bounds.West - m.Bounds.West,
				got.Bounds.East - m.Bounds.East,
				got.Bounds.North - m.Bounds.North,
				got.Bounds.South - m.Bounds.South,
			} {
				if math.Abs(d) > 1e-9 {
					t.Fatalf("bounds drifted by %g", d)
				}
			}
		})
	}
}

func TestReadGeoTIFFRejectsGarbage(t *testing.T) {
	if _, err := decodeGeoTIFF([]byte("MM not a tiff")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPixelToLatLon(t *testing.T) {
	m := testMosaic(t)
	lat, lon := m.PixelToLatLon(0, 0)
	if lat != m.Bounds.North || lon != m.Bounds.West {
		t.Errorf("pixel (0,0) = (%f, %f), want NW corner (%f, %f)",
			lat, lon, m.Bounds.North, m.Bounds.West)
	}
	lat, lon = m.PixelToLatLon(float64(m.Grid.Height), float64(m.Grid.Width))
	if math.Abs(lat-m.Bounds.South) > 1e-12 || math.Abs(lon-m.Bounds.East) > 1e-12 {
		t.Errorf("pixel (H,W) = (%f, %f), want SE corner (%f, %f)",
			lat, lon, m.Bounds.South, m.Bounds.East)
	}
}
