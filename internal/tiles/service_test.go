package tiles

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

const testTileSize = 4

// encodeTilePNG builds a tile image from elevations, NaN meaning the
// no-data pixel (128, 0, 0).
func encodeTilePNG(t *testing.T, elevations []float64) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, testTileSize, testTileSize))
	for i, e := range elevations {
		var x uint32
		if math.IsNaN(e) {
			x = 8388608
		} else if e >= 0 {
			x = uint32(math.Round(e / 0.01))
		} else {
			x = uint32(math.Round(e/0.01 + 16777216))
		}
		img.Set(i%testTileSize, i/testTileSize, color.NRGBA{
			R: uint8(x >> 16), G: uint8(x >> 8), B: uint8(x), A: 255,
		})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// flat returns a tile filled with one value.
func flat(v float64) []float64 {
	e := make([]float64, testTileSize*testTileSize)
	for i := range e {
		e[i] = v
	}
	return e
}

// testServer serves per-source tiles and counts requests by source ID.
func testServer(t *testing.T, bodies map[string][]byte, counts map[string]*atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		src := parts[0]
		if c, ok := counts[src]; ok {
			c.Add(1)
		}
		body, ok := bodies[src]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == nil {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(body)
	}))
}

func newTestService(t *testing.T, serverURL string) *Service {
	t.Helper()
	set := DefaultSourceSet()
	set.BaseURL = serverURL
	svc, err := NewService(set, t.TempDir(), WithTileSize(testTileSize),
		WithFetcher(NewFetcher(set).WithRetryPolicy(1, 0)))
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestCompositePriorityUnion(t *testing.T) {
	nan := math.NaN()
	// three sources with disjoint no-data patterns; cell 0 is covered
	// by all three and must take the highest-priority value
	a := []float64{10, 11, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan}
	b := []float64{20, nan, 22, 23, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan}
	c := flat(30)

	bodies := map[string][]byte{
		"dem5a_png": encodeTilePNG(t, a),
		"dem5b_png": encodeTilePNG(t, b),
		"dem_png":   encodeTilePNG(t, c),
	}
	server := testServer(t, bodies, nil)
	defer server.Close()

	svc := newTestService(t, server.URL)
	grid := svc.GetTile(context.Background(), slippy.Tile{Z: 14, X: 1, Y: 2})

	want := []float64{10, 11, 22, 23}
	for i, w := range want {
		if got := float64(grid.Data[i]); math.Abs(got-w) > 1e-3 {
			t.Errorf("cell %d = %f, want %f", i, got, w)
		}
	}
	// everything else fell through to the lowest-priority source
	for i := 4; i < testTileSize*testTileSize; i++ {
		if got := float64(grid.Data[i]); math.Abs(got-30) > 1e-3 {
			t.Errorf("cell %d = %f, want 30", i, got)
		}
	}
}

func TestCompositeStopsOnceFull(t *testing.T) {
	counts := map[string]*atomic.Int64{
		"dem5a_png": {}, "dem5b_png": {}, "dem_png": {},
	}
	bodies := map[string][]byte{
		"dem5a_png": encodeTilePNG(t, flat(100)),
		"dem5b_png": encodeTilePNG(t, flat(200)),
		"dem_png":   encodeTilePNG(t, flat(300)),
	}
	server := testServer(t, bodies, counts)
	defer server.Close()

	svc := newTestService(t, server.URL)
	grid := svc.GetTile(context.Background(), slippy.Tile{Z: 14, X: 0, Y: 0})

	for i := range grid.Data {
		if math.Abs(float64(grid.Data[i])-100) > 1e-3 {
			t.Fatalf("cell %d = %f, want 100", i, grid.Data[i])
		}
	}
	if got := counts["dem5b_png"].Load() + counts["dem_png"].Load(); got != 0 {
		t.Errorf("lower-priority sources were queried %d times after full coverage", got)
	}
}

func TestAllSourcesFailingYieldsNoDataTile(t *testing.T) {
	server := testServer(t, map[string][]byte{
		"dem5a_png": nil, "dem5b_png": nil, "dem_png": nil, // all 500
	}, nil)
	defer server.Close()

	svc := newTestService(t, server.URL)
	grid := svc.GetTile(context.Background(), slippy.Tile{Z: 14, X: 0, Y: 0})
	if grid.ValidCount() != 0 {
		t.Errorf("expected all no-data, got %d valid cells", grid.ValidCount())
	}
}

func TestFetcherRetryPolicy(t *testing.T) {
	counts := map[string]*atomic.Int64{"dem5a_png": {}}
	server := testServer(t, map[string][]byte{"dem5a_png": nil}, counts)
	defer server.Close()

	set := DefaultSourceSet()
	set.BaseURL = server.URL
	fetcher := NewFetcher(set).WithRetryPolicy(2, 0)

	_, err := fetcher.FetchTile(context.Background(), set.Sources[0], slippy.Tile{Z: 14, X: 0, Y: 0})
	if err == nil {
		t.Fatal("expected an error from a persistently failing source")
	}
	if got := counts["dem5a_png"].Load(); got != 3 {
		t.Errorf("source hit %d times, want 3 (one try plus two retries)", got)
	}
}

func TestDiskCacheSkipsNetwork(t *testing.T) {
	counts := map[string]*atomic.Int64{"dem5a_png": {}}
	bodies := map[string][]byte{"dem5a_png": encodeTilePNG(t, flat(7))}
	server := testServer(t, bodies, counts)
	defer server.Close()

	set := DefaultSourceSet()
	set.BaseURL = server.URL
	cacheDir := t.TempDir()

	tile := slippy.Tile{Z: 14, X: 3, Y: 4}

	svc1, err := NewService(set, cacheDir, WithTileSize(testTileSize))
	if err != nil {
		t.Fatal(err)
	}
	svc1.GetTile(context.Background(), tile)
	fetched := counts["dem5a_png"].Load()
	if fetched == 0 {
		t.Fatal("first request did not reach the network")
	}

	// fresh service, same cache dir: must not touch the network
	svc2, err := NewService(set, cacheDir, WithTileSize(testTileSize))
	if err != nil {
		t.Fatal(err)
	}
	grid := svc2.GetTile(context.Background(), tile)
	if counts["dem5a_png"].Load() != fetched {
		t.Error("cached request hit the network")
	}
	if math.Abs(float64(grid.At(0, 0))-7) > 1e-3 {
		t.Errorf("cached grid corrupt: %f", grid.At(0, 0))
	}
}

func TestCorruptCacheEntryIsAMiss(t *testing.T) {
	bodies := map[string][]byte{"dem5a_png": encodeTilePNG(t, flat(9))}
	server := testServer(t, bodies, nil)
	defer server.Close()

	set := DefaultSourceSet()
	set.BaseURL = server.URL
	cacheDir := t.TempDir()
	tile := slippy.Tile{Z: 5, X: 1, Y: 1}

	// plant garbage where the cache entry would live
	cache := NewCache(cacheDir)
	path := cache.Path(tile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewService(set, cacheDir, WithTileSize(testTileSize))
	if err != nil {
		t.Fatal(err)
	}
	grid := svc.GetTile(context.Background(), tile)
	if math.Abs(float64(grid.At(0, 0))-9) > 1e-3 {
		t.Errorf("corrupt cache was not refetched: %f", grid.At(0, 0))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(t.TempDir())
	tile := slippy.Tile{Z: 2, X: 1, Y: 3}

	grid := terrain.NewGrid(testTileSize, testTileSize)
	grid.Set(0, 0, 12.34)
	grid.Set(3, 3, -56.78)

	if err := cache.Put(tile, grid); err != nil {
		t.Fatal(err)
	}
	got, ok := cache.Get(tile)
	if !ok {
		t.Fatal("fresh entry not found")
	}
	if got.At(0, 0) != grid.At(0, 0) || got.At(3, 3) != grid.At(3, 3) {
		t.Error("cells did not round trip")
	}
	if got.Valid(1, 1) {
		t.Error("no-data cell did not round trip")
	}
}

func TestFetchAllIsTotal(t *testing.T) {
	bodies := map[string][]byte{
		"dem5a_png": nil, "dem5b_png": nil, "dem_png": nil,
	}
	server := testServer(t, bodies, nil)
	defer server.Close()

	svc := newTestService(t, server.URL)

	var tileList []slippy.Tile
	for x := 0; x < 3; x++ {
		for y := 0; y < 2; y++ {
			tileList = append(tileList, slippy.Tile{Z: 10, X: x, Y: y})
		}
	}

	var progress atomic.Int64
	results := svc.FetchAll(context.Background(), tileList, 4, func(done, total int) {
		progress.Add(1)
	})

	if len(results) != len(tileList) {
		t.Fatalf("result map has %d entries, want %d", len(results), len(tileList))
	}
	for _, tile := range tileList {
		grid, ok := results[tile]
		if !ok {
			t.Fatalf("missing entry for %s", tile)
		}
		if grid.ValidCount() != 0 {
			t.Errorf("%s: expected no-data grid", tile)
		}
	}
	if progress.Load() != int64(len(tileList)) {
		t.Errorf("progress called %d times, want %d", progress.Load(), len(tileList))
	}
}

func TestSourceSetURL(t *testing.T) {
	set := DefaultSourceSet()
	got := set.URL(set.Sources[0], slippy.Tile{Z: 14, X: 14547, Y: 6328})
	want := "https://cyberjapandata.gsi.go.jp/xyz/dem5a_png/14/14547/6328.png"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestLoadSourceSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `base_url: https://tiles.example.com/xyz
extension: .png
sources:
  - id: high
  - id: low
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := LoadSourceSet(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Sources) != 2 || set.Sources[0].ID != "high" {
		t.Errorf("unexpected source set: %+v", set)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("base_url: ''\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSourceSet(bad); err == nil {
		t.Error("expected validation error for empty base_url")
	}
}
