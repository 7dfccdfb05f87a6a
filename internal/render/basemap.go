package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cartolab/terrastack/internal/logger"
	"github.com/cartolab/terrastack/internal/slippy"
)

// DefaultBasemapURL serves the GSI standard map, the usual reference
// imagery for Japanese terrain.
const DefaultBasemapURL = "https://cyberjapandata.gsi.go.jp/xyz/std/{z}/{x}/{y}.png"

const basemapMaxZoom = 17

// Basemap fetches a reference-map tile mosaic covering the model's
// bounds and crops it to those exact bounds, so its pixels line up
// with the contour coordinates. The cropped image is cached on first
// use and every layer sheet reuses it.
type Basemap struct {
	urlTemplate string
	client      *http.Client
	userAgent   string
	workers     int

	mu     sync.Mutex
	cached image.Image
}

// NewBasemap creates a basemap accessor. An empty urlTemplate selects
// the GSI standard map.
func NewBasemap(urlTemplate string) *Basemap {
	if urlTemplate == "" {
		urlTemplate = DefaultBasemapURL
	}
	return &Basemap{
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: 12 * time.Second},
		userAgent:   "terrastack/1.0",
		workers:     8,
	}
}

// Image returns the basemap mosaic cropped to bounds. demWidth sets
// the zoom: the mosaic resolves at least as finely as the elevation
// raster, one zoom step finer when the cap allows.
func (b *Basemap) Image(ctx context.Context, bounds slippy.Bounds, demWidth int) (image.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil {
		return b.cached, nil
	}

	zoom := pickBasemapZoom(bounds, demWidth)
	tileRange, err := slippy.BoundsToTileRange(bounds, zoom)
	if err != nil {
		return nil, fmt.Errorf("failed to compute basemap tile range: %w", err)
	}

	log := logger.Get()
	log.Info("Fetching basemap mosaic",
		zap.Int("zoom", zoom),
		zap.Int("tiles", tileRange.TileCount()))

	mosaic := image.NewRGBA(image.Rect(0, 0,
		tileRange.Width()*slippy.TileSize, tileRange.Height()*slippy.TileSize))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, tile := range tileRange.Tiles() {
		g.Go(func() error {
			img, err := b.fetchTile(gctx, tile)
			if err != nil {
				// a hole in the backdrop beats a dead run
				log.Warn("Basemap tile failed, leaving blank",
					zap.String("tile", tile.String()),
					zap.Error(err))
				return nil
			}
			if img == nil {
				return nil
			}
			x := (tile.X - tileRange.MinX) * slippy.TileSize
			y := (tile.Y - tileRange.MinY) * slippy.TileSize
			rect := image.Rect(x, y, x+slippy.TileSize, y+slippy.TileSize)
			xdraw.Draw(mosaic, rect, img, img.Bounds().Min, xdraw.Src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.cached = cropToBounds(mosaic, tileRange, bounds, zoom)
	return b.cached, nil
}

// fetchTile downloads and decodes one basemap tile. A 404 means no
// coverage and returns a nil image.
func (b *Basemap) fetchTile(ctx context.Context, tile slippy.Tile) (image.Image, error) {
	url := strings.NewReplacer(
		"{z}", fmt.Sprint(tile.Z),
		"{x}", fmt.Sprint(tile.X),
		"{y}", fmt.Sprint(tile.Y),
	).Replace(b.urlTemplate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode basemap tile: %w", err)
	}
	return img, nil
}

// pickBasemapZoom finds the lowest zoom whose tile resolution meets
// the raster's, then goes one step finer for print quality.
func pickBasemapZoom(bounds slippy.Bounds, demWidth int) int {
	latCenter := (bounds.North + bounds.South) / 2
	cosLat := math.Cos(latCenter * math.Pi / 180)
	degPerPx := (bounds.East - bounds.West) / float64(demWidth)
	mPerDemPx := degPerPx * 111320 * cosLat

	zoom := basemapMaxZoom
	for z := 10; z <= basemapMaxZoom; z++ {
		mPerTilePx := (360 / math.Pow(2, float64(z))) * 111320 * cosLat / slippy.TileSize
		if mPerTilePx <= mPerDemPx {
			zoom = z
			break
		}
	}
	if zoom < basemapMaxZoom {
		zoom++
	}
	return zoom
}

// cropToBounds cuts the tile-aligned mosaic down to the exact
// geographic bounds. Tiles start on tile boundaries, so without this
// the backdrop and the contours would drift apart.
func cropToBounds(mosaic *image.RGBA, tr slippy.TileRange, bounds slippy.Bounds, zoom int) image.Image {
	toPx := func(lat, lon float64) (int, int) {
		fx, fy := slippy.LatLonToTileFrac(lat, lon, zoom)
		px := int(math.Round((fx - float64(tr.MinX)) * slippy.TileSize))
		py := int(math.Round((fy - float64(tr.MinY)) * slippy.TileSize))
		return px, py
	}

	left, top := toPx(bounds.North, bounds.West)
	right, bottom := toPx(bounds.South, bounds.East)

	full := mosaic.Bounds()
	rect := image.Rect(
		max(0, left), max(0, top),
		min(full.Max.X, right), min(full.Max.Y, bottom),
	)
	if rect.Empty() {
		return mosaic
	}
	return mosaic.SubImage(rect)
}
