package tiles

import (
	"context"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cartolab/terrastack/internal/logger"
	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

var (
	diskCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrastack_tile_disk_cache_hits_total",
		Help: "The total number of hits on the composite tile disk cache",
	})
	diskCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrastack_tile_disk_cache_misses_total",
		Help: "The total number of misses on the composite tile disk cache",
	})
	memCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrastack_tile_mem_cache_hits_total",
		Help: "The total number of hits on the in-memory tile cache",
	})
	memCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrastack_tile_mem_cache_evictions_total",
		Help: "The total number of evictions from the in-memory tile cache",
	})
	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrastack_tile_source_failures_total",
		Help: "The total number of per-source fetch or decode failures",
	}, []string{"source"})
)

// Service acquires composited elevation tiles. For each tile it
// queries the sources in priority order and fills, per pixel, only the
// cells still missing, so the highest-fidelity data always wins where
// it exists. A source that fails in any way simply contributes no
// pixels; the tile itself never fails.
type Service struct {
	set      *SourceSet
	fetcher  *Fetcher
	cache    *Cache
	tileSize int

	memCache *lru.Cache[slippy.Tile, *terrain.Grid]
}

// ServiceOption sets an option on a Service.
type ServiceOption func(*Service)

// WithTileSize overrides the expected tile pixel dimension.
func WithTileSize(size int) ServiceOption {
	return func(s *Service) { s.tileSize = size }
}

// WithFetcher substitutes the HTTP fetcher, used by tests.
func WithFetcher(f *Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// NewService creates an acquisition service with a disk cache rooted
// at cacheDir and a small in-memory LRU in front of it.
func NewService(set *SourceSet, cacheDir string, options ...ServiceOption) (*Service, error) {
	s := &Service{
		set:      set,
		fetcher:  NewFetcher(set),
		cache:    NewCache(cacheDir),
		tileSize: slippy.TileSize,
	}
	for _, option := range options {
		option(s)
	}

	memCache, err := lru.NewWithEvict(64, func(slippy.Tile, *terrain.Grid) {
		memCacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	s.memCache = memCache
	return s, nil
}

// GetTile returns the composited elevation grid for one tile. It
// consults the in-memory cache, then the disk cache, then the network.
// The result is always a full-size grid; if every source failed it is
// all no-data.
func (s *Service) GetTile(ctx context.Context, tile slippy.Tile) *terrain.Grid {
	if grid, ok := s.memCache.Get(tile); ok {
		memCacheHits.Inc()
		return grid
	}

	if grid, ok := s.cache.Get(tile); ok {
		diskCacheHits.Inc()
		s.memCache.Add(tile, grid)
		return grid
	}
	diskCacheMisses.Inc()

	grid := s.composite(ctx, tile)

	if err := s.cache.Put(tile, grid); err != nil {
		// A failed cache write costs a re-download next run, nothing more.
		logger.Get().Warn("Failed to persist tile to cache",
			zap.String("tile", tile.String()), zap.Error(err))
	}
	s.memCache.Add(tile, grid)
	return grid
}

// composite fetches the tile from every source in priority order and
// merges them gap-filling, stopping early once no cell is missing.
func (s *Service) composite(ctx context.Context, tile slippy.Tile) *terrain.Grid {
	log := logger.Get()
	result := terrain.NewGrid(s.tileSize, s.tileSize)

	for _, source := range s.set.Sources {
		payload, err := s.fetcher.FetchTile(ctx, source, tile)
		if err != nil {
			sourceFailures.WithLabelValues(source.ID).Inc()
			log.Debug("Source unavailable",
				zap.String("source", source.ID),
				zap.String("tile", tile.String()),
				zap.Error(err))
			continue
		}
		if payload == nil {
			continue
		}

		grid, err := terrain.DecodeTile(payload)
		if err != nil {
			sourceFailures.WithLabelValues(source.ID).Inc()
			log.Debug("Source returned undecodable tile",
				zap.String("source", source.ID),
				zap.String("tile", tile.String()),
				zap.Error(err))
			continue
		}
		if grid.Width != s.tileSize || grid.Height != s.tileSize {
			sourceFailures.WithLabelValues(source.ID).Inc()
			log.Debug("Source returned wrong tile size",
				zap.String("source", source.ID),
				zap.String("tile", tile.String()),
				zap.Int("width", grid.Width),
				zap.Int("height", grid.Height))
			continue
		}

		if fillGaps(result, grid) == 0 {
			break // fully covered, skip lower-priority sources
		}
	}

	return result
}

// fillGaps copies src cells into dst where dst is still no-data and
// returns the number of no-data cells remaining afterwards.
func fillGaps(dst, src *terrain.Grid) int {
	remaining := 0
	for i, v := range dst.Data {
		if math.IsNaN(float64(v)) {
			dst.Data[i] = src.Data[i]
			if math.IsNaN(float64(src.Data[i])) {
				remaining++
			}
		}
	}
	return remaining
}

// FetchAll acquires every tile over a bounded worker pool and blocks
// until all complete. The returned map is total over the requested
// tiles: a tile whose every source failed maps to an all-no-data grid.
// onProgress, if non-nil, is called after each completed tile.
func (s *Service) FetchAll(ctx context.Context, tileList []slippy.Tile, workers int, onProgress func(done, total int)) map[slippy.Tile]*terrain.Grid {
	if workers < 1 {
		workers = 1
	}

	results := make(map[slippy.Tile]*terrain.Grid, len(tileList))
	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, tile := range tileList {
		g.Go(func() error {
			grid := s.GetTile(ctx, tile)
			mu.Lock()
			results[tile] = grid
			done++
			d := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(d, len(tileList))
			}
			return nil
		})
	}

	// Workers never return errors; tile failures degrade to no-data.
	_ = g.Wait()
	return results
}
