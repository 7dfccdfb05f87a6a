package tiles

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

// Cache file layout: 8-byte header (magic, width, height) followed by
// width*height little-endian float32 cells, row-major. The cache
// stores finished composites, not per-source payloads, so a hit skips
// all network I/O for the tile.
const (
	cacheMagic      = 0x54534743 // "TSGC"
	cacheHeaderSize = 8
	cacheExt        = ".grid"
)

// Cache is a disk store of composited tile grids keyed by tile
// coordinates. A corrupted or unreadable entry is a miss, never an
// error: the composite is a pure function of the tile coordinates, so
// re-fetching is always safe. Concurrent writers of the same key are
// harmless for the same reason.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the cache file path for a tile.
func (c *Cache) Path(tile slippy.Tile) string {
	return filepath.Join(c.dir,
		fmt.Sprintf("%d", tile.Z), fmt.Sprintf("%d", tile.X),
		fmt.Sprintf("%d%s", tile.Y, cacheExt))
}

// Get loads the cached composite for a tile. ok is false on any kind
// of absence or damage.
func (c *Cache) Get(tile slippy.Tile) (*terrain.Grid, bool) {
	f, err := os.Open(c.Path(tile))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, false
	}
	defer m.Unmap()

	if len(m) < cacheHeaderSize {
		return nil, false
	}
	if binary.LittleEndian.Uint32(m[0:4]) != cacheMagic {
		return nil, false
	}
	width := int(binary.LittleEndian.Uint16(m[4:6]))
	height := int(binary.LittleEndian.Uint16(m[6:8]))
	if width <= 0 || height <= 0 || len(m) != cacheHeaderSize+4*width*height {
		return nil, false
	}

	grid := &terrain.Grid{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
	for i := range grid.Data {
		off := cacheHeaderSize + 4*i
		grid.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(m[off : off+4]))
	}
	return grid, true
}

// Put persists a composite. The write goes through a temp file and
// rename so readers never observe a partial entry.
func (c *Cache) Put(tile slippy.Tile, grid *terrain.Grid) error {
	path := c.Path(tile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	buf := make([]byte, cacheHeaderSize+4*len(grid.Data))
	binary.LittleEndian.PutUint32(buf[0:4], cacheMagic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(grid.Width))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(grid.Height))
	for i, v := range grid.Data {
		off := cacheHeaderSize + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}
