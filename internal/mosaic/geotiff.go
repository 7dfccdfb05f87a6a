package mosaic

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/terrain"
)

// Minimal single-band float32 GeoTIFF support: enough to round trip
// the rasters this tool emits. Little-endian, one strip per image,
// optional deflate compression, EPSG:4326 geographic reference via
// ModelPixelScale + ModelTiepoint, nodata declared through the GDAL
// nodata tag.

// NoDataValue is the sentinel written in place of no-data cells.
const NoDataValue = -9999.0

// TIFF tag IDs, in the ascending order they must appear in the IFD.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

const (
	typeShort    = 3
	typeLong     = 4
	typeASCII    = 2
	typeDouble   = 12
	compressNone = 1
	compressZlib = 8
)

// GeoTIFF geokeys: geographic model, pixel-is-area, WGS84.
var geoKeys = []uint16{
	1, 1, 0, 3, // key directory version header
	1024, 0, 1, 2, // GTModelTypeGeoKey = geographic
	1025, 0, 1, 1, // GTRasterTypeGeoKey = PixelIsArea
	2048, 0, 1, 4326, // GeographicTypeGeogKey = WGS84
}

type ifdEntry struct {
	tag      uint16
	typ      uint16
	count    uint32
	value    uint32 // inline value or offset, patched at layout time
	extra    []byte // out-of-line payload, nil when the value is inline
}

// WriteGeoTIFF writes the mosaic to path. No-data cells become the
// nodata sentinel. With compress set, the single strip is
// deflate-compressed.
func WriteGeoTIFF(path string, m *Mosaic, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := encodeGeoTIFF(f, m, compress); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func encodeGeoTIFF(w io.Writer, m *Mosaic, compress bool) error {
	grid := m.Grid

	// strip payload: float32 LE, nodata substituted
	raw := make([]byte, 4*len(grid.Data))
	for i, v := range grid.Data {
		f := v
		if math.IsNaN(float64(v)) {
			f = NoDataValue
		}
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}

	strip := raw
	compression := uint32(compressNone)
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		strip = buf.Bytes()
		compression = compressZlib
	}

	lonDeg, latDeg := m.PixelSize()
	pixelScale := encodeDoubles([]float64{lonDeg, latDeg, 0})
	// tiepoint: raster (0,0) pins to the north-west corner
	tiepoint := encodeDoubles([]float64{0, 0, 0, m.Bounds.West, m.Bounds.North, 0})
	geoKeyBytes := make([]byte, 2*len(geoKeys))
	for i, k := range geoKeys {
		binary.LittleEndian.PutUint16(geoKeyBytes[2*i:], k)
	}
	nodata := append([]byte(strconv.Itoa(int(NoDataValue))), 0)

	entries := []ifdEntry{
		{tag: tagImageWidth, typ: typeLong, count: 1, value: uint32(grid.Width)},
		{tag: tagImageLength, typ: typeLong, count: 1, value: uint32(grid.Height)},
		{tag: tagBitsPerSample, typ: typeShort, count: 1, value: 32},
		{tag: tagCompression, typ: typeShort, count: 1, value: compression},
		{tag: tagPhotometric, typ: typeShort, count: 1, value: 1}, // BlackIsZero
		{tag: tagStripOffsets, typ: typeLong, count: 1},           // patched below
		{tag: tagSamplesPerPixel, typ: typeShort, count: 1, value: 1},
		{tag: tagRowsPerStrip, typ: typeLong, count: 1, value: uint32(grid.Height)},
		{tag: tagStripByteCounts, typ: typeLong, count: 1, value: uint32(len(strip))},
		{tag: tagSampleFormat, typ: typeShort, count: 1, value: 3}, // IEEE float
		{tag: tagModelPixelScale, typ: typeDouble, count: 3, extra: pixelScale},
		{tag: tagModelTiepoint, typ: typeDouble, count: 6, extra: tiepoint},
		{tag: tagGeoKeyDirectory, typ: typeShort, count: uint32(len(geoKeys)), extra: geoKeyBytes},
		{tag: tagGDALNoData, typ: typeASCII, count: uint32(len(nodata)), extra: nodata},
	}

	// layout: header(8) | strip | IFD | out-of-line values
	stripOffset := uint32(8)
	ifdOffset := stripOffset + uint32(len(strip))
	if ifdOffset%2 == 1 {
		ifdOffset++ // keep the IFD word-aligned
	}
	ifdSize := uint32(2 + 12*len(entries) + 4)
	extraOffset := ifdOffset + ifdSize

	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].value = stripOffset
		}
		if entries[i].extra != nil {
			entries[i].value = extraOffset
			extraOffset += uint32(len(entries[i].extra))
			if extraOffset%2 == 1 {
				extraOffset++
			}
		}
	}

	var out bytes.Buffer
	out.Grow(int(extraOffset))

	// header
	out.WriteString("II")
	writeU16(&out, 42)
	writeU32(&out, ifdOffset)

	// strip data (plus alignment pad)
	out.Write(strip)
	for uint32(out.Len()) < ifdOffset {
		out.WriteByte(0)
	}

	// IFD
	writeU16(&out, uint16(len(entries)))
	for _, e := range entries {
		writeU16(&out, e.tag)
		writeU16(&out, e.typ)
		writeU32(&out, e.count)
		if e.extra == nil && e.typ == typeShort {
			// inline shorts sit in the low bytes of the value word
			writeU16(&out, uint16(e.value))
			writeU16(&out, 0)
		} else {
			writeU32(&out, e.value)
		}
	}
	writeU32(&out, 0) // no next IFD

	// out-of-line values, in entry order with word alignment
	for _, e := range entries {
		if e.extra == nil {
			continue
		}
		out.Write(e.extra)
		if out.Len()%2 == 1 {
			out.WriteByte(0)
		}
	}

	_, err := w.Write(out.Bytes())
	return err
}

func writeU16(b *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	b.Write(buf[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func encodeDoubles(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// ReadGeoTIFF loads a raster previously written by WriteGeoTIFF (or a
// compatible single-band little-endian float32 GeoTIFF). Nodata cells
// come back as no-data.
func ReadGeoTIFF(path string) (*Mosaic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	m, err := decodeGeoTIFF(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

func decodeGeoTIFF(data []byte) (*Mosaic, error) {
	if len(data) < 8 || data[0] != 'I' || data[1] != 'I' ||
		binary.LittleEndian.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("not a little-endian TIFF")
	}

	ifdOffset := binary.LittleEndian.Uint32(data[4:8])
	if int(ifdOffset)+2 > len(data) {
		return nil, fmt.Errorf("IFD offset out of range")
	}
	count := int(binary.LittleEndian.Uint16(data[ifdOffset : ifdOffset+2]))

	var (
		width, height     int
		compression       = compressNone
		stripOffsets      []uint32
		stripByteCounts   []uint32
		rowsPerStrip      = 0
		bitsPerSample     = 32
		sampleFormat      = 3
		pixelScale        []float64
		tiepoint          []float64
		nodata            = math.NaN()
	)

	for i := 0; i < count; i++ {
		off := int(ifdOffset) + 2 + 12*i
		if off+12 > len(data) {
			return nil, fmt.Errorf("truncated IFD")
		}
		tag := binary.LittleEndian.Uint16(data[off : off+2])
		typ := binary.LittleEndian.Uint16(data[off+2 : off+4])
		n := binary.LittleEndian.Uint32(data[off+4 : off+8])

		switch tag {
		case tagImageWidth:
			width = int(readTagValue(data, off, typ))
		case tagImageLength:
			height = int(readTagValue(data, off, typ))
		case tagBitsPerSample:
			bitsPerSample = int(readTagValue(data, off, typ))
		case tagCompression:
			compression = int(readTagValue(data, off, typ))
		case tagStripOffsets:
			stripOffsets = readTagValues(data, off, typ, n)
		case tagStripByteCounts:
			stripByteCounts = readTagValues(data, off, typ, n)
		case tagRowsPerStrip:
			rowsPerStrip = int(readTagValue(data, off, typ))
		case tagSampleFormat:
			sampleFormat = int(readTagValue(data, off, typ))
		case tagModelPixelScale:
			pixelScale = readDoubles(data, off, n)
		case tagModelTiepoint:
			tiepoint = readDoubles(data, off, n)
		case tagGDALNoData:
			s := readASCII(data, off, n)
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				nodata = v
			}
		}
	}

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}
	if bitsPerSample != 32 || sampleFormat != 3 {
		return nil, fmt.Errorf("unsupported sample layout: %d-bit format %d (expected 32-bit float)", bitsPerSample, sampleFormat)
	}
	if compression != compressNone && compression != compressZlib {
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
	if len(pixelScale) < 2 || len(tiepoint) < 6 {
		return nil, fmt.Errorf("missing georeferencing tags")
	}
	if len(stripOffsets) == 0 || len(stripOffsets) != len(stripByteCounts) {
		return nil, fmt.Errorf("missing strip layout")
	}
	if rowsPerStrip == 0 {
		rowsPerStrip = height
	}

	grid := terrain.NewGrid(width, height)
	row := 0
	for i, so := range stripOffsets {
		end := so + stripByteCounts[i]
		if int(end) > len(data) {
			return nil, fmt.Errorf("strip %d out of range", i)
		}
		strip := data[so:end]
		if compression == compressZlib {
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, fmt.Errorf("bad deflate strip %d: %w", i, err)
			}
			strip, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("bad deflate strip %d: %w", i, err)
			}
		}

		cells := len(strip) / 4
		for c := 0; c < cells; c++ {
			idx := row*width + c
			if idx >= len(grid.Data) {
				break
			}
			v := math.Float32frombits(binary.LittleEndian.Uint32(strip[4*c:]))
			if !math.IsNaN(nodata) && float64(v) == nodata {
				v = float32(math.NaN())
			}
			grid.Data[idx] = v
		}
		row += rowsPerStrip
	}

	west, north := tiepoint[3], tiepoint[4]
	bounds := slippy.Bounds{
		West:  west,
		East:  west + pixelScale[0]*float64(width),
		North: north,
		South: north - pixelScale[1]*float64(height),
	}

	return &Mosaic{Grid: grid, Bounds: bounds}, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeDouble:
		return 8
	default:
		return 1
	}
}

// readTagValue returns a single short/long tag value, inline or not.
func readTagValue(data []byte, entryOff int, typ uint16) uint32 {
	vals := readTagValues(data, entryOff, typ, 1)
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}

func readTagValues(data []byte, entryOff int, typ uint16, n uint32) []uint32 {
	size := typeSize(typ)
	total := size * int(n)
	src := data[entryOff+8 : entryOff+12]
	if total > 4 {
		off := binary.LittleEndian.Uint32(src)
		if int(off)+total > len(data) {
			return nil
		}
		src = data[off : int(off)+total]
	}
	vals := make([]uint32, 0, n)
	for i := 0; i < int(n); i++ {
		switch typ {
		case typeShort:
			vals = append(vals, uint32(binary.LittleEndian.Uint16(src[2*i:])))
		case typeLong:
			vals = append(vals, binary.LittleEndian.Uint32(src[4*i:]))
		default:
			vals = append(vals, uint32(src[i]))
		}
	}
	return vals
}

func readDoubles(data []byte, entryOff int, n uint32) []float64 {
	off := binary.LittleEndian.Uint32(data[entryOff+8 : entryOff+12])
	total := 8 * int(n)
	if int(off)+total > len(data) {
		return nil
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[int(off)+8*i:]))
	}
	return vals
}

func readASCII(data []byte, entryOff int, n uint32) string {
	src := data[entryOff+8 : entryOff+12]
	if n > 4 {
		off := binary.LittleEndian.Uint32(src)
		if int(off)+int(n) > len(data) {
			return ""
		}
		src = data[off : int(off)+int(n)]
	} else {
		src = src[:n]
	}
	return strings.TrimRight(string(src), "\x00")
}
