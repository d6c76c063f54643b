package exr

import (
	"errors"
	"io"
	"sync"
	"unsafe"

	"github.com/mrjoshuak/go-openexr/compression"
	"github.com/mrjoshuak/go-openexr/half"
	"github.com/mrjoshuak/go-openexr/internal/predictor"
	"github.com/mrjoshuak/go-openexr/internal/xdr"
)

// Tiled I/O errors.
var (
	ErrNotTiled       = errors.New("exr: image is not tiled")
	ErrTileOutOfRange = errors.New("exr: tile coordinates out of range")
	ErrLevelOutOfRange = errors.New("exr: level index out of range")
)

// tileChunkIndex returns the position of the tile (tileX, tileY) at
// level (levelX, levelY) within h's chunk offset table.
func tileChunkIndex(h *Header, tileX, tileY, levelX, levelY int) int {
	td := h.TileDescription()
	if td == nil {
		return -1
	}
	if td.Mode == LevelModeOne {
		dw := h.DataWindow()
		tilesX := (int(dw.Width()) + int(td.XSize) - 1) / int(td.XSize)
		return tileY*tilesX + tileX
	}

	offset := 0
	switch td.Mode {
	case LevelModeMipmap:
		for l := 0; l < levelX; l++ {
			offset += h.NumXTiles(l) * h.NumYTiles(l)
		}
		offset += tileY*h.NumXTiles(levelX) + tileX
	case LevelModeRipmap:
		numXLevels := h.NumXLevels()
		for ly := 0; ly < levelY; ly++ {
			for lx := 0; lx < numXLevels; lx++ {
				offset += h.NumXTiles(lx) * h.NumYTiles(ly)
			}
		}
		for lx := 0; lx < levelX; lx++ {
			offset += h.NumXTiles(lx) * h.NumYTiles(levelY)
		}
		offset += tileY*h.NumXTiles(levelX) + tileX
	}
	return offset
}

// TiledReader reads tiled images from an EXR file.
type TiledReader struct {
	file        *File
	part        int
	header      *Header
	frameBuffer *FrameBuffer
	dataWindow  Box2i
	channelList *ChannelList
	tileDesc    *TileDescription
	tilesX      int
	tilesY      int

	flevelOnce sync.Once
}

// NewTiledReader returns a reader for part 0 of f.
func NewTiledReader(f *File) (*TiledReader, error) {
	return NewTiledReaderPart(f, 0)
}

// NewTiledReaderPart returns a reader for part of f.
func NewTiledReaderPart(f *File, part int) (*TiledReader, error) {
	if f == nil {
		return nil, ErrInvalidFile
	}
	h := f.Header(part)
	if h == nil {
		return nil, errors.New("exr: invalid part index")
	}
	if !h.IsTiled() {
		return nil, ErrNotTiled
	}
	td := h.TileDescription()
	if td == nil || td.XSize == 0 || td.YSize == 0 {
		return nil, errors.New("exr: missing or invalid tile description")
	}

	cl := h.Channels()
	if cl == nil || cl.Len() == 0 {
		return nil, errors.New("exr: missing or empty channels attribute")
	}

	dw := h.DataWindow()
	width := int(dw.Width())
	height := int(dw.Height())
	if width <= 0 || height <= 0 {
		return nil, errors.New("exr: invalid data window dimensions")
	}

	tilesX := (width + int(td.XSize) - 1) / int(td.XSize)
	tilesY := (height + int(td.YSize) - 1) / int(td.YSize)

	return &TiledReader{
		file:        f,
		part:        part,
		header:      h,
		dataWindow:  dw,
		channelList: cl,
		tileDesc:    td,
		tilesX:      tilesX,
		tilesY:      tilesY,
	}, nil
}

// Header returns the header for this part.
func (r *TiledReader) Header() *Header { return r.header }

// DataWindow returns the data window for this part.
func (r *TiledReader) DataWindow() Box2i { return r.dataWindow }

// TileDescription returns the tile description for this part.
func (r *TiledReader) TileDescription() *TileDescription { return r.tileDesc }

// NumXLevels returns the number of resolution levels in x.
func (r *TiledReader) NumXLevels() int { return r.header.NumXLevels() }

// NumYLevels returns the number of resolution levels in y.
func (r *TiledReader) NumYLevels() int { return r.header.NumYLevels() }

// NumLevels returns the number of resolution levels for a one-level or
// mipmapped image; it panics if called on a ripmapped image.
func (r *TiledReader) NumLevels() int {
	if r.tileDesc.Mode == LevelModeRipmap {
		panic("exr: NumLevels called on ripmapped image")
	}
	return r.header.NumXLevels()
}

// LevelWidth returns the pixel width of level l in x.
func (r *TiledReader) LevelWidth(l int) int { return r.header.LevelWidth(l) }

// LevelHeight returns the pixel height of level l in y.
func (r *TiledReader) LevelHeight(l int) int { return r.header.LevelHeight(l) }

// NumXTilesAtLevel returns the number of tiles spanning level lx in x.
func (r *TiledReader) NumXTilesAtLevel(lx int) int { return r.header.NumXTiles(lx) }

// NumYTilesAtLevel returns the number of tiles spanning level ly in y.
func (r *TiledReader) NumYTilesAtLevel(ly int) int { return r.header.NumYTiles(ly) }

// LevelMode returns the resolution level mode (one, mipmap, or ripmap).
func (r *TiledReader) LevelMode() LevelMode { return r.tileDesc.Mode }

// NumTilesX returns the number of tiles spanning the full-resolution
// image in x.
func (r *TiledReader) NumTilesX() int { return r.tilesX }

// NumTilesY returns the number of tiles spanning the full-resolution
// image in y.
func (r *TiledReader) NumTilesY() int { return r.tilesY }

// SetFrameBuffer sets the frame buffer to read pixels into.
func (r *TiledReader) SetFrameBuffer(fb *FrameBuffer) {
	r.frameBuffer = fb
}

// chunkIndex returns the position of tile (tileX, tileY) at level
// (levelX, levelY) within this part's chunk offset table.
func (r *TiledReader) chunkIndex(tileX, tileY, levelX, levelY int) int {
	if r.tileDesc.Mode == LevelModeOne {
		return tileY*r.tilesX + tileX
	}
	offset := 0
	switch r.tileDesc.Mode {
	case LevelModeMipmap:
		for l := 0; l < levelX; l++ {
			offset += r.header.NumXTiles(l) * r.header.NumYTiles(l)
		}
		offset += tileY*r.header.NumXTiles(levelX) + tileX
	case LevelModeRipmap:
		numXLevels := r.header.NumXLevels()
		for ly := 0; ly < levelY; ly++ {
			for lx := 0; lx < numXLevels; lx++ {
				offset += r.header.NumXTiles(lx) * r.header.NumYTiles(ly)
			}
		}
		for lx := 0; lx < levelX; lx++ {
			offset += r.header.NumXTiles(lx) * r.header.NumYTiles(levelY)
		}
		offset += tileY*r.header.NumXTiles(levelX) + tileX
	}
	return offset
}

// ReadTile reads tile (tileX, tileY) at full resolution into the frame
// buffer.
func (r *TiledReader) ReadTile(tileX, tileY int) error {
	return r.ReadTileLevel(tileX, tileY, 0, 0)
}

// ReadTileLevel reads tile (tileX, tileY) at level (levelX, levelY) into
// the frame buffer.
func (r *TiledReader) ReadTileLevel(tileX, tileY, levelX, levelY int) error {
	if r.frameBuffer == nil {
		return ErrNoFrameBuffer
	}
	if levelX < 0 || levelX >= r.header.NumXLevels() || levelY < 0 || levelY >= r.header.NumYLevels() {
		return ErrLevelOutOfRange
	}
	if tileX < 0 || tileX >= r.header.NumXTiles(levelX) || tileY < 0 || tileY >= r.header.NumYTiles(levelY) {
		return ErrTileOutOfRange
	}

	idx := r.chunkIndex(tileX, tileY, levelX, levelY)
	_, data, err := r.file.ReadTileChunk(r.part, idx)
	if err != nil {
		return err
	}

	tileWidth := calculateTileDim(r.header.LevelWidth(levelX), tileX, int(r.tileDesc.XSize))
	tileHeight := calculateTileDim(r.header.LevelHeight(levelY), tileY, int(r.tileDesc.YSize))

	comp := r.header.Compression()
	decompressed, err := r.decompressTile(data, tileWidth, tileHeight, comp)
	if err != nil {
		return err
	}

	return r.decodeTileLevel(tileX, tileY, levelX, levelY, tileWidth, tileHeight, decompressed)
}

// calculateTileDim returns the number of pixels tile index t spans
// given the level's total dimension and nominal tile size (tiles past
// the last full tile are clipped to the remainder).
func calculateTileDim(levelDim, t, tileSize int) int {
	start := t * tileSize
	if start+tileSize > levelDim {
		return levelDim - start
	}
	return tileSize
}

// ReadTiles reads every tile in [tileX1,tileX2] x [tileY1,tileY2] at
// full resolution into the frame buffer.
func (r *TiledReader) ReadTiles(tileX1, tileX2, tileY1, tileY2 int) error {
	return r.ReadTilesLevel(tileX1, tileX2, tileY1, tileY2, 0, 0)
}

// ReadTilesLevel reads every tile in [tileX1,tileX2] x [tileY1,tileY2]
// at level (levelX, levelY) into the frame buffer.
func (r *TiledReader) ReadTilesLevel(tileX1, tileX2, tileY1, tileY2, levelX, levelY int) error {
	for ty := tileY1; ty <= tileY2; ty++ {
		for tx := tileX1; tx <= tileX2; tx++ {
			if err := r.ReadTileLevel(tx, ty, levelX, levelY); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadPixels reads every level-(0,0) tile intersecting [y1,y2] and
// copies only the rows that fall inside that range into the frame
// buffer -- a horizontal-strip view over a tiled file, for callers
// that would rather read a scanline range than individual tiles. Only
// the finest level participates; mip/rip levels have no strip notion.
func (r *TiledReader) ReadPixels(y1, y2 int) error {
	if r.frameBuffer == nil {
		return ErrNoFrameBuffer
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	minY, maxY := int(r.dataWindow.Min.Y), int(r.dataWindow.Max.Y)
	if y1 < minY || y2 > maxY {
		return ErrScanlineOutOfRange
	}

	realFB := r.frameBuffer
	defer func() { r.frameBuffer = realFB }()

	ts := int(r.tileDesc.YSize)
	ty1 := (y1 - minY) / ts
	ty2 := (y2 - minY) / ts

	tyFrom, tyTo, step := ty1, ty2, 1
	if r.header.LineOrder() == LineOrderDecreasing {
		tyFrom, tyTo, step = ty2, ty1, -1
	}

	for ty := tyFrom; ; ty += step {
		for tx := 0; tx < r.tilesX; tx++ {
			if err := r.readTileStrip(tx, ty, y1, y2, realFB); err != nil {
				return err
			}
		}
		if ty == tyTo {
			break
		}
	}
	return nil
}

// readTileStrip reads tile (tileX, tileY) at level (0,0) into a
// per-tile scratch frame buffer sized to exactly that tile, then
// byte-copies whichever of its rows lie in [y1,y2] into dst.
func (r *TiledReader) readTileStrip(tileX, tileY, y1, y2 int, dst *FrameBuffer) error {
	tileWidth := calculateTileDim(r.header.LevelWidth(0), tileX, int(r.tileDesc.XSize))
	tileHeight := calculateTileDim(r.header.LevelHeight(0), tileY, int(r.tileDesc.YSize))
	x0 := tileX * int(r.tileDesc.XSize)
	y0 := tileY * int(r.tileDesc.YSize)

	rowFrom, rowTo := y1, y2
	if y0 > rowFrom {
		rowFrom = y0
	}
	if last := y0 + tileHeight - 1; last < rowTo {
		rowTo = last
	}
	if rowFrom > rowTo {
		return nil
	}

	scratch := NewFrameBuffer()
	for i := 0; i < r.channelList.Len(); i++ {
		ch := r.channelList.At(i)
		if !dst.Has(ch.Name) {
			continue
		}
		buf := make([]byte, tileWidth*tileHeight*ch.Type.Size())
		slice := NewSlice(ch.Type, buf, tileWidth, tileHeight)
		slice.Base = unsafe.Pointer(uintptr(slice.Base) - uintptr(y0*slice.YStride+x0*slice.XStride))
		scratch.Set(ch.Name, slice)
	}

	r.frameBuffer = scratch
	if err := r.ReadTileLevel(tileX, tileY, 0, 0); err != nil {
		return err
	}

	for i := 0; i < r.channelList.Len(); i++ {
		ch := r.channelList.At(i)
		src := scratch.Get(ch.Name)
		dstSlice := dst.Get(ch.Name)
		if src == nil || dstSlice == nil {
			continue
		}
		for y := rowFrom; y <= rowTo; y++ {
			for x := x0; x < x0+tileWidth; x++ {
				switch ch.Type {
				case PixelTypeHalf:
					dstSlice.SetHalf(x, y, src.GetHalf(x, y))
				case PixelTypeFloat:
					dstSlice.SetFloat32(x, y, src.GetFloat32(x, y))
				case PixelTypeUint:
					dstSlice.SetUint32(x, y, src.GetUint32(x, y))
				}
			}
		}
	}
	return nil
}

func (r *TiledReader) calculateTileSize(tileWidth, tileHeight int) int {
	bytesPerLine := 0
	for i := 0; i < r.channelList.Len(); i++ {
		ch := r.channelList.At(i)
		pixelsInChannel := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		bytesPerLine += pixelsInChannel * ch.Type.Size()
	}
	return bytesPerLine * tileHeight
}

// decompressTile dispatches to the codec named by comp.
func (r *TiledReader) decompressTile(data []byte, tileWidth, tileHeight int, comp Compression) ([]byte, error) {
	switch comp {
	case CompressionNone:
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	case CompressionRLE:
		return r.decompressTileRLE(data, tileWidth, tileHeight)
	case CompressionZIPS, CompressionZIP:
		return r.decompressTileZIP(data, tileWidth, tileHeight)
	case CompressionPIZ:
		return r.decompressTilePIZ(data, tileWidth, tileHeight)
	case CompressionPXR24:
		return r.decompressTilePXR24(data, tileWidth, tileHeight)
	case CompressionB44, CompressionB44A:
		return r.decompressTileB44(data, tileWidth, tileHeight)
	case CompressionDWAA, CompressionDWAB:
		return r.decompressTileDWA(data, tileWidth, tileHeight)
	default:
		return nil, errors.New("exr: compression not yet implemented for tiles: " + comp.String())
	}
}

func (r *TiledReader) decompressTileRLE(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	expectedSize := r.calculateTileSize(tileWidth, tileHeight)
	decompressed, err := compression.RLEDecompress(data, expectedSize)
	if err != nil {
		return nil, err
	}
	predictor.DecodeSIMD(decompressed)
	return decompressed, nil
}

func (r *TiledReader) decompressTileZIP(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	expectedSize := r.calculateTileSize(tileWidth, tileHeight)

	r.flevelOnce.Do(func() {
		if flevel, ok := compression.DetectZlibFLevel(data); ok {
			r.header.setDetectedFLevel(flevel)
		}
	})

	buf := zipDecompressBufPool.Get().(*zipDecompressBuf)
	defer zipDecompressBufPool.Put(buf)

	if cap(buf.data) < expectedSize {
		buf.data = make([]byte, expectedSize)
	} else {
		buf.data = buf.data[:expectedSize]
	}

	if err := compression.ZIPDecompressTo(buf.data, data); err != nil {
		return nil, err
	}

	output := make([]byte, expectedSize)
	predictor.ReconstructBytes(output, buf.data)
	return output, nil
}

func (r *TiledReader) decompressTilePIZ(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	samplesPerPixel := 0
	for i := 0; i < r.channelList.Len(); i++ {
		switch r.channelList.At(i).Type {
		case PixelTypeHalf:
			samplesPerPixel++
		case PixelTypeFloat, PixelTypeUint:
			samplesPerPixel += 2
		}
	}
	samples, err := compression.PIZDecompress(data, tileWidth, tileHeight, samplesPerPixel)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}

func (r *TiledReader) decompressTilePXR24(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	expectedSize := r.calculateTileSize(tileWidth, tileHeight)

	sortedChannels := r.channelList.SortedByName()
	channels := make([]compression.ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.ChannelInfo{
			Type:   pxr24Type(ch.Type),
			Width:  chWidth,
			Height: tileHeight,
		}
	}
	return compression.PXR24Decompress(data, channels, tileWidth, tileHeight, expectedSize)
}

func (r *TiledReader) decompressTileB44(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	expectedSize := r.calculateTileSize(tileWidth, tileHeight)

	sortedChannels := r.channelList.SortedByName()
	channels := make([]compression.B44ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.B44ChannelInfo{
			Type:   b44Type(ch.Type),
			Width:  chWidth,
			Height: tileHeight,
		}
	}
	return compression.B44Decompress(data, channels, tileWidth, tileHeight, expectedSize)
}

func (r *TiledReader) decompressTileDWA(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	expectedSize := r.calculateTileSize(tileWidth, tileHeight)
	dst := make([]byte, expectedSize)
	if err := compression.DecompressDWAA(data, dst, tileWidth, tileHeight); err != nil {
		return nil, err
	}
	return dst, nil
}

// decodeTileLevel writes decompressed, channel-interleaved-by-row tile
// data into the frame buffer at the pixel region covered by
// (tileX, tileY) at level (levelX, levelY).
func (r *TiledReader) decodeTileLevel(tileX, tileY, levelX, levelY, tileWidth, tileHeight int, data []byte) error {
	x0 := tileX * int(r.tileDesc.XSize)
	y0 := tileY * int(r.tileDesc.YSize)

	sortedChannels := r.channelList.SortedByName()
	xr := xdr.NewReader(data)

	for row := 0; row < tileHeight; row++ {
		y := y0 + row
		for _, ch := range sortedChannels {
			pixelsInChannel := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
			slice := r.frameBuffer.Get(ch.Name)

			switch ch.Type {
			case PixelTypeHalf:
				for i := 0; i < pixelsInChannel; i++ {
					bits, err := xr.ReadUint16()
					if err != nil {
						return err
					}
					if slice != nil {
						slice.SetHalf(x0+i, y, half.FromBits(bits))
					}
				}
			case PixelTypeFloat:
				for i := 0; i < pixelsInChannel; i++ {
					v, err := xr.ReadFloat32()
					if err != nil {
						return err
					}
					if slice != nil {
						slice.SetFloat32(x0+i, y, v)
					}
				}
			case PixelTypeUint:
				for i := 0; i < pixelsInChannel; i++ {
					v, err := xr.ReadUint32()
					if err != nil {
						return err
					}
					if slice != nil {
						slice.SetUint32(x0+i, y, v)
					}
				}
			}
		}
	}
	return nil
}

// tileCoord is a tile's position in the (tileX, tileY, levelX, levelY)
// space the write-ordering engine iterates over.
type tileCoord struct {
	tx, ty, lx, ly int
}

// TiledWriter writes tiled images to an EXR file.
type TiledWriter struct {
	writer      *Writer
	header      *Header
	frameBuffer *FrameBuffer
	dataWindow  Box2i
	channelList *ChannelList
	tileDesc    *TileDescription
	tilesX      int
	tilesY      int

	lineOrder   LineOrder
	nextToWrite tileCoord
	pending     map[tileCoord][]byte
	written     map[tileCoord]bool
}

// NewTiledWriter returns a writer for a single-part tiled file described
// by h.
func NewTiledWriter(w io.WriteSeeker, h *Header) (*TiledWriter, error) {
	if !h.IsTiled() {
		return nil, ErrNotTiled
	}
	writer, err := NewWriter(w, h)
	if err != nil {
		return nil, err
	}

	td := h.TileDescription()
	dw := h.DataWindow()
	width := int(dw.Width())
	height := int(dw.Height())

	lineOrder := h.LineOrder()
	tw := &TiledWriter{
		writer:      writer,
		header:      h,
		dataWindow:  dw,
		channelList: h.Channels(),
		tileDesc:    td,
		tilesX:      (width + int(td.XSize) - 1) / int(td.XSize),
		tilesY:      (height + int(td.YSize) - 1) / int(td.YSize),
		lineOrder:   lineOrder,
		pending:     make(map[tileCoord][]byte),
		written:     make(map[tileCoord]bool),
	}

	switch lineOrder {
	case LineOrderDecreasing:
		tw.nextToWrite = tileCoord{0, h.NumYTiles(0) - 1, 0, 0}
	default:
		tw.nextToWrite = tileCoord{0, 0, 0, 0}
	}

	return tw, nil
}

// Header returns the header for this file.
func (w *TiledWriter) Header() *Header { return w.header }

// TileDescription returns the tile description for this file.
func (w *TiledWriter) TileDescription() *TileDescription { return w.tileDesc }

// NumXLevels returns the number of resolution levels in x.
func (w *TiledWriter) NumXLevels() int { return w.header.NumXLevels() }

// NumYLevels returns the number of resolution levels in y.
func (w *TiledWriter) NumYLevels() int { return w.header.NumYLevels() }

// LevelWidth returns the pixel width of level l in x.
func (w *TiledWriter) LevelWidth(l int) int { return w.header.LevelWidth(l) }

// LevelHeight returns the pixel height of level l in y.
func (w *TiledWriter) LevelHeight(l int) int { return w.header.LevelHeight(l) }

// NumXTilesAtLevel returns the number of tiles spanning level lx in x.
func (w *TiledWriter) NumXTilesAtLevel(lx int) int { return w.header.NumXTiles(lx) }

// NumYTilesAtLevel returns the number of tiles spanning level ly in y.
func (w *TiledWriter) NumYTilesAtLevel(ly int) int { return w.header.NumYTiles(ly) }

// NumTilesX returns the number of tiles spanning the full-resolution
// image in x.
func (w *TiledWriter) NumTilesX() int { return w.tilesX }

// NumTilesY returns the number of tiles spanning the full-resolution
// image in y.
func (w *TiledWriter) NumTilesY() int { return w.tilesY }

// SetFrameBuffer sets the frame buffer to write pixels from.
func (w *TiledWriter) SetFrameBuffer(fb *FrameBuffer) {
	w.frameBuffer = fb
}

// WriteTile writes tile (tileX, tileY) at full resolution from the
// frame buffer.
func (w *TiledWriter) WriteTile(tileX, tileY int) error {
	return w.WriteTileLevel(tileX, tileY, 0, 0)
}

// WriteTileLevel writes tile (tileX, tileY) at level (levelX, levelY)
// from the frame buffer.
func (w *TiledWriter) WriteTileLevel(tileX, tileY, levelX, levelY int) error {
	if w.frameBuffer == nil {
		return ErrNoFrameBuffer
	}
	if levelX < 0 || levelX >= w.header.NumXLevels() || levelY < 0 || levelY >= w.header.NumYLevels() {
		return ErrLevelOutOfRange
	}
	if tileX < 0 || tileX >= w.header.NumXTiles(levelX) || tileY < 0 || tileY >= w.header.NumYTiles(levelY) {
		return ErrTileOutOfRange
	}

	coord := tileCoord{tileX, tileY, levelX, levelY}
	if w.written[coord] {
		return ErrTileAlreadyWritten
	}

	tileWidth := calculateTileDim(w.header.LevelWidth(levelX), tileX, int(w.tileDesc.XSize))
	tileHeight := calculateTileDim(w.header.LevelHeight(levelY), tileY, int(w.tileDesc.YSize))

	rawData, err := w.encodeTileLevel(tileX, tileY, levelX, levelY, tileWidth, tileHeight)
	if err != nil {
		return err
	}

	comp := w.header.Compression()
	data, err := w.compressTile(rawData, tileWidth, tileHeight, comp)
	if err != nil {
		return err
	}

	w.written[coord] = true
	return w.bufferedWriteTile(coord, data)
}

// bufferedWriteTile is the write-ordering engine: under
// LineOrderRandom, tiles are appended to disk in call order. Under
// LineOrderIncreasing/LineOrderDecreasing, a tile is flushed
// immediately only if it is the next one due in nextTileCoord order;
// otherwise it is buffered until the tiles preceding it have arrived.
// Once a tile is flushed, the pending map is drained for as long as
// the tile now due has already arrived.
func (w *TiledWriter) bufferedWriteTile(coord tileCoord, data []byte) error {
	if w.lineOrder == LineOrderRandom {
		return w.commitTile(coord, data)
	}

	if coord != w.nextToWrite {
		buf := make([]byte, len(data))
		copy(buf, data)
		w.pending[coord] = buf
		return nil
	}

	if err := w.commitTile(coord, data); err != nil {
		return err
	}
	w.nextToWrite = w.nextTileCoord(w.nextToWrite)

	for {
		buf, ok := w.pending[w.nextToWrite]
		if !ok {
			return nil
		}
		delete(w.pending, w.nextToWrite)
		if err := w.commitTile(w.nextToWrite, buf); err != nil {
			return err
		}
		w.nextToWrite = w.nextTileCoord(w.nextToWrite)
	}
}

// commitTile appends coord's chunk to disk.
func (w *TiledWriter) commitTile(coord tileCoord, data []byte) error {
	return w.writer.WriteTileChunk(coord.tx, coord.ty, coord.lx, coord.ly, data)
}

// nextTileCoord advances c to the next tile in this writer's line
// order: x always increases across a row; INCREASING_Y advances y
// (then level) on row overflow, DECREASING_Y decrements y (then
// advances level, resetting y to the new level's last row) on row
// underflow.
func (w *TiledWriter) nextTileCoord(c tileCoord) tileCoord {
	if w.lineOrder == LineOrderDecreasing {
		c.tx++
		if c.tx >= w.header.NumXTiles(c.lx) {
			c.tx = 0
			c.ty--
			if c.ty < 0 {
				c.lx, c.ly = w.nextLevel(c.lx, c.ly)
				c.ty = w.header.NumYTiles(c.ly) - 1
			}
		}
		return c
	}

	c.tx++
	if c.tx >= w.header.NumXTiles(c.lx) {
		c.tx = 0
		c.ty++
		if c.ty >= w.header.NumYTiles(c.ly) {
			c.ty = 0
			c.lx, c.ly = w.nextLevel(c.lx, c.ly)
		}
	}
	return c
}

// nextLevel advances (lx, ly) to the next resolution level: ONE and
// MIPMAP advance both indices together; RIPMAP advances lx, wrapping
// into ly.
func (w *TiledWriter) nextLevel(lx, ly int) (int, int) {
	if w.tileDesc.Mode == LevelModeRipmap {
		lx++
		if lx >= w.header.NumXLevels() {
			lx = 0
			ly++
		}
		return lx, ly
	}
	return lx + 1, ly + 1
}

// WriteTiles writes every tile in [tileX1,tileX2] x [tileY1,tileY2] at
// full resolution from the frame buffer.
func (w *TiledWriter) WriteTiles(tileX1, tileX2, tileY1, tileY2 int) error {
	return w.WriteTilesLevel(tileX1, tileX2, tileY1, tileY2, 0, 0)
}

// WriteTilesLevel writes every tile in [tileX1,tileX2] x [tileY1,tileY2]
// at level (levelX, levelY) from the frame buffer.
func (w *TiledWriter) WriteTilesLevel(tileX1, tileX2, tileY1, tileY2, levelX, levelY int) error {
	for ty := tileY1; ty <= tileY2; ty++ {
		for tx := tileX1; tx <= tileX2; tx++ {
			if err := w.WriteTileLevel(tx, ty, levelX, levelY); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeTileLevel packs the pixel region covered by tile (tileX, tileY)
// at level (levelX, levelY) into the raw, channel-interleaved-by-row
// wire format, in channel-name order.
func (w *TiledWriter) encodeTileLevel(tileX, tileY, levelX, levelY, tileWidth, tileHeight int) ([]byte, error) {
	x0 := tileX * int(w.tileDesc.XSize)
	y0 := tileY * int(w.tileDesc.YSize)

	bufSize := 0
	sortedChannels := w.channelList.SortedByName()
	for _, ch := range sortedChannels {
		pixelsInChannel := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		bufSize += pixelsInChannel * ch.Type.Size() * tileHeight
	}

	buf := xdr.NewBufferWriter(bufSize)
	for row := 0; row < tileHeight; row++ {
		y := y0 + row
		for _, ch := range sortedChannels {
			pixelsInChannel := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
			slice := w.frameBuffer.Get(ch.Name)

			switch ch.Type {
			case PixelTypeHalf:
				for i := 0; i < pixelsInChannel; i++ {
					var bits uint16
					if slice != nil {
						bits = slice.GetHalf(x0+i, y).Bits()
					}
					buf.WriteUint16(bits)
				}
			case PixelTypeFloat:
				for i := 0; i < pixelsInChannel; i++ {
					var v float32
					if slice != nil {
						v = slice.GetFloat32(x0+i, y)
					}
					buf.WriteFloat32(v)
				}
			case PixelTypeUint:
				for i := 0; i < pixelsInChannel; i++ {
					var v uint32
					if slice != nil {
						v = slice.GetUint32(x0+i, y)
					}
					buf.WriteUint32(v)
				}
			}
		}
	}
	return buf.Bytes(), nil
}

func (w *TiledWriter) calculateTileSize(tileWidth, tileHeight int) int {
	bytesPerLine := 0
	for i := 0; i < w.channelList.Len(); i++ {
		ch := w.channelList.At(i)
		pixelsInChannel := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		bytesPerLine += pixelsInChannel * ch.Type.Size()
	}
	return bytesPerLine * tileHeight
}

// compressTile dispatches to the codec named by comp.
func (w *TiledWriter) compressTile(rawData []byte, tileWidth, tileHeight int, comp Compression) ([]byte, error) {
	switch comp {
	case CompressionNone:
		return rawData, nil
	case CompressionRLE:
		return w.compressTileRLE(rawData), nil
	case CompressionZIPS, CompressionZIP:
		return w.compressTileZIP(rawData)
	case CompressionPIZ:
		return w.compressTilePIZ(rawData, tileWidth, tileHeight)
	case CompressionPXR24:
		return w.compressTilePXR24(rawData, tileWidth, tileHeight)
	case CompressionB44:
		return w.compressTileB44(rawData, tileWidth, tileHeight, false)
	case CompressionB44A:
		return w.compressTileB44(rawData, tileWidth, tileHeight, true)
	case CompressionDWAA, CompressionDWAB:
		return w.compressTileDWA(rawData, tileWidth, tileHeight, comp == CompressionDWAB)
	default:
		return nil, errors.New("exr: compression not yet implemented for tiles: " + comp.String())
	}
}

func (w *TiledWriter) compressTileRLE(data []byte) []byte {
	encoded := make([]byte, len(data))
	copy(encoded, data)
	predictor.EncodeSIMD(encoded)
	return compression.RLECompress(encoded)
}

func (w *TiledWriter) compressTileZIP(data []byte) ([]byte, error) {
	encoded := make([]byte, len(data))
	copy(encoded, data)
	predictor.EncodeSIMD(encoded)

	var interleaved []byte
	if len(encoded) >= 32 {
		interleaved = compression.InterleaveFast(encoded)
	} else {
		interleaved = compression.Interleave(encoded)
	}

	return compression.ZIPCompressLevel(interleaved, compression.CompressionLevel(w.header.ZIPLevel()))
}

func (w *TiledWriter) compressTilePIZ(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	samplesPerPixel := 0
	for i := 0; i < w.channelList.Len(); i++ {
		switch w.channelList.At(i).Type {
		case PixelTypeHalf:
			samplesPerPixel++
		case PixelTypeFloat, PixelTypeUint:
			samplesPerPixel += 2
		}
	}

	uint16Data := make([]uint16, len(data)/2)
	for i := range uint16Data {
		uint16Data[i] = uint16(data[i*2]) | uint16(data[i*2+1])<<8
	}

	return compression.PIZCompress(uint16Data, tileWidth, tileHeight, samplesPerPixel)
}

func (w *TiledWriter) compressTilePXR24(data []byte, tileWidth, tileHeight int) ([]byte, error) {
	sortedChannels := w.channelList.SortedByName()
	channels := make([]compression.ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.ChannelInfo{
			Type:   pxr24Type(ch.Type),
			Width:  chWidth,
			Height: tileHeight,
		}
	}
	return compression.PXR24Compress(data, channels, tileWidth, tileHeight)
}

func (w *TiledWriter) compressTileB44(data []byte, tileWidth, tileHeight int, flatfields bool) ([]byte, error) {
	sortedChannels := w.channelList.SortedByName()
	channels := make([]compression.B44ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (tileWidth + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.B44ChannelInfo{
			Type:   b44Type(ch.Type),
			Width:  chWidth,
			Height: tileHeight,
		}
	}
	return compression.B44Compress(data, channels, tileWidth, tileHeight, flatfields)
}

func (w *TiledWriter) compressTileDWA(data []byte, tileWidth, tileHeight int, isDWAB bool) ([]byte, error) {
	level := float32(w.header.DWACompressionLevel())
	if isDWAB {
		return compression.CompressDWAB(data, tileWidth, tileHeight, level)
	}
	return compression.CompressDWAA(data, tileWidth, tileHeight, level)
}

// Close finalizes the file. After Close, the TiledWriter must not be
// used.
func (w *TiledWriter) Close() error {
	err := w.writer.Close()
	w.writer = nil
	w.header = nil
	w.frameBuffer = nil
	w.channelList = nil
	return err
}
