package exr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mrjoshuak/go-openexr/internal/xdr"
)

// File-level errors.
var (
	ErrInvalidFile   = errors.New("exr: invalid file")
	ErrInvalidHeader = errors.New("exr: invalid or unparsable header")

	// ErrTileMissing is returned by ReadTileChunk when the requested
	// chunk's offset-table entry is zero: the tile was never written,
	// or the offset-table reconstruction scan could not recover it.
	ErrTileMissing = errors.New("exr: tile chunk missing from offset table")
)

// sliceSource is implemented by readers that can hand back a direct,
// zero-copy view into their backing storage (currently only mmapReader).
type sliceSource interface {
	Slice(off, length int64) []byte
}

// File is an opened EXR file: its parsed headers, one per part, and the
// chunk offset tables that locate each part's pixel data. It provides
// the low-level chunk access that ScanlineReader, TiledReader, and their
// deep counterparts build on; most callers use the higher-level readers
// instead of File directly.
type File struct {
	reader      io.ReaderAt
	sliceReader sliceSource
	closer      io.Closer

	headers   []*Header
	offsets   [][]int64
	multiPart bool
	deepFlag  bool
}

// OpenReader parses the EXR file structure (magic number, version,
// headers, and chunk offset tables) available through r. size must be
// the total length of the underlying stream. The returned File does not
// take ownership of r; callers that need Close to release a resource
// should set it via OpenFile or OpenFileMmap instead.
func OpenReader(r io.ReaderAt, size int64) (*File, error) {
	if r == nil || size < 8 {
		return nil, ErrInvalidFile
	}

	bufSize := int64(65536)
	if bufSize > size {
		bufSize = size
	}

	var lastErr error
	for {
		buf := make([]byte, bufSize)
		if _, err := r.ReadAt(buf, 0); err != nil {
			return nil, err
		}

		headers, offsets, multiPart, deepFlag, chunksStart, err := parseFileStructure(buf)
		if err == nil {
			f := &File{
				reader:    r,
				headers:   headers,
				offsets:   offsets,
				multiPart: multiPart,
				deepFlag:  deepFlag,
			}
			if ss, ok := r.(sliceSource); ok {
				f.sliceReader = ss
			}
			f.reconstructOffsetTables(chunksStart)
			return f, nil
		}
		lastErr = err

		if bufSize >= size {
			break
		}
		bufSize *= 8
		if bufSize > size {
			bufSize = size
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, lastErr)
}

// parseFileStructure parses everything up to and including the chunk
// offset tables from buf. It returns an error whenever buf does not
// hold enough bytes to finish, so OpenReader can retry with more data.
// chunksStart is the file offset immediately following the last offset
// table, i.e. where the first chunk body begins.
func parseFileStructure(buf []byte) (headers []*Header, offsets [][]int64, multiPart, deepFlag bool, chunksStart int64, err error) {
	r := xdr.NewReader(buf)

	magic, err := r.ReadBytes(4)
	if err != nil {
		return nil, nil, false, false, 0, err
	}
	if !bytes.Equal(magic, MagicNumber) {
		return nil, nil, false, false, 0, ErrBadMagicNumber
	}

	versionRaw, err := r.ReadUint32()
	if err != nil {
		return nil, nil, false, false, 0, err
	}
	vf := parseVersionField(versionRaw)
	multiPart = vf.multiPart
	deepFlag = vf.deep

	if multiPart {
		for {
			h, herr := ReadHeader(r)
			if herr != nil {
				return nil, nil, false, false, 0, herr
			}
			if len(h.Attributes()) == 0 {
				break
			}
			headers = append(headers, h)
		}
	} else {
		h, herr := ReadHeader(r)
		if herr != nil {
			return nil, nil, false, false, 0, herr
		}
		// The version word's TILED_FLAG is the authoritative tiled
		// signal for a single-part file; the "tiles" attribute is
		// also present on a well-formed file but isTiled must not
		// depend on it alone.
		h.setVersionTiled(vf.tiled)
		headers = append(headers, h)
	}

	if len(headers) == 0 {
		return nil, nil, false, false, 0, ErrInvalidHeader
	}

	offsets = make([][]int64, len(headers))
	for i, h := range headers {
		n := h.ChunksInFile()
		if n < 0 {
			return nil, nil, false, false, 0, ErrInvalidHeader
		}
		tbl := make([]int64, n)
		for j := 0; j < n; j++ {
			v, oerr := r.ReadInt64()
			if oerr != nil {
				return nil, nil, false, false, 0, oerr
			}
			tbl[j] = v
		}
		offsets[i] = tbl
	}

	return headers, offsets, multiPart, deepFlag, int64(r.Pos()), nil
}

// reconstructOffsetTables runs the integrity scan spec'd for the tile
// offset table: if every part's table is already fully populated, it
// does nothing. Otherwise it walks the chunk stream sequentially from
// chunksStart, interpreting each chunk as a tile body (scanline parts
// use the 8-byte y/dataSize layout instead) and records its offset in
// the owning part's table. The scan stops silently on the first read
// or validation failure, leaving any unrecovered entries at 0 -- the
// offset table was written last, so a truncated file may still contain
// fully-written tile bodies that can be found this way.
func (f *File) reconstructOffsetTables(chunksStart int64) {
	needed := false
	for _, tbl := range f.offsets {
		for _, off := range tbl {
			if off <= 0 {
				needed = true
			}
		}
	}
	if !needed {
		return
	}

	prefix := f.chunkHeaderPrefix()
	pos := chunksStart
	for {
		part := 0
		if f.multiPart {
			var pbuf [4]byte
			if _, err := f.reader.ReadAt(pbuf[:], pos); err != nil {
				return
			}
			part = int(binary.LittleEndian.Uint32(pbuf[:]))
			if part < 0 || part >= len(f.headers) {
				return
			}
		}
		h := f.headers[part]

		if h.IsTiled() {
			const headerSize = 20
			hdr := make([]byte, headerSize)
			if _, err := f.reader.ReadAt(hdr, pos+prefix); err != nil {
				return
			}
			tileX := int(int32(binary.LittleEndian.Uint32(hdr[0:4])))
			tileY := int(int32(binary.LittleEndian.Uint32(hdr[4:8])))
			levelX := int(int32(binary.LittleEndian.Uint32(hdr[8:12])))
			levelY := int(int32(binary.LittleEndian.Uint32(hdr[12:16])))
			packedSize := int64(binary.LittleEndian.Uint32(hdr[16:20]))
			if packedSize < 0 {
				return
			}

			idx := tileChunkIndex(h, tileX, tileY, levelX, levelY)
			if idx < 0 || idx >= len(f.offsets[part]) {
				return
			}
			f.offsets[part][idx] = pos
			pos += prefix + headerSize + packedSize
		} else {
			const headerSize = 8
			hdr := make([]byte, headerSize)
			if _, err := f.reader.ReadAt(hdr, pos+prefix); err != nil {
				return
			}
			y := int(int32(binary.LittleEndian.Uint32(hdr[0:4])))
			packedSize := int64(binary.LittleEndian.Uint32(hdr[4:8]))
			if packedSize < 0 {
				return
			}

			perChunk := h.Compression().ScanlinesPerChunk()
			yMin := int(h.DataWindow().Min.Y)
			idx := (y - yMin) / perChunk
			if idx < 0 || idx >= len(f.offsets[part]) {
				return
			}
			f.offsets[part][idx] = pos
			pos += prefix + headerSize + packedSize
		}
	}
}

// Header returns the header for part, or nil if part is out of range.
func (f *File) Header(part int) *Header {
	if part < 0 || part >= len(f.headers) {
		return nil
	}
	return f.headers[part]
}

// NumParts returns the number of parts in the file (1 for a single-part
// file).
func (f *File) NumParts() int {
	return len(f.headers)
}

// IsMultiPart reports whether the file uses the multi-part chunk layout.
func (f *File) IsMultiPart() bool {
	return f.multiPart
}

// IsDeep reports whether part 0 stores deep (variable samples per
// pixel) data.
func (f *File) IsDeep() bool {
	if f.deepFlag {
		return true
	}
	h := f.Header(0)
	if h == nil {
		return false
	}
	if a := h.Get(AttrNameType); a != nil {
		if t, ok := a.Value.(string); ok {
			return t == PartTypeDeepScanline || t == PartTypeDeepTiled
		}
	}
	return false
}

// OffsetsRef returns the chunk offset table for part, or nil if part is
// out of range. The returned slice must not be modified by the caller.
func (f *File) OffsetsRef(part int) []int64 {
	if part < 0 || part >= len(f.offsets) {
		return nil
	}
	return f.offsets[part]
}

// chunkHeaderPrefix returns the size of the part-index prefix that
// precedes every chunk header in a multi-part file.
func (f *File) chunkHeaderPrefix() int64 {
	if f.multiPart {
		return 4
	}
	return 0
}

// ReadTileChunk reads the raw, still-compressed payload of tile chunk
// chunkIndex from part. The returned int32 is the tile's row coordinate
// as recorded in the chunk header.
func (f *File) ReadTileChunk(part, chunkIndex int) (int32, []byte, error) {
	offsets := f.OffsetsRef(part)
	if chunkIndex < 0 || chunkIndex >= len(offsets) {
		return 0, nil, ErrTileOutOfRange
	}
	offset := offsets[chunkIndex]
	if offset <= 0 {
		return 0, nil, ErrTileMissing
	}
	prefix := f.chunkHeaderPrefix()
	const headerSize = 20 // tileX, tileY, levelX, levelY, packedSize

	hdr := make([]byte, prefix+headerSize)
	if _, err := f.reader.ReadAt(hdr, offset); err != nil {
		return 0, nil, err
	}
	b := hdr[prefix:]
	tileY := int32(binary.LittleEndian.Uint32(b[4:8]))
	packedSize := int64(binary.LittleEndian.Uint32(b[16:20]))

	data := make([]byte, packedSize)
	if _, err := f.reader.ReadAt(data, offset+prefix+headerSize); err != nil {
		return 0, nil, err
	}
	return tileY, data, nil
}

// ReadDeepChunk reads the still-compressed sample-count table and pixel
// data of deep scanline chunk chunkIndex from part.
func (f *File) ReadDeepChunk(part, chunkIndex int) (int32, []byte, []byte, error) {
	offsets := f.OffsetsRef(part)
	if chunkIndex < 0 || chunkIndex >= len(offsets) {
		return 0, nil, nil, ErrScanlineOutOfRange
	}
	offset := offsets[chunkIndex]
	prefix := f.chunkHeaderPrefix()
	const headerSize = 20 // y, sampleCountTableSize(8), pixelDataSize(8)

	hdr := make([]byte, prefix+headerSize)
	if _, err := f.reader.ReadAt(hdr, offset); err != nil {
		return 0, nil, nil, err
	}
	b := hdr[prefix:]
	y := int32(binary.LittleEndian.Uint32(b[0:4]))
	sampleCountSize := int64(binary.LittleEndian.Uint64(b[4:12]))
	pixelDataSize := int64(binary.LittleEndian.Uint64(b[12:20]))

	base := offset + prefix + headerSize
	sampleCounts := make([]byte, sampleCountSize)
	if _, err := f.reader.ReadAt(sampleCounts, base); err != nil {
		return 0, nil, nil, err
	}
	pixelData := make([]byte, pixelDataSize)
	if _, err := f.reader.ReadAt(pixelData, base+sampleCountSize); err != nil {
		return 0, nil, nil, err
	}
	return y, sampleCounts, pixelData, nil
}

// ReadDeepTileChunk reads the still-compressed sample-count table and
// pixel data of deep tile chunk chunkIndex from part.
func (f *File) ReadDeepTileChunk(part, chunkIndex int) (int32, []byte, []byte, error) {
	offsets := f.OffsetsRef(part)
	if chunkIndex < 0 || chunkIndex >= len(offsets) {
		return 0, nil, nil, ErrTileOutOfRange
	}
	offset := offsets[chunkIndex]
	prefix := f.chunkHeaderPrefix()
	const headerSize = 32 // tileX, tileY, levelX, levelY, sampleCountTableSize(8), pixelDataSize(8)

	hdr := make([]byte, prefix+headerSize)
	if _, err := f.reader.ReadAt(hdr, offset); err != nil {
		return 0, nil, nil, err
	}
	b := hdr[prefix:]
	tileY := int32(binary.LittleEndian.Uint32(b[4:8]))
	sampleCountSize := int64(binary.LittleEndian.Uint64(b[16:24]))
	pixelDataSize := int64(binary.LittleEndian.Uint64(b[24:32]))

	base := offset + prefix + headerSize
	sampleCounts := make([]byte, sampleCountSize)
	if _, err := f.reader.ReadAt(sampleCounts, base); err != nil {
		return 0, nil, nil, err
	}
	pixelData := make([]byte, pixelDataSize)
	if _, err := f.reader.ReadAt(pixelData, base+sampleCountSize); err != nil {
		return 0, nil, nil, err
	}
	return tileY, sampleCounts, pixelData, nil
}

// Close releases the resource backing the file, if OpenFile or
// OpenFileMmap allocated one. Files opened with OpenReader directly
// leave the underlying reader's lifetime to the caller.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
