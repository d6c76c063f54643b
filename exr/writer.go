package exr

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/mrjoshuak/go-openexr/internal/xdr"
)

// Writer drives the low-level mechanics of producing an EXR file: the
// magic number and version field, the header section, placeholder chunk
// offset tables, and the chunk stream itself. ScanlineWriter, TiledWriter,
// and MultiPartOutputFile build on it; most callers use those instead.
type Writer struct {
	w         io.WriteSeeker
	headers   []*Header
	multiPart bool

	offsetTablePos []int64
	chunkOffsets   [][]int64

	closed bool
}

// ErrPartOutOfRange is returned when a part index passed to a Writer
// method does not name one of its headers.
var ErrPartOutOfRange = errors.New("exr: part index out of range")

// ErrTileAlreadyWritten is returned when a tile chunk is written a
// second time: each tile coordinate must be written exactly once.
var ErrTileAlreadyWritten = errors.New("exr: tile already written")

// NewWriter returns a Writer for a single-part file described by h. It
// writes the magic number, version field, header, and a placeholder
// chunk offset table before returning.
func NewWriter(w io.WriteSeeker, h *Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if h.IsTiled() {
		if err := validateTiledForWrite(h); err != nil {
			return nil, err
		}
	}
	return newWriter(w, []*Header{h}, false)
}

// NewMultiPartWriter returns a Writer for a multi-part file described by
// headers. Any header missing a "name" or "type" attribute has one
// filled in automatically, "type" inferred from IsTiled.
func NewMultiPartWriter(w io.WriteSeeker, headers []*Header) (*Writer, error) {
	if len(headers) == 0 {
		return nil, errors.New("exr: multi-part file needs at least one header")
	}
	for i, h := range headers {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if h.IsTiled() {
			if err := validateTiledForWrite(h); err != nil {
				return nil, err
			}
		}
		if !h.Has(AttrNameName) {
			h.Set(&Attribute{Name: AttrNameName, Type: AttrTypeString, Value: partDefaultName(i)})
		}
		if !h.Has(AttrNameType) {
			h.Set(&Attribute{Name: AttrNameType, Type: AttrTypeString, Value: partTypeFor(h)})
		}
	}
	return newWriter(w, headers, true)
}

func partDefaultName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "part" + string(digits[i])
	}
	n := i
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return "part" + string(b)
}

func partTypeFor(h *Header) string {
	if h.IsTiled() {
		return PartTypeTiled
	}
	return PartTypeScanline
}

func newWriter(w io.WriteSeeker, headers []*Header, multiPart bool) (*Writer, error) {
	anyTiled := false
	for _, h := range headers {
		if h.IsTiled() {
			anyTiled = true
		}
	}
	version := MakeVersionField(2, anyTiled && !multiPart, false, false, multiPart)

	hdr := make([]byte, 8)
	copy(hdr[:4], MagicNumber)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	if _, err := w.Write(hdr); err != nil {
		return nil, err
	}

	buf := xdr.NewBufferWriter(1024)
	for _, h := range headers {
		if err := WriteHeader(buf, h); err != nil {
			return nil, err
		}
	}
	if multiPart {
		buf.WriteString("")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, err
	}

	wr := &Writer{w: w, headers: headers, multiPart: multiPart}
	wr.offsetTablePos = make([]int64, len(headers))
	wr.chunkOffsets = make([][]int64, len(headers))
	for i, h := range headers {
		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		wr.offsetTablePos[i] = pos
		n := h.ChunksInFile()
		wr.chunkOffsets[i] = make([]int64, n)
		if _, err := w.Write(make([]byte, n*8)); err != nil {
			return nil, err
		}
	}
	return wr, nil
}

// Header returns the header for part.
func (w *Writer) Header(part int) *Header {
	if part < 0 || part >= len(w.headers) {
		return nil
	}
	return w.headers[part]
}

// NumParts returns the number of parts the writer was opened with.
func (w *Writer) NumParts() int {
	return len(w.headers)
}

func (w *Writer) chunkHeaderPrefix() int {
	if w.multiPart {
		return 4
	}
	return 0
}

// WriteChunk writes a scanline chunk for part 0 starting at row y.
func (w *Writer) WriteChunk(y int32, data []byte) error {
	return w.WriteChunkPart(0, y, data)
}

// WriteChunkPart writes a scanline chunk for part, whose first row is y.
func (w *Writer) WriteChunkPart(part int, y int32, data []byte) error {
	h := w.Header(part)
	if h == nil {
		return ErrPartOutOfRange
	}
	perChunk := h.Compression().ScanlinesPerChunk()
	yMin := h.DataWindow().Min.Y
	idx := int(y-yMin) / perChunk
	if idx < 0 || idx >= len(w.chunkOffsets[part]) {
		return ErrScanlineOutOfRange
	}

	offset, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.chunkOffsets[part][idx] = offset

	prefix := w.chunkHeaderPrefix()
	hdr := make([]byte, prefix+8)
	if w.multiPart {
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(part))
	}
	binary.LittleEndian.PutUint32(hdr[prefix:prefix+4], uint32(y))
	binary.LittleEndian.PutUint32(hdr[prefix+4:prefix+8], uint32(len(data)))

	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

// WriteTileChunk writes a tile chunk for part 0.
func (w *Writer) WriteTileChunk(tileX, tileY, levelX, levelY int, data []byte) error {
	return w.WriteTileChunkPart(0, tileX, tileY, levelX, levelY, data)
}

// WriteTileChunkPart writes a tile chunk for part.
func (w *Writer) WriteTileChunkPart(part, tileX, tileY, levelX, levelY int, data []byte) error {
	h := w.Header(part)
	if h == nil {
		return ErrPartOutOfRange
	}
	if !h.IsTiled() {
		return ErrNotTiled
	}
	idx := tileChunkIndex(h, tileX, tileY, levelX, levelY)
	if idx < 0 || idx >= len(w.chunkOffsets[part]) {
		return ErrTileOutOfRange
	}
	if w.chunkOffsets[part][idx] != 0 {
		return ErrTileAlreadyWritten
	}

	offset, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.chunkOffsets[part][idx] = offset

	prefix := w.chunkHeaderPrefix()
	hdr := make([]byte, prefix+20)
	if w.multiPart {
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(part))
	}
	binary.LittleEndian.PutUint32(hdr[prefix+0:prefix+4], uint32(tileX))
	binary.LittleEndian.PutUint32(hdr[prefix+4:prefix+8], uint32(tileY))
	binary.LittleEndian.PutUint32(hdr[prefix+8:prefix+12], uint32(levelX))
	binary.LittleEndian.PutUint32(hdr[prefix+12:prefix+16], uint32(levelY))
	binary.LittleEndian.PutUint32(hdr[prefix+16:prefix+20], uint32(len(data)))

	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

// Close patches in the real chunk offsets over each part's placeholder
// offset table, then closes the underlying writer if it supports it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	for i, offsets := range w.chunkOffsets {
		buf := make([]byte, len(offsets)*8)
		for j, off := range offsets {
			binary.LittleEndian.PutUint64(buf[j*8:j*8+8], uint64(off))
		}
		if _, err := w.w.Seek(w.offsetTablePos[i], io.SeekStart); err != nil {
			return err
		}
		if _, err := w.w.Write(buf); err != nil {
			return err
		}
	}

	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
