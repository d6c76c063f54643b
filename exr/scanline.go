package exr

import (
	"errors"
	"io"
	"sync"

	"github.com/mrjoshuak/go-openexr/compression"
	"github.com/mrjoshuak/go-openexr/internal/predictor"
)

// Scanline I/O errors.
var (
	ErrNoFrameBuffer      = errors.New("exr: no frame buffer set")
	ErrScanlineOutOfRange = errors.New("exr: scanline out of range")
)

// zipDecompressBuf is a reusable buffer for ZIP decompression, pooled
// because ScanlineReader's decompress path runs inside
// ParallelForWithError goroutines and cannot share a single buffer.
type zipDecompressBuf struct {
	data []byte
}

var zipDecompressBufPool = sync.Pool{
	New: func() any {
		return &zipDecompressBuf{}
	},
}

// channelInfo caches per-channel metadata to avoid map lookups in the
// hot decode loop.
type channelInfo struct {
	ch              Channel
	slice           *Slice
	pixelsInChannel int
	bytesInChannel  int
}

// ScanlineReader reads scanline images from an EXR file.
type ScanlineReader struct {
	file        *File
	part        int
	header      *Header
	frameBuffer *FrameBuffer
	dataWindow  Box2i
	channelList *ChannelList

	sortedChannels []Channel
	cachedChannels []channelInfo
	chunkHeaderBuf []byte
	chunkDataBuf   []byte

	flevelOnce sync.Once
}

// NewScanlineReader returns a reader for part 0 of f.
func NewScanlineReader(f *File) (*ScanlineReader, error) {
	return NewScanlineReaderPart(f, 0)
}

// NewScanlineReaderPart returns a reader for part of f.
func NewScanlineReaderPart(f *File, part int) (*ScanlineReader, error) {
	if f == nil {
		return nil, ErrInvalidFile
	}
	h := f.Header(part)
	if h == nil {
		return nil, errors.New("exr: invalid part index")
	}
	if h.IsTiled() {
		return nil, errors.New("exr: cannot use ScanlineReader for tiled images")
	}

	cl := h.Channels()
	if cl == nil || cl.Len() == 0 {
		return nil, errors.New("exr: missing or empty channels attribute")
	}
	for i := 0; i < cl.Len(); i++ {
		ch := cl.At(i)
		if ch.Type.Size() == 0 {
			return nil, errors.New("exr: channel has unknown pixel type")
		}
		if ch.XSampling == 0 || ch.YSampling == 0 {
			return nil, errors.New("exr: channel has invalid sampling (zero)")
		}
	}

	dw := h.DataWindow()
	width := int(dw.Width())
	height := int(dw.Height())
	if width <= 0 || height <= 0 {
		return nil, errors.New("exr: invalid data window dimensions")
	}
	const maxDimension = 65536
	if width > maxDimension || height > maxDimension {
		return nil, errors.New("exr: data window dimensions too large")
	}

	sortedChannels := cl.SortedByName()

	chunkHeaderSize := 8
	if f.IsMultiPart() {
		chunkHeaderSize = 12
	}

	comp := h.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()
	bytesPerLine := 0
	for i := 0; i < cl.Len(); i++ {
		ch := cl.At(i)
		pixelsInChannel := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		bytesPerLine += pixelsInChannel * ch.Type.Size()
	}
	maxChunkSize := bytesPerLine * linesPerChunk

	return &ScanlineReader{
		file:           f,
		part:           part,
		header:         h,
		dataWindow:     dw,
		channelList:    cl,
		sortedChannels: sortedChannels,
		chunkHeaderBuf: make([]byte, chunkHeaderSize),
		chunkDataBuf:   make([]byte, 0, maxChunkSize),
	}, nil
}

// Header returns the header for this part.
func (r *ScanlineReader) Header() *Header { return r.header }

// DataWindow returns the data window for this part.
func (r *ScanlineReader) DataWindow() Box2i { return r.dataWindow }

// SetFrameBuffer sets the frame buffer to read pixels into.
func (r *ScanlineReader) SetFrameBuffer(fb *FrameBuffer) {
	r.frameBuffer = fb

	width := int(r.dataWindow.Width())
	r.cachedChannels = make([]channelInfo, 0, len(r.sortedChannels))
	for _, ch := range r.sortedChannels {
		pixelsInChannel := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		bytesInChannel := pixelsInChannel * ch.Type.Size()
		r.cachedChannels = append(r.cachedChannels, channelInfo{
			ch:              ch,
			slice:           fb.Get(ch.Name),
			pixelsInChannel: pixelsInChannel,
			bytesInChannel:  bytesInChannel,
		})
	}
}

// readChunkReuse reads a chunk using cached buffers to avoid allocation,
// taking the mmap zero-copy fast path when available.
func (r *ScanlineReader) readChunkReuse(chunkIndex int) (int32, []byte, error) {
	offsets := r.file.OffsetsRef(r.part)
	if chunkIndex < 0 || chunkIndex >= len(offsets) {
		return 0, nil, errors.New("exr: invalid chunk index")
	}
	offset := offsets[chunkIndex]

	headerSize := int64(8)
	headerStart := 0
	if r.file.IsMultiPart() {
		headerSize = 12
		headerStart = 4
	}

	if r.file.sliceReader != nil {
		header := r.file.sliceReader.Slice(offset, headerSize)
		if header == nil {
			return 0, nil, errors.New("exr: failed to read chunk header")
		}
		y := int32(header[headerStart]) | int32(header[headerStart+1])<<8 |
			int32(header[headerStart+2])<<16 | int32(header[headerStart+3])<<24
		packedSize := int64(header[headerStart+4]) | int64(header[headerStart+5])<<8 |
			int64(header[headerStart+6])<<16 | int64(header[headerStart+7])<<24

		data := r.file.sliceReader.Slice(offset+headerSize, packedSize)
		if data == nil {
			return 0, nil, errors.New("exr: failed to read chunk data")
		}
		return y, data, nil
	}

	if _, err := r.file.reader.ReadAt(r.chunkHeaderBuf, offset); err != nil {
		return 0, nil, err
	}
	y := int32(r.chunkHeaderBuf[headerStart]) | int32(r.chunkHeaderBuf[headerStart+1])<<8 |
		int32(r.chunkHeaderBuf[headerStart+2])<<16 | int32(r.chunkHeaderBuf[headerStart+3])<<24
	packedSize := int(r.chunkHeaderBuf[headerStart+4]) | int(r.chunkHeaderBuf[headerStart+5])<<8 |
		int(r.chunkHeaderBuf[headerStart+6])<<16 | int(r.chunkHeaderBuf[headerStart+7])<<24

	if cap(r.chunkDataBuf) < packedSize {
		r.chunkDataBuf = make([]byte, packedSize)
	} else {
		r.chunkDataBuf = r.chunkDataBuf[:packedSize]
	}
	if _, err := r.file.reader.ReadAt(r.chunkDataBuf, offset+headerSize); err != nil {
		return 0, nil, err
	}
	return y, r.chunkDataBuf, nil
}

// chunkInfo holds pre-read chunk data for parallel processing.
type chunkInfo struct {
	index    int
	chunkY   int32
	data     []byte
	numLines int
}

// ReadPixels reads scanlines y1 through y2 (inclusive) into the frame buffer.
func (r *ScanlineReader) ReadPixels(y1, y2 int) error {
	if r.frameBuffer == nil {
		return ErrNoFrameBuffer
	}

	minY := int(r.dataWindow.Min.Y)
	maxY := int(r.dataWindow.Max.Y)
	if y1 < minY || y2 > maxY || y1 > y2 {
		return ErrScanlineOutOfRange
	}

	comp := r.header.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()

	firstChunk := (y1 - minY) / linesPerChunk
	lastChunk := (y2 - minY) / linesPerChunk
	numChunks := lastChunk - firstChunk + 1

	config := GetParallelConfig()
	numWorkers := effectiveWorkers(config)
	useParallel := numWorkers > 1 && numChunks >= config.GrainSize && comp != CompressionNone

	if !useParallel {
		return r.readPixelsSequential(y1, y2)
	}
	return r.readPixelsParallel(firstChunk, lastChunk, minY, maxY, comp, linesPerChunk)
}

func (r *ScanlineReader) readPixelsSequential(y1, y2 int) error {
	minY := int(r.dataWindow.Min.Y)
	maxY := int(r.dataWindow.Max.Y)

	comp := r.header.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()

	firstChunk := (y1 - minY) / linesPerChunk
	lastChunk := (y2 - minY) / linesPerChunk

	for chunkIdx := firstChunk; chunkIdx <= lastChunk; chunkIdx++ {
		chunkY, data, err := r.readChunkReuse(chunkIdx)
		if err != nil {
			return err
		}

		chunkStartY := minY + chunkIdx*linesPerChunk
		chunkEndY := chunkStartY + linesPerChunk - 1
		if chunkEndY > maxY {
			chunkEndY = maxY
		}
		numLinesInChunk := chunkEndY - chunkStartY + 1

		decompressedData, err := r.decompressChunk(data, numLinesInChunk, comp)
		if err != nil {
			return err
		}
		if err := r.decodeUncompressedChunk(int(chunkY), decompressedData); err != nil {
			return err
		}
	}

	return nil
}

func (r *ScanlineReader) readPixelsParallel(firstChunk, lastChunk, minY, maxY int, comp Compression, linesPerChunk int) error {
	numChunks := lastChunk - firstChunk + 1

	chunks := make([]chunkInfo, numChunks)
	for i := 0; i < numChunks; i++ {
		chunkIdx := firstChunk + i
		chunkY, data, err := r.readChunkReuse(chunkIdx)
		if err != nil {
			return err
		}

		chunkStartY := minY + chunkIdx*linesPerChunk
		chunkEndY := chunkStartY + linesPerChunk - 1
		if chunkEndY > maxY {
			chunkEndY = maxY
		}

		dataCopy := make([]byte, len(data))
		copy(dataCopy, data)

		chunks[i] = chunkInfo{
			index:    chunkIdx,
			chunkY:   chunkY,
			data:     dataCopy,
			numLines: chunkEndY - chunkStartY + 1,
		}
	}

	var mu sync.Mutex
	var firstErr error

	err := ParallelForWithError(numChunks, func(i int) error {
		chunk := &chunks[i]
		decompressedData, err := r.decompressChunk(chunk.data, chunk.numLines, comp)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return err
		}
		if err := r.decodeUncompressedChunk(int(chunk.chunkY), decompressedData); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return firstErr
}

// decompressChunk decompresses data by comp. It is safe for concurrent use.
func (r *ScanlineReader) decompressChunk(data []byte, numLines int, comp Compression) ([]byte, error) {
	switch comp {
	case CompressionNone:
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	case CompressionRLE:
		return r.decompressRLE(data, numLines)
	case CompressionZIPS, CompressionZIP:
		return r.decompressZIP(data, numLines)
	case CompressionPIZ:
		return r.decompressPIZ(data, numLines)
	case CompressionPXR24:
		return r.decompressPXR24(data, numLines)
	case CompressionB44, CompressionB44A:
		return r.decompressB44(data, numLines)
	case CompressionDWAA, CompressionDWAB:
		return r.decompressDWA(data, numLines)
	case CompressionHTJ2K256, CompressionHTJ2K32:
		return r.decompressHTJ2K(data, numLines)
	default:
		return nil, errors.New("exr: compression not yet implemented: " + comp.String())
	}
}

// decodeUncompressedChunk decodes numLines scanlines starting at chunkY
// from uncompressed data into the frame buffer.
func (r *ScanlineReader) decodeUncompressedChunk(chunkY int, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	minY := int(r.dataWindow.Min.Y)
	maxY := int(r.dataWindow.Max.Y)
	minX := int(r.dataWindow.Min.X)

	comp := r.header.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()
	numLines := linesPerChunk
	if chunkY+numLines-1 > maxY {
		numLines = maxY - chunkY + 1
	}

	channelInfos := r.cachedChannels
	pos := 0

	for lineIdx := 0; lineIdx < numLines; lineIdx++ {
		y := chunkY + lineIdx
		if y < minY || y > maxY {
			continue
		}

		for i := range channelInfos {
			ci := &channelInfos[i]
			if ci.slice == nil {
				pos += ci.bytesInChannel
				continue
			}
			if pos+ci.bytesInChannel > len(data) {
				return errors.New("exr: truncated chunk data")
			}
			switch ci.ch.Type {
			case PixelTypeHalf:
				ci.slice.WriteRowHalfBytes(y, data[pos:pos+ci.bytesInChannel], minX, ci.pixelsInChannel)
			case PixelTypeFloat:
				ci.slice.WriteRowFloat(y, data[pos:pos+ci.bytesInChannel], minX, ci.pixelsInChannel)
			case PixelTypeUint:
				ci.slice.WriteRowUint(y, data[pos:pos+ci.bytesInChannel], minX, ci.pixelsInChannel)
			}
			pos += ci.bytesInChannel
		}
	}

	return nil
}

// calculateChunkSize returns the uncompressed size of a chunk of numLines
// scanlines.
func (r *ScanlineReader) calculateChunkSize(numLines int) int {
	width := int(r.dataWindow.Width())
	bytesPerLine := 0
	for i := 0; i < r.channelList.Len(); i++ {
		ch := r.channelList.At(i)
		pixelsInChannel := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		bytesPerLine += pixelsInChannel * ch.Type.Size()
	}
	return bytesPerLine * numLines
}

// decompressRLE reverses RLE compress -> predictor.
func (r *ScanlineReader) decompressRLE(data []byte, numLines int) ([]byte, error) {
	expectedSize := r.calculateChunkSize(numLines)
	decompressed, err := compression.RLEDecompress(data, expectedSize)
	if err != nil {
		return nil, err
	}
	predictor.DecodeSIMD(decompressed)
	return decompressed, nil
}

// decompressZIP reverses zlib compress -> interleave -> predictor. Safe
// for concurrent use via zipDecompressBufPool.
func (r *ScanlineReader) decompressZIP(data []byte, numLines int) ([]byte, error) {
	expectedSize := r.calculateChunkSize(numLines)

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

// decompressPIZ reverses wavelet transform + Huffman coding of 16-bit
// samples. Half channels contribute one 16-bit sample per pixel; Float
// and Uint channels contribute two.
func (r *ScanlineReader) decompressPIZ(data []byte, numLines int) ([]byte, error) {
	width := int(r.dataWindow.Width())

	samplesPerPixel := 0
	for i := 0; i < r.channelList.Len(); i++ {
		switch r.channelList.At(i).Type {
		case PixelTypeHalf:
			samplesPerPixel++
		case PixelTypeFloat, PixelTypeUint:
			samplesPerPixel += 2
		}
	}

	samples, err := compression.PIZDecompress(data, width, numLines, samplesPerPixel)
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

// decompressPXR24 reverses the 24-bit float packing + zlib pipeline.
func (r *ScanlineReader) decompressPXR24(data []byte, numLines int) ([]byte, error) {
	width := int(r.dataWindow.Width())
	expectedSize := r.calculateChunkSize(numLines)

	sortedChannels := r.channelList.SortedByName()
	channels := make([]compression.ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.ChannelInfo{
			Type:   pxr24Type(ch.Type),
			Width:  chWidth,
			Height: numLines,
		}
	}

	return compression.PXR24Decompress(data, channels, width, numLines, expectedSize)
}

// decompressB44 reverses B44/B44A block quantization.
func (r *ScanlineReader) decompressB44(data []byte, numLines int) ([]byte, error) {
	width := int(r.dataWindow.Width())
	expectedSize := r.calculateChunkSize(numLines)

	sortedChannels := r.channelList.SortedByName()
	channels := make([]compression.B44ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.B44ChannelInfo{
			Type:   b44Type(ch.Type),
			Width:  chWidth,
			Height: numLines,
		}
	}

	return compression.B44Decompress(data, channels, width, numLines, expectedSize)
}

// decompressDWA reverses DWAA/DWAB block transform coding. A single
// decompressor handles both variants.
func (r *ScanlineReader) decompressDWA(data []byte, numLines int) ([]byte, error) {
	width := int(r.dataWindow.Width())
	expectedSize := r.calculateChunkSize(numLines)

	dst := make([]byte, expectedSize)
	if err := compression.DecompressDWAA(data, dst, width, numLines); err != nil {
		return nil, err
	}
	return dst, nil
}

// decompressHTJ2K reverses HTJ2K block coding.
func (r *ScanlineReader) decompressHTJ2K(data []byte, numLines int) ([]byte, error) {
	width := int(r.dataWindow.Width())

	sortedChannels := r.channelList.SortedByName()
	channels := make([]compression.HTJ2KChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		chHeight := (numLines + int(ch.YSampling) - 1) / int(ch.YSampling)
		channels[i] = compression.HTJ2KChannelInfo{
			Type:      htj2kType(ch.Type),
			Width:     chWidth,
			Height:    chHeight,
			XSampling: int(ch.XSampling),
			YSampling: int(ch.YSampling),
			Name:      ch.Name,
		}
	}

	expectedSize := r.calculateChunkSize(numLines)
	return compression.HTJ2KDecompress(data, expectedSize, channels)
}

func pxr24Type(t PixelType) int {
	switch t {
	case PixelTypeHalf:
		return 1
	case PixelTypeFloat:
		return 2
	default:
		return 0
	}
}

func b44Type(t PixelType) int {
	switch t {
	case PixelTypeHalf:
		return 1
	case PixelTypeFloat:
		return 2
	default:
		return 0
	}
}

func htj2kType(t PixelType) int {
	switch t {
	case PixelTypeHalf:
		return compression.HTJ2KPixelTypeHalf
	case PixelTypeFloat:
		return compression.HTJ2KPixelTypeFloat
	default:
		return compression.HTJ2KPixelTypeUint
	}
}

// ScanlineWriter writes scanline images to an EXR file.
type ScanlineWriter struct {
	writer      *Writer
	header      *Header
	frameBuffer *FrameBuffer
	dataWindow  Box2i
	channelList *ChannelList
	currentY    int32
}

// NewScanlineWriter returns a writer for a single-part scanline file
// described by h.
func NewScanlineWriter(w io.WriteSeeker, h *Header) (*ScanlineWriter, error) {
	if h.IsTiled() {
		return nil, errors.New("exr: cannot use ScanlineWriter for tiled images")
	}

	writer, err := NewWriter(w, h)
	if err != nil {
		return nil, err
	}

	return &ScanlineWriter{
		writer:      writer,
		header:      h,
		dataWindow:  h.DataWindow(),
		channelList: h.Channels(),
		currentY:    h.DataWindow().Min.Y,
	}, nil
}

// Header returns the header for this file.
func (w *ScanlineWriter) Header() *Header { return w.header }

// SetFrameBuffer sets the frame buffer to write pixels from.
func (w *ScanlineWriter) SetFrameBuffer(fb *FrameBuffer) {
	w.frameBuffer = fb
}

// writeChunkInfo holds data for a chunk to be written.
type writeChunkInfo struct {
	chunkStart int
	chunkEnd   int
	rawData    []byte
	compressed []byte
	err        error
}

// WritePixels writes scanlines y1 through y2 (inclusive) from the frame
// buffer, dispatching to the header's compression method.
func (w *ScanlineWriter) WritePixels(y1, y2 int) error {
	if w.frameBuffer == nil {
		return ErrNoFrameBuffer
	}

	minY := int(w.dataWindow.Min.Y)
	maxY := int(w.dataWindow.Max.Y)
	if y1 < minY || y2 > maxY || y1 > y2 {
		return ErrScanlineOutOfRange
	}

	comp := w.header.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()

	numChunks := 0
	for y := y1; y <= y2; {
		chunkEnd := y + linesPerChunk - 1
		if chunkEnd > y2 {
			chunkEnd = y2
		}
		if chunkEnd > maxY {
			chunkEnd = maxY
		}
		numChunks++
		y = chunkEnd + 1
	}

	config := GetParallelConfig()
	numWorkers := effectiveWorkers(config)
	useParallel := numWorkers > 1 && numChunks >= config.GrainSize

	if !useParallel {
		return w.writePixelsSequential(y1, y2)
	}
	return w.writePixelsParallel(y1, y2, minY, maxY, comp, linesPerChunk, numChunks)
}

func (w *ScanlineWriter) writePixelsSequential(y1, y2 int) error {
	maxY := int(w.dataWindow.Max.Y)

	comp := w.header.Compression()
	linesPerChunk := comp.ScanlinesPerChunk()

	for y := y1; y <= y2; {
		chunkStart := y
		chunkEnd := chunkStart + linesPerChunk - 1
		if chunkEnd > y2 {
			chunkEnd = y2
		}
		if chunkEnd > maxY {
			chunkEnd = maxY
		}

		rawData, err := w.encodeUncompressedChunk(chunkStart, chunkEnd)
		if err != nil {
			return err
		}

		numLines := chunkEnd - chunkStart + 1
		data, err := w.compressChunk(rawData, numLines, comp)
		if err != nil {
			return err
		}

		if err := w.writer.WriteChunk(int32(chunkStart), data); err != nil {
			return err
		}

		y = chunkEnd + 1
	}

	return nil
}

func (w *ScanlineWriter) writePixelsParallel(y1, y2, minY, maxY int, comp Compression, linesPerChunk, numChunks int) error {
	chunks := make([]writeChunkInfo, numChunks)
	y := y1
	for i := 0; i < numChunks; i++ {
		chunkStart := y
		chunkEnd := chunkStart + linesPerChunk - 1
		if chunkEnd > y2 {
			chunkEnd = y2
		}
		if chunkEnd > maxY {
			chunkEnd = maxY
		}
		chunks[i] = writeChunkInfo{chunkStart: chunkStart, chunkEnd: chunkEnd}
		y = chunkEnd + 1
	}

	err := ParallelForWithError(numChunks, func(i int) error {
		rawData, err := w.encodeUncompressedChunk(chunks[i].chunkStart, chunks[i].chunkEnd)
		if err != nil {
			chunks[i].err = err
			return err
		}
		chunks[i].rawData = rawData
		return nil
	})
	if err != nil {
		return err
	}

	err = ParallelForWithError(numChunks, func(i int) error {
		chunk := &chunks[i]
		numLines := chunk.chunkEnd - chunk.chunkStart + 1
		compressed, compErr := w.compressChunk(chunk.rawData, numLines, comp)
		if compErr != nil {
			chunk.err = compErr
			return compErr
		}
		chunk.compressed = compressed
		return nil
	})
	if err != nil {
		return err
	}

	for i := 0; i < numChunks; i++ {
		chunk := &chunks[i]
		if chunk.err != nil {
			return chunk.err
		}
		if err := w.writer.WriteChunk(int32(chunk.chunkStart), chunk.compressed); err != nil {
			return err
		}
	}

	return nil
}

// compressChunk compresses rawData by comp. It is safe for concurrent use.
func (w *ScanlineWriter) compressChunk(rawData []byte, numLines int, comp Compression) ([]byte, error) {
	switch comp {
	case CompressionNone:
		return rawData, nil
	case CompressionRLE:
		return w.compressRLE(rawData), nil
	case CompressionZIPS, CompressionZIP:
		return w.compressZIP(rawData)
	case CompressionPIZ:
		return w.compressPIZ(rawData, numLines)
	case CompressionPXR24:
		return w.compressPXR24(rawData, numLines)
	case CompressionB44:
		return w.compressB44(rawData, numLines, false)
	case CompressionB44A:
		return w.compressB44(rawData, numLines, true)
	case CompressionDWAA:
		return w.compressDWA(rawData, numLines, false)
	case CompressionDWAB:
		return w.compressDWA(rawData, numLines, true)
	case CompressionHTJ2K256:
		return w.compressHTJ2K(rawData, numLines, 128)
	case CompressionHTJ2K32:
		return w.compressHTJ2K(rawData, numLines, 32)
	default:
		return nil, errors.New("exr: compression not yet implemented: " + comp.String())
	}
}

// encodeUncompressedChunk packs scanlines y1 through y2 into the raw,
// channel-interleaved-by-row wire format, in channel-name order.
func (w *ScanlineWriter) encodeUncompressedChunk(y1, y2 int) ([]byte, error) {
	width := int(w.dataWindow.Width())
	minX := int(w.dataWindow.Min.X)

	bufSize := 0
	for i := 0; i < w.channelList.Len(); i++ {
		ch := w.channelList.At(i)
		pixelsInChannel := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		bufSize += pixelsInChannel * ch.Type.Size() * (y2 - y1 + 1)
	}

	output := make([]byte, bufSize)
	sortedChannels := w.channelList.SortedByName()
	halfBuf := make([]uint16, width)
	pos := 0

	for y := y1; y <= y2; y++ {
		for _, ch := range sortedChannels {
			pixelsInChannel := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
			bytesInChannel := pixelsInChannel * ch.Type.Size()

			slice := w.frameBuffer.Get(ch.Name)
			if slice == nil {
				pos += bytesInChannel
				continue
			}

			switch ch.Type {
			case PixelTypeHalf:
				slice.ReadRowHalf(y, halfBuf, minX, pixelsInChannel)
				for i := 0; i < pixelsInChannel; i++ {
					output[pos] = byte(halfBuf[i])
					output[pos+1] = byte(halfBuf[i] >> 8)
					pos += 2
				}
			case PixelTypeFloat:
				slice.ReadRowFloat(y, output[pos:pos+bytesInChannel], minX, pixelsInChannel)
				pos += bytesInChannel
			case PixelTypeUint:
				slice.ReadRowUint(y, output[pos:pos+bytesInChannel], minX, pixelsInChannel)
				pos += bytesInChannel
			}
		}
	}

	return output, nil
}

// compressRLE applies the predictor then RLE-compresses.
func (w *ScanlineWriter) compressRLE(data []byte) []byte {
	encoded := make([]byte, len(data))
	copy(encoded, data)
	predictor.EncodeSIMD(encoded)
	return compression.RLECompress(encoded)
}

// compressZIP applies the predictor, interleaves, then zlib-compresses
// at the header's configured level.
func (w *ScanlineWriter) compressZIP(data []byte) ([]byte, error) {
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

// compressPIZ wavelet-transforms and Huffman-codes 16-bit samples. Half
// channels contribute one 16-bit sample per pixel; Float and Uint
// channels contribute two.
func (w *ScanlineWriter) compressPIZ(data []byte, numLines int) ([]byte, error) {
	width := int(w.dataWindow.Width())

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

	return compression.PIZCompress(uint16Data, width, numLines, samplesPerPixel)
}

// compressPXR24 packs floats to 24 bits and zlib-compresses.
func (w *ScanlineWriter) compressPXR24(data []byte, numLines int) ([]byte, error) {
	width := int(w.dataWindow.Width())

	sortedChannels := w.channelList.SortedByName()
	channels := make([]compression.ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.ChannelInfo{
			Type:   pxr24Type(ch.Type),
			Width:  chWidth,
			Height: numLines,
		}
	}

	return compression.PXR24Compress(data, channels, width, numLines)
}

// compressB44 block-quantizes 4x4 groups of samples.
func (w *ScanlineWriter) compressB44(data []byte, numLines int, flatfields bool) ([]byte, error) {
	width := int(w.dataWindow.Width())

	sortedChannels := w.channelList.SortedByName()
	channels := make([]compression.B44ChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		channels[i] = compression.B44ChannelInfo{
			Type:   b44Type(ch.Type),
			Width:  chWidth,
			Height: numLines,
		}
	}

	return compression.B44Compress(data, channels, width, numLines, flatfields)
}

// compressDWA runs the DWAA or DWAB block transform coder at the
// header's configured quantization level.
func (w *ScanlineWriter) compressDWA(data []byte, numLines int, isDWAB bool) ([]byte, error) {
	width := int(w.dataWindow.Width())
	level := float32(w.header.DWACompressionLevel())

	if isDWAB {
		return compression.CompressDWAB(data, width, numLines, level)
	}
	return compression.CompressDWAA(data, width, numLines, level)
}

// compressHTJ2K runs the HTJ2K block coder with the given block size.
func (w *ScanlineWriter) compressHTJ2K(data []byte, numLines int, blockSize int) ([]byte, error) {
	width := int(w.dataWindow.Width())

	sortedChannels := w.channelList.SortedByName()
	channels := make([]compression.HTJ2KChannelInfo, len(sortedChannels))
	for i, ch := range sortedChannels {
		chWidth := (width + int(ch.XSampling) - 1) / int(ch.XSampling)
		chHeight := (numLines + int(ch.YSampling) - 1) / int(ch.YSampling)
		channels[i] = compression.HTJ2KChannelInfo{
			Type:      htj2kType(ch.Type),
			Width:     chWidth,
			Height:    chHeight,
			XSampling: int(ch.XSampling),
			YSampling: int(ch.YSampling),
			Name:      ch.Name,
		}
	}

	return compression.HTJ2KCompress(data, numLines, channels, blockSize)
}

// Close finalizes the file. After Close, the ScanlineWriter must not be
// used.
func (w *ScanlineWriter) Close() error {
	err := w.writer.Close()
	w.writer = nil
	w.header = nil
	w.frameBuffer = nil
	w.channelList = nil
	return err
}
