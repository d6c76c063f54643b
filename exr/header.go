package exr

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/mrjoshuak/go-openexr/internal/xdr"
	"github.com/mrjoshuak/go-openexr/compression"
)

// DefaultDWACompressionLevel is the quantization level used by DWAA/DWAB
// compression when the header does not override it.
const DefaultDWACompressionLevel = 45.0

// standard attribute names, in the canonical order they are written.
var standardAttrOrder = []string{
	"channels",
	"compression",
	"dataWindow",
	"displayWindow",
	"lineOrder",
	"pixelAspectRatio",
	"screenWindowCenter",
	"screenWindowWidth",
	"tiles",
}

// CompressionOptions groups the tunable knobs of the compressors that have
// one, so they can be read or set as a unit.
type CompressionOptions struct {
	ZIPLevel int
	DWALevel float64
}

// Header holds the named attribute records that precede pixel data in an
// image file: data window, channel list, compression method, and any
// number of caller-defined attributes.
type Header struct {
	attrs map[string]*Attribute

	zipLevel *int

	detectedFLevel compression.FLevel
	flevelDetected bool

	versionTiled bool
}

// NewHeader returns a header with no attributes set.
func NewHeader() *Header {
	return &Header{attrs: make(map[string]*Attribute)}
}

// NewScanlineHeader returns a header for a scanline image of the given
// size with RGB half-float channels, ZIP compression, and increasing
// line order -- the defaults most callers want.
func NewScanlineHeader(width, height int) *Header {
	h := NewHeader()

	box := Box2i{Min: V2i{0, 0}, Max: V2i{int32(width) - 1, int32(height) - 1}}
	h.SetDataWindow(box)
	h.SetDisplayWindow(box)

	cl := NewChannelList()
	cl.Add(NewChannel("R", PixelTypeHalf))
	cl.Add(NewChannel("G", PixelTypeHalf))
	cl.Add(NewChannel("B", PixelTypeHalf))
	h.SetChannels(cl)

	h.SetCompression(CompressionZIP)
	h.SetLineOrder(LineOrderIncreasing)
	h.SetPixelAspectRatio(1.0)
	h.SetScreenWindowCenter(V2f{0, 0})
	h.SetScreenWindowWidth(1.0)

	return h
}

// NewTiledHeader returns a header like NewScanlineHeader but marked as
// tiled with a single-level tile description of the given tile size.
func NewTiledHeader(width, height int, tileWidth, tileHeight uint32) *Header {
	h := NewScanlineHeader(width, height)
	h.SetTileDescription(TileDescription{
		XSize: tileWidth,
		YSize: tileHeight,
		Mode:  LevelModeOne,
	})
	return h
}

// Set stores attr under attr.Name, replacing any existing attribute of
// the same name.
func (h *Header) Set(attr *Attribute) {
	h.attrs[attr.Name] = attr
}

// Get returns the attribute named name, or nil if it is not set.
func (h *Header) Get(name string) *Attribute {
	return h.attrs[name]
}

// Has reports whether an attribute named name is set.
func (h *Header) Has(name string) bool {
	_, ok := h.attrs[name]
	return ok
}

// Remove deletes the attribute named name, if present.
func (h *Header) Remove(name string) {
	delete(h.attrs, name)
}

// Attributes returns all attributes in the canonical standard order
// followed by any custom attributes sorted by name.
func (h *Header) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(h.attrs))
	seen := make(map[string]bool)

	for _, name := range standardAttrOrder {
		if a, ok := h.attrs[name]; ok {
			out = append(out, a)
			seen[name] = true
		}
	}

	var rest []string
	for name := range h.attrs {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, h.attrs[name])
	}

	return out
}

// Channels returns the header's channel list, or nil if unset.
func (h *Header) Channels() *ChannelList {
	if a := h.Get("channels"); a != nil {
		return a.Value.(*ChannelList)
	}
	return nil
}

// SetChannels sets the header's channel list.
func (h *Header) SetChannels(cl *ChannelList) {
	h.Set(&Attribute{Name: "channels", Type: AttrTypeChlist, Value: cl})
}

// Preview returns the header's preview image, or nil if none is set.
func (h *Header) Preview() *Preview {
	if a := h.Get("preview"); a != nil {
		p := a.Value.(Preview)
		return &p
	}
	return nil
}

// Compression returns the header's compression method, defaulting to
// CompressionNone when unset.
func (h *Header) Compression() Compression {
	if a := h.Get("compression"); a != nil {
		return a.Value.(Compression)
	}
	return CompressionNone
}

// SetCompression sets the header's compression method.
func (h *Header) SetCompression(c Compression) {
	h.Set(&Attribute{Name: "compression", Type: AttrTypeCompression, Value: c})
}

// DataWindow returns the header's data window, defaulting to the zero
// box when unset.
func (h *Header) DataWindow() Box2i {
	if a := h.Get("dataWindow"); a != nil {
		return a.Value.(Box2i)
	}
	return Box2i{}
}

// SetDataWindow sets the header's data window.
func (h *Header) SetDataWindow(b Box2i) {
	h.Set(&Attribute{Name: "dataWindow", Type: AttrTypeBox2i, Value: b})
}

// DisplayWindow returns the header's display window, defaulting to the
// zero box when unset.
func (h *Header) DisplayWindow() Box2i {
	if a := h.Get("displayWindow"); a != nil {
		return a.Value.(Box2i)
	}
	return Box2i{}
}

// SetDisplayWindow sets the header's display window.
func (h *Header) SetDisplayWindow(b Box2i) {
	h.Set(&Attribute{Name: "displayWindow", Type: AttrTypeBox2i, Value: b})
}

// LineOrder returns the header's scanline order, defaulting to
// LineOrderIncreasing when unset.
func (h *Header) LineOrder() LineOrder {
	if a := h.Get("lineOrder"); a != nil {
		return a.Value.(LineOrder)
	}
	return LineOrderIncreasing
}

// SetLineOrder sets the header's scanline order.
func (h *Header) SetLineOrder(lo LineOrder) {
	h.Set(&Attribute{Name: "lineOrder", Type: AttrTypeLineOrder, Value: lo})
}

// PixelAspectRatio returns the header's pixel aspect ratio, defaulting
// to 1.0 when unset.
func (h *Header) PixelAspectRatio() float32 {
	if a := h.Get("pixelAspectRatio"); a != nil {
		return a.Value.(float32)
	}
	return 1.0
}

// SetPixelAspectRatio sets the header's pixel aspect ratio.
func (h *Header) SetPixelAspectRatio(v float32) {
	h.Set(&Attribute{Name: "pixelAspectRatio", Type: AttrTypeFloat, Value: v})
}

// ScreenWindowCenter returns the header's screen window center,
// defaulting to the zero vector when unset.
func (h *Header) ScreenWindowCenter() V2f {
	if a := h.Get("screenWindowCenter"); a != nil {
		return a.Value.(V2f)
	}
	return V2f{}
}

// SetScreenWindowCenter sets the header's screen window center.
func (h *Header) SetScreenWindowCenter(v V2f) {
	h.Set(&Attribute{Name: "screenWindowCenter", Type: AttrTypeV2f, Value: v})
}

// ScreenWindowWidth returns the header's screen window width, defaulting
// to 1.0 when unset.
func (h *Header) ScreenWindowWidth() float32 {
	if a := h.Get("screenWindowWidth"); a != nil {
		return a.Value.(float32)
	}
	return 1.0
}

// SetScreenWindowWidth sets the header's screen window width.
func (h *Header) SetScreenWindowWidth(v float32) {
	h.Set(&Attribute{Name: "screenWindowWidth", Type: AttrTypeFloat, Value: v})
}

// IsTiled reports whether the header carries a tile description. For a
// header parsed from a single-part file, this also reflects the
// version word's TILED_FLAG bit (see setVersionTiled), since that flag
// rather than the "tiles" attribute is the authoritative single-part
// signal in the file format.
func (h *Header) IsTiled() bool {
	return h.Has("tiles") || h.versionTiled
}

// setVersionTiled records the version word's TILED_FLAG bit for a
// header parsed from a single-part file. It has no effect on headers
// built directly by callers (NewTiledHeader already sets a "tiles"
// attribute) or on multi-part parts, whose tiledness is carried by the
// per-part "type" attribute instead.
func (h *Header) setVersionTiled(tiled bool) {
	h.versionTiled = tiled
}

// TileDescription returns the header's tile description, or nil if the
// header does not describe a tiled image.
func (h *Header) TileDescription() *TileDescription {
	if a := h.Get("tiles"); a != nil {
		td := a.Value.(TileDescription)
		return &td
	}
	return nil
}

// SetTileDescription marks the header as tiled with the given
// description.
func (h *Header) SetTileDescription(td TileDescription) {
	h.Set(&Attribute{Name: "tiles", Type: AttrTypeTileDesc, Value: td})
}

// Width returns the data window's pixel width.
func (h *Header) Width() int32 {
	return h.DataWindow().Width()
}

// Height returns the data window's pixel height.
func (h *Header) Height() int32 {
	return h.DataWindow().Height()
}

// ZIPLevel returns the zlib compression level used for ZIP/ZIPS chunks.
func (h *Header) ZIPLevel() int {
	return h.CompressionOptions().ZIPLevel
}

// SetZIPLevel sets the zlib compression level used for ZIP/ZIPS chunks.
func (h *Header) SetZIPLevel(level int) {
	opts := h.CompressionOptions()
	opts.ZIPLevel = level
	h.SetCompressionOptions(opts)
}

// DWACompressionLevel returns the quantization level used for DWAA/DWAB
// chunks, defaulting to DefaultDWACompressionLevel when unset. Unlike
// ZIPLevel, this is a real on-disk attribute: a writer using a different
// quantization than the default must record it so a later reader
// dequantizes consistently.
func (h *Header) DWACompressionLevel() float64 {
	if a := h.Get("dwaCompressionLevel"); a != nil {
		return float64(a.Value.(float32))
	}
	return DefaultDWACompressionLevel
}

// SetDWACompressionLevel sets the quantization level used for DWAA/DWAB
// chunks.
func (h *Header) SetDWACompressionLevel(level float64) {
	h.Set(&Attribute{Name: "dwaCompressionLevel", Type: AttrTypeFloat, Value: float32(level)})
}

// CompressionOptions returns the header's compressor tuning knobs,
// defaulting ZIPLevel to the zlib default level and DWALevel to
// DefaultDWACompressionLevel when unset. ZIPLevel is session-local: it
// steers this process's compressor but, unlike DWALevel, is not written
// to the file -- a compliant reader instead infers the level it needs
// from the zlib stream's FLEVEL bits via DetectedFLevel.
func (h *Header) CompressionOptions() CompressionOptions {
	opts := CompressionOptions{
		ZIPLevel: int(compression.CompressionLevelDefault),
		DWALevel: h.DWACompressionLevel(),
	}
	if h.zipLevel != nil {
		opts.ZIPLevel = *h.zipLevel
	}
	return opts
}

// SetCompressionOptions sets the header's compressor tuning knobs.
func (h *Header) SetCompressionOptions(opts CompressionOptions) {
	zip := opts.ZIPLevel
	h.zipLevel = &zip
	h.SetDWACompressionLevel(opts.DWALevel)
}

// DetectedFLevel returns the zlib FLEVEL detected in the most recently
// decompressed ZIP/ZIPS chunk, and whether one has been detected yet.
// The reader calls setDetectedFLevel after successfully decompressing
// a chunk so that a later rewrite can preserve the original level.
func (h *Header) DetectedFLevel() (compression.FLevel, bool) {
	return h.detectedFLevel, h.flevelDetected
}

func (h *Header) setDetectedFLevel(fl compression.FLevel) {
	h.detectedFLevel = fl
	h.flevelDetected = true
}

// numLevels returns the number of mipmap/ripmap levels for an axis of
// length size, rounding according to roundingMode. A non-positive size
// has no levels.
func numLevels(size int, roundingMode LevelRoundingMode) int {
	if size <= 0 {
		return 0
	}
	if roundingMode == LevelRoundUp {
		if size == 1 {
			return 1
		}
		return bits.Len(uint(size-1)) + 1
	}
	return bits.Len(uint(size)) - 1 + 1
}

// levelSize returns max(1, size>>l).
func levelSize(size, l int) int {
	if l < 0 {
		l = 0
	}
	s := size >> uint(l)
	if s < 1 {
		s = 1
	}
	return s
}

// levelSizeRoundUp returns ceil(size / 2^l), clamped to a minimum of 1.
func levelSizeRoundUp(size, l int) int {
	if l < 0 {
		l = 0
	}
	s := (size + (1 << uint(l)) - 1) >> uint(l)
	if s < 1 {
		s = 1
	}
	return s
}

// NumXLevels returns the number of horizontal resolution levels implied
// by the header's tile description, or 1 for an untiled header.
func (h *Header) NumXLevels() int {
	td := h.TileDescription()
	if td == nil {
		return 1
	}
	switch td.Mode {
	case LevelModeOne:
		return 1
	case LevelModeMipmap:
		w, ht := int(h.Width()), int(h.Height())
		m := w
		if ht > m {
			m = ht
		}
		return numLevels(m, td.RoundingMode)
	case LevelModeRipmap:
		return numLevels(int(h.Width()), td.RoundingMode)
	default:
		return 1
	}
}

// NumYLevels returns the number of vertical resolution levels implied
// by the header's tile description, or 1 for an untiled header.
func (h *Header) NumYLevels() int {
	td := h.TileDescription()
	if td == nil {
		return 1
	}
	switch td.Mode {
	case LevelModeOne:
		return 1
	case LevelModeMipmap:
		return h.NumXLevels()
	case LevelModeRipmap:
		return numLevels(int(h.Height()), td.RoundingMode)
	default:
		return 1
	}
}

// LevelWidth returns the pixel width of horizontal level l, clamping
// negative levels to full width and levels beyond the finest/coarsest
// bound to 1.
func (h *Header) LevelWidth(l int) int {
	if l < 0 {
		return int(h.Width())
	}
	td := h.TileDescription()
	rm := LevelRoundDown
	if td != nil {
		rm = td.RoundingMode
	}
	if rm == LevelRoundUp {
		return levelSizeRoundUp(int(h.Width()), l)
	}
	return levelSize(int(h.Width()), l)
}

// LevelHeight returns the pixel height of vertical level l, with the
// same clamping rules as LevelWidth.
func (h *Header) LevelHeight(l int) int {
	if l < 0 {
		return int(h.Height())
	}
	td := h.TileDescription()
	rm := LevelRoundDown
	if td != nil {
		rm = td.RoundingMode
	}
	if rm == LevelRoundUp {
		return levelSizeRoundUp(int(h.Height()), l)
	}
	return levelSize(int(h.Height()), l)
}

// NumXTiles returns the number of tile columns at horizontal level lx,
// or 0 if the header has no tile description.
func (h *Header) NumXTiles(lx int) int {
	td := h.TileDescription()
	if td == nil {
		return 0
	}
	w := h.LevelWidth(lx)
	return (w + int(td.XSize) - 1) / int(td.XSize)
}

// NumYTiles returns the number of tile rows at vertical level ly, or 0
// if the header has no tile description.
func (h *Header) NumYTiles(ly int) int {
	td := h.TileDescription()
	if td == nil {
		return 0
	}
	ht := h.LevelHeight(ly)
	return (ht + int(td.YSize) - 1) / int(td.YSize)
}

// ChunksInFile returns the number of scanline blocks or tiles the file
// is expected to contain.
func (h *Header) ChunksInFile() int {
	td := h.TileDescription()
	if td == nil {
		perChunk := h.Compression().ScanlinesPerChunk()
		height := int(h.Height())
		if height <= 0 {
			return 0
		}
		return (height + perChunk - 1) / perChunk
	}

	switch td.Mode {
	case LevelModeRipmap:
		total := 0
		nx, ny := h.NumXLevels(), h.NumYLevels()
		for ly := 0; ly < ny; ly++ {
			ty := h.NumYTiles(ly)
			for lx := 0; lx < nx; lx++ {
				total += h.NumXTiles(lx) * ty
			}
		}
		return total
	default: // ONE_LEVEL, MIPMAP_LEVELS
		total := 0
		n := h.NumXLevels()
		for l := 0; l < n; l++ {
			total += h.NumXTiles(l) * h.NumYTiles(l)
		}
		return total
	}
}

// Validate checks that the header carries the minimum set of attributes
// a reader or writer needs: a non-empty channel list and a non-empty
// data window.
func (h *Header) Validate() error {
	cl := h.Channels()
	if cl == nil || cl.Len() == 0 {
		return fmt.Errorf("exr: header has no channels")
	}
	dw := h.DataWindow()
	if dw.Width() <= 0 || dw.Height() <= 0 {
		return fmt.Errorf("exr: invalid data window %v", dw)
	}
	return nil
}

// validateTiledForWrite runs the additional sanity checks the tiled
// writer requires beyond Validate: the tiled flag must be set, the tile
// description must be present with positive dimensions, and every
// channel must have unit sampling (the tiled format does not support
// subsampled channels).
func validateTiledForWrite(h *Header) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if !h.IsTiled() {
		return ErrNotTiled
	}
	td := h.TileDescription()
	if td.XSize == 0 || td.YSize == 0 {
		return fmt.Errorf("exr: invalid tile size %dx%d", td.XSize, td.YSize)
	}
	for _, c := range h.Channels().Channels() {
		if c.XSampling != 1 || c.YSampling != 1 {
			return fmt.Errorf("exr: tiled channel %q must have sampling 1x1", c.Name)
		}
	}
	return nil
}

// ReadHeader reads the attribute sequence that makes up a header,
// stopping at the empty-name terminator.
func ReadHeader(r *xdr.Reader) (*Header, error) {
	h := NewHeader()
	for {
		attr, err := ReadAttribute(r)
		if err != nil {
			return nil, err
		}
		if attr == nil {
			break
		}
		if cl, ok := attr.Value.(*ChannelList); ok {
			cl.SortByName()
		}
		h.Set(attr)
	}
	return h, nil
}

// WriteHeader writes h's attributes in canonical order, followed by the
// empty-name terminator.
func WriteHeader(w *xdr.BufferWriter, h *Header) error {
	for _, attr := range h.Attributes() {
		if err := WriteAttribute(w, attr); err != nil {
			return err
		}
	}
	w.WriteString("")
	return nil
}
