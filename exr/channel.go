package exr

import (
	"sort"
	"strings"

	"github.com/mrjoshuak/go-openexr/internal/xdr"
)

// PixelType identifies the on-disk and in-memory representation of a
// channel's samples.
type PixelType uint32

const (
	// PixelTypeUint stores samples as unsigned 32-bit integers.
	PixelTypeUint PixelType = 0
	// PixelTypeHalf stores samples as IEEE 754 binary16 values.
	PixelTypeHalf PixelType = 1
	// PixelTypeFloat stores samples as IEEE 754 binary32 values.
	PixelTypeFloat PixelType = 2
)

// String returns a lowercase name for the pixel type.
func (pt PixelType) String() string {
	switch pt {
	case PixelTypeUint:
		return "uint"
	case PixelTypeHalf:
		return "half"
	case PixelTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes a single sample occupies on the wire.
func (pt PixelType) Size() int {
	switch pt {
	case PixelTypeUint:
		return 4
	case PixelTypeHalf:
		return 2
	case PixelTypeFloat:
		return 4
	default:
		return 0
	}
}

// Channel describes a single named image channel: its sample type,
// subsampling factors, and whether it is stored in a perceptually linear
// (as opposed to physically linear) space.
type Channel struct {
	Name      string
	Type      PixelType
	XSampling int32
	YSampling int32
	PLinear   bool
}

// NewChannel returns a channel with sampling 1x1 and PLinear false.
func NewChannel(name string, pixelType PixelType) Channel {
	return Channel{Name: name, Type: pixelType, XSampling: 1, YSampling: 1}
}

// Layer returns the portion of the channel name before the last '.',
// or "" if the name carries no layer prefix.
func (c Channel) Layer() string {
	i := strings.LastIndexByte(c.Name, '.')
	if i < 0 {
		return ""
	}
	return c.Name[:i]
}

// BaseName returns the portion of the channel name after the last '.'.
func (c Channel) BaseName() string {
	i := strings.LastIndexByte(c.Name, '.')
	if i < 0 {
		return c.Name
	}
	return c.Name[i+1:]
}

// ChannelList holds the channels of an image header, kept in
// ASCII-lexicographic order by name as required for file/buffer alignment.
type ChannelList struct {
	channels []Channel
}

// NewChannelList returns an empty channel list.
func NewChannelList() *ChannelList {
	return &ChannelList{}
}

// Add inserts ch in sorted position. Returns false without modifying the
// list if a channel with the same name already exists.
func (cl *ChannelList) Add(ch Channel) bool {
	i := sort.Search(len(cl.channels), func(i int) bool {
		return cl.channels[i].Name >= ch.Name
	})
	if i < len(cl.channels) && cl.channels[i].Name == ch.Name {
		return false
	}
	cl.channels = append(cl.channels, Channel{})
	copy(cl.channels[i+1:], cl.channels[i:])
	cl.channels[i] = ch
	return true
}

// Get returns a pointer to the channel named name, or nil if absent.
func (cl *ChannelList) Get(name string) *Channel {
	for i := range cl.channels {
		if cl.channels[i].Name == name {
			return &cl.channels[i]
		}
	}
	return nil
}

// Len returns the number of channels.
func (cl *ChannelList) Len() int {
	return len(cl.channels)
}

// At returns the channel at position i.
func (cl *ChannelList) At(i int) Channel {
	return cl.channels[i]
}

// Names returns the channel names in list order.
func (cl *ChannelList) Names() []string {
	names := make([]string, len(cl.channels))
	for i, c := range cl.channels {
		names[i] = c.Name
	}
	return names
}

// Channels returns a copy of the underlying channel slice.
func (cl *ChannelList) Channels() []Channel {
	out := make([]Channel, len(cl.channels))
	copy(out, cl.channels)
	return out
}

// HasRGB reports whether the list contains R, G, and B channels.
func (cl *ChannelList) HasRGB() bool {
	return cl.Get("R") != nil && cl.Get("G") != nil && cl.Get("B") != nil
}

// HasAlpha reports whether the list contains an A channel.
func (cl *ChannelList) HasAlpha() bool {
	return cl.Get("A") != nil
}

// HasRGBA reports whether the list contains R, G, B, and A channels.
func (cl *ChannelList) HasRGBA() bool {
	return cl.HasRGB() && cl.HasAlpha()
}

// Layers returns the distinct, non-root layer names present in the list.
func (cl *ChannelList) Layers() []string {
	seen := make(map[string]bool)
	var layers []string
	for _, c := range cl.channels {
		l := c.Layer()
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		layers = append(layers, l)
	}
	sort.Strings(layers)
	return layers
}

// ChannelsInLayer returns the channels whose Layer() equals layer.
func (cl *ChannelList) ChannelsInLayer(layer string) []Channel {
	var out []Channel
	for _, c := range cl.channels {
		if c.Layer() == layer {
			out = append(out, c)
		}
	}
	return out
}

// SortByName restores ASCII-lexicographic ordering by channel name.
func (cl *ChannelList) SortByName() {
	sort.Slice(cl.channels, func(i, j int) bool {
		return cl.channels[i].Name < cl.channels[j].Name
	})
}

// SortedByName returns a copy of the channel list's channels in
// ASCII-lexicographic order by name, leaving the receiver untouched.
func (cl *ChannelList) SortedByName() []Channel {
	out := cl.Channels()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// SortForCompression orders channels by pixel type, then name, matching
// the layout some compressors expect for their per-type byte planes.
func (cl *ChannelList) SortForCompression() {
	sort.Slice(cl.channels, func(i, j int) bool {
		if cl.channels[i].Type != cl.channels[j].Type {
			return cl.channels[i].Type < cl.channels[j].Type
		}
		return cl.channels[i].Name < cl.channels[j].Name
	})
}

// BytesPerPixel returns the sum of each channel's on-wire sample size,
// ignoring subsampling (i.e. the cost of one fully-sampled pixel column).
func (cl *ChannelList) BytesPerPixel() int {
	n := 0
	for _, c := range cl.channels {
		n += c.Type.Size()
	}
	return n
}

// BytesPerScanline returns the number of bytes a single scanline of the
// given pixel width occupies, accounting for each channel's subsampling.
func (cl *ChannelList) BytesPerScanline(width int) int {
	n := 0
	for _, c := range cl.channels {
		xs := int(c.XSampling)
		if xs < 1 {
			xs = 1
		}
		samples := (width + xs - 1) / xs
		n += samples * c.Type.Size()
	}
	return n
}

// ReadChannelList reads a channel list in the header's on-wire format:
// a sequence of (name, type, pLinear, reserved[3], xSampling, ySampling)
// records terminated by an empty name.
func ReadChannelList(r *xdr.Reader) (*ChannelList, error) {
	cl := NewChannelList()
	for {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}

		typ, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		pLinear, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadBytes(3); err != nil {
			return nil, err
		}
		xSampling, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		ySampling, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}

		cl.Add(Channel{
			Name:      name,
			Type:      PixelType(typ),
			PLinear:   pLinear != 0,
			XSampling: xSampling,
			YSampling: ySampling,
		})
	}
	return cl, nil
}

// WriteChannelList writes cl in the on-wire format consumed by
// ReadChannelList, terminated by an empty name.
func WriteChannelList(w *xdr.BufferWriter, cl *ChannelList) {
	for _, c := range cl.channels {
		w.WriteString(c.Name)
		w.WriteInt32(int32(c.Type))
		if c.PLinear {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		w.WriteBytes([]byte{0, 0, 0})
		w.WriteInt32(c.XSampling)
		w.WriteInt32(c.YSampling)
	}
	w.WriteString("")
}
