package exr

import (
	"encoding/binary"
	"errors"

	"github.com/mrjoshuak/go-openexr/compression"
	"github.com/mrjoshuak/go-openexr/internal/xdr"
)

// Errors for the zipped string / zipped string-vector attribute types.
var (
	ErrZippedStringTooShort     = errors.New("exr: zipped string record shorter than its size prefix")
	ErrZippedStringSizeMismatch = errors.New("exr: zipped string inflated size does not match recorded size")
)

// ZippedString is a string attribute value that is transparently
// deflate-compressed at rest. A freshly constructed ZippedString holds its
// value inflated; one built by ReadZippedStringFrom holds it compressed, and
// String inflates a local copy on each access without caching it.
type ZippedString struct {
	inflated       string
	haveInflated   bool
	compressed     []byte
	uncompressedSize int
}

// NewZippedString returns a ZippedString holding s, inflated.
func NewZippedString(s string) *ZippedString {
	return &ZippedString{inflated: s, haveInflated: true}
}

// String returns the string value, inflating a compressed representation
// into a local copy without mutating the receiver.
func (z *ZippedString) String() (string, error) {
	if z.haveInflated {
		return z.inflated, nil
	}
	data, err := compression.ZIPDecompress(z.compressed, z.uncompressedSize)
	if err != nil {
		return "", err
	}
	if len(data) != z.uncompressedSize {
		return "", ErrZippedStringSizeMismatch
	}
	return string(data), nil
}

// Compress forces the compressed representation in place, discarding the
// cached inflated value. It is a no-op if the value is already compressed.
func (z *ZippedString) Compress() error {
	if !z.haveInflated {
		return nil
	}
	compressed, err := compression.ZIPCompressLevel([]byte(z.inflated), compression.CompressionLevelDefault)
	if err != nil {
		return err
	}
	z.compressed = compressed
	z.uncompressedSize = len(z.inflated)
	z.haveInflated = false
	z.inflated = ""
	return nil
}

// WriteTo emits the int32 uncompressed-size prefix spec.md §4.I requires,
// followed by the compressed bytes: verbatim if the value is already
// compressed, or compressed on the fly otherwise.
func (z *ZippedString) WriteTo(w *xdr.BufferWriter) error {
	if z.haveInflated {
		uncompressedSize := len(z.inflated)
		compressed, err := compression.ZIPCompressLevel([]byte(z.inflated), compression.CompressionLevelDefault)
		if err != nil {
			return err
		}
		w.WriteInt32(int32(uncompressedSize))
		w.WriteBytes(compressed)
		return nil
	}
	w.WriteInt32(int32(z.uncompressedSize))
	w.WriteBytes(z.compressed)
	return nil
}

// ReadZippedStringFrom reads a zipped string record of totalSize bytes from
// data, leaving the value compressed.
func ReadZippedStringFrom(data []byte, totalSize int) (*ZippedString, error) {
	if totalSize < 4 || len(data) < totalSize {
		return nil, ErrZippedStringTooShort
	}
	uncompressedSize := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	compressed := make([]byte, totalSize-4)
	copy(compressed, data[4:totalSize])
	return &ZippedString{compressed: compressed, uncompressedSize: uncompressedSize}, nil
}

// Equal reports whether z and other hold the same string value. It always
// compares inflated byte representations -- never a compressed buffer's
// length against the other side's raw string length -- so equality does
// not depend on which side happens to be compressed.
func (z *ZippedString) Equal(other *ZippedString) bool {
	if z.haveInflated && other.haveInflated {
		return z.inflated == other.inflated
	}
	a, err := z.String()
	if err != nil {
		return false
	}
	b, err := other.String()
	if err != nil {
		return false
	}
	return a == b
}

// ZippedStringVector is a sequence of strings, transparently
// deflate-compressed at rest using the same record shape as ZippedString.
// The uncompressed wire layout is int32 count, then count entries of
// (int32 length, raw bytes) with no terminator.
type ZippedStringVector struct {
	inflated         []string
	haveInflated     bool
	compressed       []byte
	uncompressedSize int
}

// NewZippedStringVector returns a ZippedStringVector holding vals, inflated.
func NewZippedStringVector(vals []string) *ZippedStringVector {
	v := make([]string, len(vals))
	copy(v, vals)
	return &ZippedStringVector{inflated: v, haveInflated: true}
}

// Strings returns the vector's values, inflating a compressed
// representation into a local copy without mutating the receiver.
func (z *ZippedStringVector) Strings() ([]string, error) {
	if z.haveInflated {
		out := make([]string, len(z.inflated))
		copy(out, z.inflated)
		return out, nil
	}
	data, err := compression.ZIPDecompress(z.compressed, z.uncompressedSize)
	if err != nil {
		return nil, err
	}
	if len(data) != z.uncompressedSize {
		return nil, ErrZippedStringSizeMismatch
	}
	return decodeStringVector(data)
}

func decodeStringVector(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, ErrZippedStringTooShort
	}
	count := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	pos := 4
	out := make([]string, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(data) {
			return nil, ErrZippedStringTooShort
		}
		length := int(int32(binary.LittleEndian.Uint32(data[pos : pos+4])))
		pos += 4
		if length < 0 || pos+length > len(data) {
			return nil, ErrZippedStringTooShort
		}
		out[i] = string(data[pos : pos+length])
		pos += length
	}
	return out, nil
}

func encodeStringVector(vals []string) []byte {
	size := 4
	for _, s := range vals {
		size += 4 + len(s)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vals)))
	pos := 4
	for _, s := range vals {
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(len(s)))
		pos += 4
		copy(buf[pos:], s)
		pos += len(s)
	}
	return buf
}

// Compress forces the compressed representation in place, discarding the
// cached inflated value. It is a no-op if the value is already compressed.
func (z *ZippedStringVector) Compress() error {
	if !z.haveInflated {
		return nil
	}
	raw := encodeStringVector(z.inflated)
	compressed, err := compression.ZIPCompressLevel(raw, compression.CompressionLevelDefault)
	if err != nil {
		return err
	}
	z.compressed = compressed
	z.uncompressedSize = len(raw)
	z.haveInflated = false
	z.inflated = nil
	return nil
}

// WriteTo emits the int32 uncompressed-size prefix followed by the
// compressed bytes: verbatim if already compressed, or compressed on the
// fly otherwise.
func (z *ZippedStringVector) WriteTo(w *xdr.BufferWriter) error {
	if z.haveInflated {
		raw := encodeStringVector(z.inflated)
		compressed, err := compression.ZIPCompressLevel(raw, compression.CompressionLevelDefault)
		if err != nil {
			return err
		}
		w.WriteInt32(int32(len(raw)))
		w.WriteBytes(compressed)
		return nil
	}
	w.WriteInt32(int32(z.uncompressedSize))
	w.WriteBytes(z.compressed)
	return nil
}

// ReadZippedStringVectorFrom reads a zipped string-vector record of
// totalSize bytes from data, leaving the value compressed.
func ReadZippedStringVectorFrom(data []byte, totalSize int) (*ZippedStringVector, error) {
	if totalSize < 4 || len(data) < totalSize {
		return nil, ErrZippedStringTooShort
	}
	uncompressedSize := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	compressed := make([]byte, totalSize-4)
	copy(compressed, data[4:totalSize])
	return &ZippedStringVector{compressed: compressed, uncompressedSize: uncompressedSize}, nil
}

// Equal reports whether z and other hold the same sequence of strings. It
// always compares inflated representations, matching ZippedString.Equal.
func (z *ZippedStringVector) Equal(other *ZippedStringVector) bool {
	a, err := z.Strings()
	if err != nil {
		return false
	}
	b, err := other.Strings()
	if err != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
