package compression

import (
	"encoding/binary"
	"errors"
)

// PIZ compression errors.
var (
	ErrPIZCorrupted     = errors.New("compression: corrupted PIZ data")
	ErrPIZSizeMismatch  = errors.New("compression: PIZ data size does not match width/height/channels")
)

// PIZCompress wavelet-decorrelates each of channels planes of
// width*height 16-bit samples and Huffman-codes the result. data is
// laid out channel-major: channel c's plane occupies
// data[c*width*height : (c+1)*width*height].
func PIZCompress(data []uint16, width, height, channels int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	planeSize := width * height
	if planeSize*channels != len(data) {
		return nil, ErrPIZSizeMismatch
	}

	transformed := make([]uint16, len(data))
	copy(transformed, data)
	for c := 0; c < channels; c++ {
		plane := transformed[c*planeSize : (c+1)*planeSize]
		WaveletEncode(plane, width, height)
	}

	freqs := make([]uint64, 65536)
	for _, v := range transformed {
		freqs[v]++
	}
	encoder := NewHuffmanEncoder(freqs)
	encoded := encoder.Encode(transformed)
	lengths := encoder.GetLengths()

	return encodePIZStream(lengths, len(transformed), encoded), nil
}

// PIZDecompress reverses PIZCompress, reproducing the original
// channel-major sample layout.
func PIZDecompress(data []byte, width, height, channels int) ([]uint16, error) {
	if len(data) == 0 {
		return nil, nil
	}
	planeSize := width * height
	expected := planeSize * channels

	lengths, numValues, encoded, err := decodePIZStream(data)
	if err != nil {
		return nil, err
	}
	if numValues != expected {
		return nil, ErrPIZSizeMismatch
	}

	decoder := NewHuffmanDecoder(lengths)
	transformed, err := decoder.Decode(encoded, numValues)
	if err != nil {
		return nil, err
	}

	for c := 0; c < channels; c++ {
		plane := transformed[c*planeSize : (c+1)*planeSize]
		WaveletDecode(plane, width, height)
	}
	return transformed, nil
}

// encodePIZStream serializes a sparse code-length table (only the
// symbols that actually occur) followed by the Huffman bitstream.
func encodePIZStream(lengths []int, numValues int, encoded []byte) []byte {
	type entry struct {
		sym int
		len int
	}
	var entries []entry
	for sym, l := range lengths {
		if l > 0 {
			entries = append(entries, entry{sym, l})
		}
	}

	buf := make([]byte, 0, 4+len(entries)*3+4+4+len(encoded))

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(entries)))
	buf = append(buf, tmp4[:]...)

	for _, e := range entries {
		var tmp3 [3]byte
		binary.LittleEndian.PutUint16(tmp3[:2], uint16(e.sym))
		tmp3[2] = byte(e.len)
		buf = append(buf, tmp3[:]...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(numValues))
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(encoded)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, encoded...)

	return buf
}

// decodePIZStream is the inverse of encodePIZStream.
func decodePIZStream(data []byte) (lengths []int, numValues int, encoded []byte, err error) {
	if len(data) < 4 {
		return nil, 0, nil, ErrPIZCorrupted
	}
	numEntries := int(binary.LittleEndian.Uint32(data[0:4]))
	pos := 4

	lengths = make([]int, 65536)
	for i := 0; i < numEntries; i++ {
		if pos+3 > len(data) {
			return nil, 0, nil, ErrPIZCorrupted
		}
		sym := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		l := int(data[pos+2])
		if sym < 0 || sym >= len(lengths) {
			return nil, 0, nil, ErrPIZCorrupted
		}
		lengths[sym] = l
		pos += 3
	}

	if pos+8 > len(data) {
		return nil, 0, nil, ErrPIZCorrupted
	}
	numValues = int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	encLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4

	if pos+encLen > len(data) {
		return nil, 0, nil, ErrPIZCorrupted
	}
	encoded = data[pos : pos+encLen]

	return lengths, numValues, encoded, nil
}
