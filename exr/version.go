package exr

import "errors"

// MagicNumber is the four-byte sequence that opens every EXR file.
var MagicNumber = []byte{0x76, 0x2f, 0x31, 0x01}

const (
	versionNumberMask uint32 = 0x000000ff
	tiledFlag         uint32 = 0x00000100
	longNamesFlag     uint32 = 0x00000400
	deepFlag          uint32 = 0x00000800
	multiPartFlag     uint32 = 0x00001000
)

// ErrBadMagicNumber is returned when a file does not begin with MagicNumber.
var ErrBadMagicNumber = errors.New("exr: not an OpenEXR file (bad magic number)")

// MakeVersionField packs the file format version and its feature flags
// into the 4-byte field that follows the magic number.
func MakeVersionField(version int, tiled, longNames, deep, multiPart bool) uint32 {
	v := uint32(version) & versionNumberMask
	if tiled {
		v |= tiledFlag
	}
	if longNames {
		v |= longNamesFlag
	}
	if deep {
		v |= deepFlag
	}
	if multiPart {
		v |= multiPartFlag
	}
	return v
}

// versionFlags holds the feature flags decoded from a version field.
type versionFlags struct {
	version   int
	tiled     bool
	longNames bool
	deep      bool
	multiPart bool
}

// parseVersionField unpacks a version field written by MakeVersionField.
func parseVersionField(v uint32) versionFlags {
	return versionFlags{
		version:   int(v & versionNumberMask),
		tiled:     v&tiledFlag != 0,
		longNames: v&longNamesFlag != 0,
		deep:      v&deepFlag != 0,
		multiPart: v&multiPartFlag != 0,
	}
}

// Version extracts the file format version number from a version field.
func Version(v uint32) int {
	return parseVersionField(v).version
}

// IsTiled reports whether the tiled flag is set in a version field.
func IsTiled(v uint32) bool {
	return parseVersionField(v).tiled
}

// HasLongNames reports whether the long-names flag is set in a version field.
func HasLongNames(v uint32) bool {
	return parseVersionField(v).longNames
}

// IsDeep reports whether the deep-data flag is set in a version field.
func IsDeep(v uint32) bool {
	return parseVersionField(v).deep
}

// IsMultiPart reports whether the multi-part flag is set in a version field.
func IsMultiPart(v uint32) bool {
	return parseVersionField(v).multiPart
}
