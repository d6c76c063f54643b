package exr

import (
	"errors"
	"reflect"
)

// ErrIncompatibleForCopy is returned by CopyTiledPixels when src and dst do
// not share a tile description, data window, line order, compression
// method, or channel list.
var ErrIncompatibleForCopy = errors.New("exr: source and destination headers are not compatible for a raw copy")

// ErrDestinationNotEmpty is returned by CopyTiledPixels when dst already
// has one or more tiles written.
var ErrDestinationNotEmpty = errors.New("exr: destination already has tiles written")

// CopyTiledPixels streams every tile of srcPart in src into dstPart of dst
// without decompressing or recompressing it: the still-compressed chunk
// bytes are read from src and appended to dst unchanged. dst must not have
// had any tile written yet for dstPart, and the two parts' headers must
// describe the same tile layout, data window, line order, compression
// method, and channel list.
func CopyTiledPixels(dst *Writer, src *File, dstPart, srcPart int) error {
	srcHeader := src.Header(srcPart)
	dstHeader := dst.Header(dstPart)
	if srcHeader == nil || dstHeader == nil {
		return ErrPartOutOfRange
	}
	if !srcHeader.IsTiled() || !dstHeader.IsTiled() {
		return ErrNotTiled
	}
	if err := checkCopyCompatible(srcHeader, dstHeader); err != nil {
		return err
	}
	for _, off := range dst.chunkOffsets[dstPart] {
		if off != 0 {
			return ErrDestinationNotEmpty
		}
	}

	td := srcHeader.TileDescription()
	numXLevels := srcHeader.NumXLevels()
	numYLevels := srcHeader.NumYLevels()

	copyLevel := func(lx, ly int) error {
		nx := srcHeader.NumXTiles(lx)
		ny := srcHeader.NumYTiles(ly)
		for ty := 0; ty < ny; ty++ {
			for tx := 0; tx < nx; tx++ {
				idx := tileChunkIndex(srcHeader, tx, ty, lx, ly)
				_, data, err := src.ReadTileChunk(srcPart, idx)
				if err != nil {
					return err
				}
				if err := dst.WriteTileChunkPart(dstPart, tx, ty, lx, ly, data); err != nil {
					return err
				}
			}
		}
		return nil
	}

	switch td.Mode {
	case LevelModeRipmap:
		for ly := 0; ly < numYLevels; ly++ {
			for lx := 0; lx < numXLevels; lx++ {
				if err := copyLevel(lx, ly); err != nil {
					return err
				}
			}
		}
	default: // LevelModeOne, LevelModeMipmap: lx == ly at every level
		for l := 0; l < numXLevels; l++ {
			if err := copyLevel(l, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkCopyCompatible(src, dst *Header) error {
	srcTD := src.TileDescription()
	dstTD := dst.TileDescription()
	if srcTD == nil || dstTD == nil || *srcTD != *dstTD {
		return ErrIncompatibleForCopy
	}
	if src.DataWindow() != dst.DataWindow() {
		return ErrIncompatibleForCopy
	}
	if src.LineOrder() != dst.LineOrder() {
		return ErrIncompatibleForCopy
	}
	if src.Compression() != dst.Compression() {
		return ErrIncompatibleForCopy
	}
	if !sameChannelList(src.Channels(), dst.Channels()) {
		return ErrIncompatibleForCopy
	}
	return nil
}

func sameChannelList(a, b *ChannelList) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Len() != b.Len() {
		return false
	}
	return reflect.DeepEqual(a.Channels(), b.Channels())
}
