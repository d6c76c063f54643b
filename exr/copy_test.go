package exr

import (
	"bytes"
	"testing"
)

func newTiledWriterHeader() *Header {
	h := NewTiledHeader(4, 4, 2, 2)
	h.SetCompression(CompressionNone)
	return h
}

func writeAllTiles(t *testing.T, w *Writer, part int) {
	t.Helper()
	h := w.Header(part)
	nx := h.NumXTiles(0)
	ny := h.NumYTiles(0)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			payload := []byte{byte(tx), byte(ty), 0xAB, 0xCD}
			if err := w.WriteTileChunkPart(part, tx, ty, 0, 0, payload); err != nil {
				t.Fatalf("WriteTileChunkPart(%d,%d): %v", tx, ty, err)
			}
		}
	}
}

func TestCopyTiledPixelsRoundTrip(t *testing.T) {
	srcHeader := newTiledWriterHeader()
	srcWS := newMockWriteSeeker()
	srcWriter, err := NewWriter(srcWS, srcHeader)
	if err != nil {
		t.Fatalf("NewWriter(src): %v", err)
	}
	writeAllTiles(t, srcWriter, 0)
	if err := srcWriter.Close(); err != nil {
		t.Fatalf("src Close: %v", err)
	}

	srcFile, err := OpenReader(bytes.NewReader(srcWS.Bytes()), int64(len(srcWS.Bytes())))
	if err != nil {
		t.Fatalf("OpenReader(src): %v", err)
	}

	dstHeader := newTiledWriterHeader()
	dstWS := newMockWriteSeeker()
	dstWriter, err := NewWriter(dstWS, dstHeader)
	if err != nil {
		t.Fatalf("NewWriter(dst): %v", err)
	}

	if err := CopyTiledPixels(dstWriter, srcFile, 0, 0); err != nil {
		t.Fatalf("CopyTiledPixels: %v", err)
	}
	if err := dstWriter.Close(); err != nil {
		t.Fatalf("dst Close: %v", err)
	}

	dstFile, err := OpenReader(bytes.NewReader(dstWS.Bytes()), int64(len(dstWS.Bytes())))
	if err != nil {
		t.Fatalf("OpenReader(dst): %v", err)
	}

	nx := srcHeader.NumXTiles(0)
	ny := srcHeader.NumYTiles(0)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			idx := tileChunkIndex(srcHeader, tx, ty, 0, 0)
			_, wantData, err := srcFile.ReadTileChunk(0, idx)
			if err != nil {
				t.Fatalf("ReadTileChunk(src,%d): %v", idx, err)
			}
			_, gotData, err := dstFile.ReadTileChunk(0, idx)
			if err != nil {
				t.Fatalf("ReadTileChunk(dst,%d): %v", idx, err)
			}
			if !bytes.Equal(wantData, gotData) {
				t.Errorf("tile (%d,%d): got %v, want %v", tx, ty, gotData, wantData)
			}
		}
	}
}

func TestCopyTiledPixelsRejectsIncompatibleHeader(t *testing.T) {
	srcHeader := newTiledWriterHeader()
	srcWS := newMockWriteSeeker()
	srcWriter, err := NewWriter(srcWS, srcHeader)
	if err != nil {
		t.Fatalf("NewWriter(src): %v", err)
	}
	writeAllTiles(t, srcWriter, 0)
	if err := srcWriter.Close(); err != nil {
		t.Fatalf("src Close: %v", err)
	}
	srcFile, err := OpenReader(bytes.NewReader(srcWS.Bytes()), int64(len(srcWS.Bytes())))
	if err != nil {
		t.Fatalf("OpenReader(src): %v", err)
	}

	dstHeader := NewTiledHeader(8, 8, 2, 2) // different data window
	dstHeader.SetCompression(CompressionNone)
	dstWS := newMockWriteSeeker()
	dstWriter, err := NewWriter(dstWS, dstHeader)
	if err != nil {
		t.Fatalf("NewWriter(dst): %v", err)
	}

	if err := CopyTiledPixels(dstWriter, srcFile, 0, 0); err != ErrIncompatibleForCopy {
		t.Errorf("CopyTiledPixels with mismatched header = %v, want ErrIncompatibleForCopy", err)
	}
}

func TestCopyTiledPixelsRejectsNonEmptyDestination(t *testing.T) {
	srcHeader := newTiledWriterHeader()
	srcWS := newMockWriteSeeker()
	srcWriter, err := NewWriter(srcWS, srcHeader)
	if err != nil {
		t.Fatalf("NewWriter(src): %v", err)
	}
	writeAllTiles(t, srcWriter, 0)
	if err := srcWriter.Close(); err != nil {
		t.Fatalf("src Close: %v", err)
	}
	srcFile, err := OpenReader(bytes.NewReader(srcWS.Bytes()), int64(len(srcWS.Bytes())))
	if err != nil {
		t.Fatalf("OpenReader(src): %v", err)
	}

	dstHeader := newTiledWriterHeader()
	dstWS := newMockWriteSeeker()
	dstWriter, err := NewWriter(dstWS, dstHeader)
	if err != nil {
		t.Fatalf("NewWriter(dst): %v", err)
	}
	writeAllTiles(t, dstWriter, 0)

	if err := CopyTiledPixels(dstWriter, srcFile, 0, 0); err != ErrDestinationNotEmpty {
		t.Errorf("CopyTiledPixels into non-empty destination = %v, want ErrDestinationNotEmpty", err)
	}
}
