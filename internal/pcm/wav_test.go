package pcm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}

	w, err := CreateWAV(path, format)
	if err != nil {
		t.Fatalf("CreateWAV: %v", err)
	}

	payload := make([]byte, 4800*format.BlockAlign())
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.DataBytes() != int64(len(payload)) {
		t.Fatalf("DataBytes = %d, want %d", w.DataBytes(), len(payload))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gotFormat, gotBytes, err := ReadWAVInfo(path)
	if err != nil {
		t.Fatalf("ReadWAVInfo: %v", err)
	}
	if gotFormat != format {
		t.Fatalf("format round-trip: got %v, want %v", gotFormat, format)
	}
	if gotBytes != int64(len(payload)) {
		t.Fatalf("data bytes: got %d, want %d", gotBytes, len(payload))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != int64(wavHeaderSize+len(payload)) {
		t.Fatalf("file size: got %d, want %d", info.Size(), wavHeaderSize+len(payload))
	}
}

func TestWAVWriterCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := CreateWAV(path, Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16})
	if err != nil {
		t.Fatalf("CreateWAV: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := w.Write([]byte{0, 0}); err == nil {
		t.Fatal("expected write-after-close error")
	}
}

func TestWAVWriterRejectsNonCanonicalDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	_, err := CreateWAV(path, Format{SampleRate: 48000, Channels: 2, BitsPerSample: 24})
	if err == nil {
		t.Fatal("expected error for 24-bit writer")
	}
}

func TestWAVHeaderFieldsMatchFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	w, err := CreateWAV(path, format)
	if err != nil {
		t.Fatalf("CreateWAV: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := binary.LittleEndian.Uint32(raw[28:32]); got != 176400 {
		t.Fatalf("byte rate field = %d, want 176400", got)
	}
	if got := binary.LittleEndian.Uint16(raw[32:34]); got != 4 {
		t.Fatalf("block align field = %d, want 4", got)
	}
}

func TestReadWAVInfoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ReadWAVInfo(path); err == nil {
		t.Fatal("expected error for non-WAV data")
	}
}
