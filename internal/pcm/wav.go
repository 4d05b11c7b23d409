package pcm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// WAVWriter streams canonical PCM into a RIFF/WAVE file. The header is
// written with zero sizes up front and patched when the writer is closed,
// so a crash mid-recording leaves a recognizable (if truncated) file.
type WAVWriter struct {
	file      *os.File
	format    Format
	dataBytes int64
	closed    bool
}

// CreateWAV creates path and writes a provisional header for format.
func CreateWAV(path string, format Format) (*WAVWriter, error) {
	if format.BitsPerSample != CanonicalBitsPerSample {
		return nil, fmt.Errorf("wav: only %d-bit PCM is written, got %d-bit", CanonicalBitsPerSample, format.BitsPerSample)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create: %w", err)
	}

	w := &WAVWriter{file: file, format: format}
	if err := w.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Write appends PCM data. Alignment is the caller's concern; the timeline
// recorder only hands over whole sample frames.
func (w *WAVWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("wav: write after close")
	}
	n, err := w.file.Write(p)
	w.dataBytes += int64(n)
	if err != nil {
		return n, fmt.Errorf("wav: write: %w", err)
	}
	return n, nil
}

// DataBytes returns the number of PCM payload bytes written so far.
func (w *WAVWriter) DataBytes() int64 {
	return w.dataBytes
}

// Path returns the destination file path.
func (w *WAVWriter) Path() string {
	return w.file.Name()
}

// Close patches the RIFF and data chunk sizes and closes the file.
// Closing twice is a no-op.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var sizes [4]byte
	// RIFF chunk size at offset 4: total file size minus 8.
	binary.LittleEndian.PutUint32(sizes[:], uint32(wavHeaderSize-8+w.dataBytes))
	if _, err := w.file.WriteAt(sizes[:], 4); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	// data chunk size at offset 40.
	binary.LittleEndian.PutUint32(sizes[:], uint32(w.dataBytes))
	if _, err := w.file.WriteAt(sizes[:], 40); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: patch data size: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wav: close: %w", err)
	}
	return nil
}

func (w *WAVWriter) writeHeader() error {
	f := w.format
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	// Sizes at offsets 4 and 40 stay zero until Close.
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(f.BitsPerSample))
	copy(header[36:40], "data")

	if _, err := w.file.Write(header); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

// ReadWAVInfo reads the header of a canonical WAV file and returns its
// format and payload byte count without touching the audio data.
func ReadWAVInfo(path string) (Format, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Format{}, 0, fmt.Errorf("wav: open: %w", err)
	}
	defer file.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return Format{}, 0, fmt.Errorf("wav: short header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, 0, fmt.Errorf("wav: %s is not a RIFF/WAVE file", path)
	}
	if string(header[12:16]) != "fmt " {
		return Format{}, 0, fmt.Errorf("wav: missing fmt chunk")
	}
	if audioFormat := binary.LittleEndian.Uint16(header[20:22]); audioFormat != 1 {
		return Format{}, 0, fmt.Errorf("wav: unsupported audio format %d (only PCM)", audioFormat)
	}

	format := Format{
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	dataBytes := int64(binary.LittleEndian.Uint32(header[40:44]))
	return format, dataBytes, nil
}
