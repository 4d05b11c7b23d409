package pcm

import (
	"fmt"
)

// CanonicalBitsPerSample is the bit depth every recorded stream is
// normalized to before it reaches a file or the encoder pipe.
const CanonicalBitsPerSample = 16

// Format describes raw interleaved PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BlockAlign returns the size in bytes of one sample frame
// (channels × bytes per sample). Byte offsets into a stream must fall on
// multiples of this value.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate reports whether the format can describe a real stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("pcm: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("pcm: channel count must be positive, got %d", f.Channels)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("pcm: unsupported bit depth %d", f.BitsPerSample)
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitsPerSample, f.Channels)
}
