package pcm

import (
	"encoding/binary"
	"fmt"
)

// Converter transforms captured blocks from a source hardware format into
// the canonical 16-bit recording format. It is a pure per-block transform:
// no state is carried between calls beyond the two format descriptors.
type Converter struct {
	src Format
	dst Format
	// passthrough is set when src == dst so Convert can hand blocks
	// through untouched.
	passthrough bool
}

// NewConverter builds a converter from src to dst. dst must use the
// canonical 16-bit depth.
func NewConverter(src, dst Format) (*Converter, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source format: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("target format: %w", err)
	}
	if dst.BitsPerSample != CanonicalBitsPerSample {
		return nil, fmt.Errorf("target format must be %d-bit, got %d-bit", CanonicalBitsPerSample, dst.BitsPerSample)
	}
	return &Converter{src: src, dst: dst, passthrough: src == dst}, nil
}

// Passthrough reports whether Convert returns its input unchanged.
func (c *Converter) Passthrough() bool {
	return c.passthrough
}

// Convert transforms one captured block. The input must hold whole sample
// frames of the source format; trailing partial frames are dropped. The
// returned slice holds whole frames of the target format.
func (c *Converter) Convert(block []byte) []byte {
	if c.passthrough {
		return block
	}

	frames := decodeFrames(block, c.src)
	if c.src.Channels != c.dst.Channels {
		frames = remixChannels(frames, c.src.Channels, c.dst.Channels)
	}
	if c.src.SampleRate != c.dst.SampleRate {
		frames = resampleLinear(frames, c.dst.Channels, c.src.SampleRate, c.dst.SampleRate)
	}
	return encodeFrames(frames)
}

// decodeFrames expands raw bytes into one int32 per sample at 16-bit
// scale, frame-interleaved exactly like the input.
func decodeFrames(block []byte, f Format) []int32 {
	bytesPerSample := f.BitsPerSample / 8
	frameSize := f.BlockAlign()
	frameCount := len(block) / frameSize
	out := make([]int32, frameCount*f.Channels)

	for i := range out {
		off := i * bytesPerSample
		switch f.BitsPerSample {
		case 8:
			// WAV convention: 8-bit PCM is unsigned, centered at 128.
			out[i] = (int32(block[off]) - 128) << 8
		case 16:
			out[i] = int32(int16(binary.LittleEndian.Uint16(block[off:])))
		case 24:
			v := int32(block[off]) | int32(block[off+1])<<8 | int32(block[off+2])<<16
			if v&0x800000 != 0 {
				v -= 0x1000000
			}
			out[i] = v >> 8
		case 32:
			out[i] = int32(binary.LittleEndian.Uint32(block[off:])) >> 16
		}
	}
	return out
}

// remixChannels maps srcCh-interleaved samples onto dstCh channels.
// Mixing down averages the source channels; mixing up repeats them.
func remixChannels(samples []int32, srcCh, dstCh int) []int32 {
	frames := len(samples) / srcCh
	out := make([]int32, frames*dstCh)
	for frame := 0; frame < frames; frame++ {
		in := samples[frame*srcCh : frame*srcCh+srcCh]
		dst := out[frame*dstCh : frame*dstCh+dstCh]
		if dstCh < srcCh {
			var sum int64
			for _, s := range in {
				sum += int64(s)
			}
			avg := int32(sum / int64(srcCh))
			for ch := range dst {
				dst[ch] = avg
			}
		} else {
			for ch := range dst {
				dst[ch] = in[ch%srcCh]
			}
		}
	}
	return out
}

// resampleLinear interpolates between neighbouring frames. Good enough
// for system-audio capture where source and target rates are close or
// integer-related; not a polyphase resampler.
func resampleLinear(samples []int32, channels, srcRate, dstRate int) []int32 {
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}
	out := make([]int32, dstFrames*channels)
	for frame := 0; frame < dstFrames; frame++ {
		srcPos := float64(frame) * float64(srcRate) / float64(dstRate)
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}
		for ch := 0; ch < channels; ch++ {
			a := float64(samples[idx*channels+ch])
			b := float64(samples[next*channels+ch])
			out[frame*channels+ch] = int32(a + (b-a)*frac)
		}
	}
	return out
}

func encodeFrames(samples []int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
