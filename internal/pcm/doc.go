// Package pcm describes raw interleaved PCM audio and converts captured
// blocks into the canonical recording format (16-bit little-endian).
package pcm
