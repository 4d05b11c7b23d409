// Package encoder supervises the external ffmpeg process that renders
// the final recording. It builds a deterministic invocation, optionally
// feeds live audio over a FIFO in block-aligned chunks, and walks the
// process through an explicit stop/drain/merge state machine with
// bounded waits and a forced-termination fallback.
package encoder
