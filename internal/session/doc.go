// Package session orchestrates one screen recording: it owns the audio
// timeline recorder and the encoder supervisor and enforces the
// start/stop ordering that keeps their durations aligned. Audio starts
// first and defines the session's time origin; stopping order depends
// on the audio policy. A file lock keeps recordings to one at a time.
package session
