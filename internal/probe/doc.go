// Package probe validates recorder output containers, cheaply via their
// leading signature and more thoroughly via ffprobe.
package probe
