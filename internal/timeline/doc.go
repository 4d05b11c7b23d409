// Package timeline reconstructs a gap-free audio timeline from a live
// capture source. Captured blocks arrive over a channel and are consumed
// by a single goroutine that converts them to the canonical format,
// substitutes block-aligned silence for hardware gaps, and keeps the
// recorded duration equal to wall-clock elapsed time.
package timeline
