package encoder

// aligner chops an arbitrary byte stream into block-aligned chunks,
// carrying up to blockAlign-1 trailing bytes between pushes. The FIFO
// peer only ever sees whole sample frames.
type aligner struct {
	align     int
	remainder []byte
}

func newAligner(align int) *aligner {
	if align < 1 {
		align = 1
	}
	return &aligner{align: align}
}

// push combines the carried remainder with p and returns the largest
// aligned prefix; the unaligned tail is carried into the next push.
func (a *aligner) push(p []byte) []byte {
	if len(a.remainder) == 0 && len(p)%a.align == 0 {
		return p
	}

	combined := append(a.remainder, p...)
	cut := len(combined) / a.align * a.align
	a.remainder = append([]byte(nil), combined[cut:]...)
	return combined[:cut]
}

// flush zero-pads the carried remainder up to alignment and resets it.
// Returns nil when nothing is pending.
func (a *aligner) flush() []byte {
	if len(a.remainder) == 0 {
		return nil
	}
	padded := make([]byte, a.align)
	copy(padded, a.remainder)
	a.remainder = nil
	return padded
}

// pending returns the number of carried bytes.
func (a *aligner) pending() int {
	return len(a.remainder)
}
