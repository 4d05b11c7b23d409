package capture

import (
	"context"
	"errors"
	"time"

	"deskrec/internal/pcm"
)

// ErrNoDevice reports that no loopback capture device is available.
var ErrNoDevice = errors.New("no loopback capture device available")

// Block is one captured chunk of raw interleaved PCM in the source's
// hardware format, stamped with its arrival time.
type Block struct {
	Data     []byte
	Captured time.Time
}

// Source delivers captured audio blocks over a channel. The channel is
// the serialization point: at most one consumer drains it, so downstream
// timeline state needs no lock of its own. Closing the channel without a
// prior Stop call signals unexpected stream termination.
type Source interface {
	// Format describes the hardware format the source delivers.
	Format() pcm.Format
	// Start begins capture. Blocks may arrive as soon as Start returns.
	Start(ctx context.Context) error
	// Blocks returns the delivery channel. It is closed when the stream
	// ends, whether by Stop or by device failure.
	Blocks() <-chan Block
	// Stop ends capture and closes the block channel. Idempotent.
	Stop() error
}
