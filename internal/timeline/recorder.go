package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deskrec/internal/capture"
	"deskrec/internal/logging"
	"deskrec/internal/pcm"
)

// ErrConfiguration reports an unusable target format or missing device.
var ErrConfiguration = errors.New("timeline: configuration error")

const (
	heartbeatInterval = 5 * time.Second
	stopWaitBound     = 3 * time.Second
	silenceChunkSize  = 32 * 1024
)

// Config carries the recorder's tunable thresholds. The gap and tail
// values are empirical; they are configuration, not invariants.
type Config struct {
	GapThreshold  time.Duration
	TailThreshold time.Duration
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		GapThreshold:  100 * time.Millisecond,
		TailThreshold: 20 * time.Millisecond,
	}
}

// State is a snapshot of the recorder's timeline bookkeeping.
type State struct {
	StartTime         time.Time
	LastSampleTime    time.Time
	StopTime          time.Time
	BytesPerSecond    int
	BlockAlign        int
	TotalBytesWritten int64
}

// Elapsed returns the audio duration represented by TotalBytesWritten.
func (s State) Elapsed() time.Duration {
	if s.BytesPerSecond == 0 {
		return 0
	}
	return time.Duration(s.TotalBytesWritten * int64(time.Second) / int64(s.BytesPerSecond))
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSubscriber registers a consumer for every canonical-format chunk
// the recorder emits, silence included. Used to feed the encoder pipe.
func WithSubscriber(fn func([]byte)) Option {
	return func(r *Recorder) { r.subscriber = fn }
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithDeviceCheck overrides loopback availability detection (tests).
func WithDeviceCheck(fn func() (bool, error)) Option {
	return func(r *Recorder) { r.deviceCheck = fn }
}

// Recorder owns one capture source and reconstructs its timeline.
//
// All timeline mutation happens on the single consumer goroutine draining
// the source's block channel, so State needs no lock against itself; the
// mutex only guards lifecycle transitions and snapshot reads.
type Recorder struct {
	cfg         Config
	source      capture.Source
	logger      *slog.Logger
	subscriber  func([]byte)
	now         func() time.Time
	deviceCheck func() (bool, error)

	mu       sync.Mutex
	state    State
	target   pcm.Format
	conv     *pcm.Converter
	writer   *pcm.WAVWriter
	started  bool
	stopped  bool
	done     chan struct{}
	lastBeat time.Time
}

// New constructs a recorder over the given capture source.
func New(cfg Config, source capture.Source, logger *slog.Logger, opts ...Option) *Recorder {
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = DefaultConfig().GapThreshold
	}
	if cfg.TailThreshold <= 0 {
		cfg.TailThreshold = DefaultConfig().TailThreshold
	}
	r := &Recorder{
		cfg:    cfg,
		source: source,
		logger: logging.NewComponentLogger(logger, "timeline"),
		now:    time.Now,
		deviceCheck: func() (bool, error) {
			return capture.HaveCaptureDevice("")
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the target format, binds to the capture source, and
// begins consuming blocks. outputPath may be empty when the audio only
// feeds a live subscriber.
func (r *Recorder) Start(ctx context.Context, target pcm.Format, outputPath string) error {
	if target.BitsPerSample != pcm.CanonicalBitsPerSample {
		return fmt.Errorf("%w: target must be %d-bit, got %d-bit",
			ErrConfiguration, pcm.CanonicalBitsPerSample, target.BitsPerSample)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	available, err := r.deviceCheck()
	if err != nil {
		return fmt.Errorf("%w: probe capture devices: %v", ErrConfiguration, err)
	}
	if !available {
		return fmt.Errorf("%w: %v", ErrConfiguration, capture.ErrNoDevice)
	}

	conv, err := pcm.NewConverter(r.source.Format(), target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var writer *pcm.WAVWriter
	if outputPath != "" {
		writer, err = pcm.CreateWAV(outputPath, target)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		if writer != nil {
			writer.Close()
		}
		return fmt.Errorf("%w: recorder already started", ErrConfiguration)
	}

	start := r.now()
	r.target = target
	r.conv = conv
	r.writer = writer
	r.state = State{
		StartTime:      start,
		LastSampleTime: start,
		BytesPerSecond: target.BytesPerSecond(),
		BlockAlign:     target.BlockAlign(),
	}
	r.lastBeat = start
	r.started = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	if err := r.source.Start(ctx); err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		if writer != nil {
			writer.Close()
		}
		if errors.Is(err, capture.ErrNoDevice) {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return fmt.Errorf("start capture: %w", err)
	}

	go r.consume()

	r.logger.Info("audio timeline started",
		logging.String("format", target.String()),
		logging.String(logging.FieldPath, outputPath))
	return nil
}

// Stop ends the recording: it stops the source, waits (bounded) for the
// consumer to drain, closes the tail gap with aligned silence, and closes
// the output file. A second Stop is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.state.StopTime = r.now()
	done := r.done
	r.mu.Unlock()

	if err := r.source.Stop(); err != nil {
		r.logger.Warn("capture source stop", logging.Error(err))
	}

	select {
	case <-done:
	case <-time.After(stopWaitBound):
		r.logger.Warn("timed out waiting for capture drain",
			logging.Duration("bound", stopWaitBound))
	}
	return nil
}

// Done reports when the consumer goroutine has drained the source and
// finalized the output. It also fires after an implicit stop, so session
// code can notice a dying capture stream. Only valid after Start.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// State returns a snapshot of the timeline bookkeeping.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// consume is the single timeline-processing goroutine. The source channel
// serializes delivery, so state mutation here needs no extra lock.
func (r *Recorder) consume() {
	for block := range r.source.Blocks() {
		r.handleBlock(block)
	}
	r.finalize()
	close(r.done)
}

func (r *Recorder) handleBlock(block capture.Block) {
	arrived := block.Captured
	if arrived.IsZero() {
		arrived = r.now()
	}

	r.fillGap(arrived)

	converted := r.conv.Convert(block.Data)
	if len(converted) == 0 {
		return
	}
	r.emit(converted)
	r.advance(int64(len(converted)))

	if now := r.now(); now.Sub(r.lastBeat) >= heartbeatInterval {
		r.lastBeat = now
		state := r.State()
		r.logger.Debug("timeline heartbeat",
			logging.Int64("bytes_written", state.TotalBytesWritten),
			logging.Duration("recorded", state.Elapsed()),
			logging.Duration("wall", now.Sub(state.StartTime)))
	}
}

// fillGap inserts block-aligned silence when the capture stream stalled
// longer than the configured threshold.
func (r *Recorder) fillGap(arrived time.Time) {
	r.mu.Lock()
	last := r.state.LastSampleTime
	bps := int64(r.state.BytesPerSecond)
	align := int64(r.state.BlockAlign)
	r.mu.Unlock()

	gap := arrived.Sub(last)
	if gap <= r.cfg.GapThreshold {
		return
	}

	missing := gap.Nanoseconds() * bps / int64(time.Second)
	missing = missing / align * align
	if missing <= 0 {
		return
	}

	r.writeSilence(missing)
	r.advance(missing)

	r.logger.Debug("inserted silence for capture gap",
		logging.Duration("gap", gap),
		logging.Int64("bytes", missing))
}

func (r *Recorder) writeSilence(n int64) {
	zeros := make([]byte, silenceChunkSize)
	for n > 0 {
		chunk := n
		if chunk > silenceChunkSize {
			chunk = silenceChunkSize
		}
		r.emit(zeros[:chunk])
		n -= chunk
	}
}

// emit hands one canonical chunk to the file writer and the subscriber.
// Write failures downgrade to warnings: a dead sink must not take the
// capture loop down with it.
func (r *Recorder) emit(data []byte) {
	if r.writer != nil {
		if _, err := r.writer.Write(data); err != nil {
			r.logger.Warn("audio file write failed", logging.Error(err))
		}
	}
	if r.subscriber != nil {
		r.subscriber(data)
	}
}

// advance moves LastSampleTime forward by the duration n bytes represent.
func (r *Recorder) advance(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.TotalBytesWritten += n
	advance := time.Duration(n * int64(time.Second) / int64(r.state.BytesPerSecond))
	r.state.LastSampleTime = r.state.LastSampleTime.Add(advance)
}

// finalize runs on the consumer goroutine once the block channel closes,
// either after an explicit Stop or because the stream died underneath us.
// The latter is treated as an implicit stop and logged, never surfaced.
func (r *Recorder) finalize() {
	r.mu.Lock()
	stop := r.state.StopTime
	implicit := stop.IsZero()
	if implicit {
		stop = r.now()
		r.state.StopTime = stop
		r.stopped = true
	}
	r.mu.Unlock()

	if implicit {
		r.logger.Warn("capture stream ended unexpectedly; treating as stop")
	}

	r.mu.Lock()
	tail := stop.Sub(r.state.LastSampleTime)
	bps := int64(r.state.BytesPerSecond)
	align := int64(r.state.BlockAlign)
	r.mu.Unlock()

	if tail > r.cfg.TailThreshold {
		missing := tail.Nanoseconds() * bps / int64(time.Second)
		missing = missing / align * align
		if missing > 0 {
			r.writeSilence(missing)
			r.advance(missing)
		}
	}

	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			r.logger.Warn("close audio file", logging.Error(err))
		}
	}

	state := r.State()
	r.logger.Info("audio timeline closed",
		logging.Duration("recorded", state.Elapsed()),
		logging.Duration("wall", state.StopTime.Sub(state.StartTime)),
		logging.Int64("bytes_written", state.TotalBytesWritten))
}
