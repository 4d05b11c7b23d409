package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"deskrec/internal/logging"
	"deskrec/internal/pcm"
)

// blockPeriod is the nominal duration of one delivered block.
const blockPeriod = 20 * time.Millisecond

// commandContext builds the capture process command; tests stub it.
var commandContext = exec.CommandContext

// FFmpegSource captures loopback audio by running ffmpeg against an
// ALSA device and reading raw PCM from its stdout. The process is asked
// to emit the canonical format directly, so the downstream converter is
// a pass-through.
type FFmpegSource struct {
	binary string
	device string
	format pcm.Format
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	blocks  chan Block
	started bool
	stopped bool
}

// NewFFmpegSource builds a source for the given ALSA device ("default"
// when empty). queueDepth bounds how many undelivered blocks may pile
// up before the reader stalls; zero picks a sane default.
func NewFFmpegSource(binary, device string, format pcm.Format, queueDepth int, logger *slog.Logger) *FFmpegSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	if device == "" {
		device = "default"
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &FFmpegSource{
		binary: binary,
		device: device,
		format: format,
		logger: logging.NewComponentLogger(logger, "capture"),
		blocks: make(chan Block, queueDepth),
	}
}

// Format reports the PCM format the source delivers.
func (s *FFmpegSource) Format() pcm.Format {
	return s.format
}

// Blocks returns the delivery channel.
func (s *FFmpegSource) Blocks() <-chan Block {
	return s.blocks
}

// Start spawns the capture process and begins delivering blocks.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("capture source already started")
	}
	if err := s.format.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "alsa",
		"-i", s.device,
		"-f", "s16le",
		"-ar", strconv.Itoa(s.format.SampleRate),
		"-ac", strconv.Itoa(s.format.Channels),
		"-",
	}
	cmd := commandContext(runCtx, s.binary, args...) //nolint:gosec

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start capture process: %w", err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.started = true

	go s.drainStderr(stderr)
	go s.read(stdout)

	s.logger.Debug("capture process started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("device", s.device),
		logging.String("format", s.format.String()))
	return nil
}

// Stop terminates the capture process. The block channel closes once
// the reader drains the final bytes. Idempotent.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	return nil
}

func (s *FFmpegSource) read(stdout io.Reader) {
	defer close(s.blocks)
	defer s.reap()

	blockBytes := int(int64(s.format.BytesPerSecond()) * int64(blockPeriod) / int64(time.Second))
	align := s.format.BlockAlign()
	blockBytes = blockBytes / align * align
	if blockBytes == 0 {
		blockBytes = align
	}

	for {
		buf := make([]byte, blockBytes)
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			// Trim a short final read down to alignment.
			n = n / align * align
			if n > 0 {
				s.blocks <- Block{Data: buf[:n], Captured: time.Now()}
			}
		}
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if !stopped {
				s.logger.Warn("capture stream ended unexpectedly", logging.Error(err))
			}
			return
		}
	}
}

func (s *FFmpegSource) reap() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil {
		_ = cmd.Wait()
	}
}

func (s *FFmpegSource) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("capture", logging.String("line", scanner.Text()))
	}
}
