package encoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"deskrec/internal/logging"
)

// State tracks the external encoder process lifecycle.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StateStopRequested
	StateDraining
	StateExitedClean
	StateExitedKilled
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop-requested"
	case StateDraining:
		return "draining"
	case StateExitedClean:
		return "exited-clean"
	case StateExitedKilled:
		return "exited-killed"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrProcessStart reports that the encoder executable could not be
	// spawned. Fatal; nothing was recorded.
	ErrProcessStart = errors.New("encoder: process start failed")
	// ErrMergeFailed reports that the audio merge was abandoned; the
	// video-only original remains the final artifact.
	ErrMergeFailed = errors.New("encoder: audio merge failed")
	// ErrInvalidState reports an operation in the wrong lifecycle state.
	ErrInvalidState = errors.New("encoder: invalid state")
)

// Supervisor owns the external ffmpeg process and, under the live-pipe
// policy, the writer end of its audio FIFO. The process handle is never
// shared: all interaction goes through the methods below.
//
// Two locks per the concurrency model: mu guards the state machine and
// process handle against concurrent RequestStop/Finish/Dispose; pipeMu
// guards the pipe write path against a stop-time flush racing
// WriteAudioData.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	waitCh      chan error
	audioFile   string
	forceKilled bool
	finishDone  chan struct{}
	finishErr   error

	pipeMu        sync.Mutex
	pipe          *os.File
	pipeConnected bool
	pipeClosed    bool
	pipeBroken    bool
	align         *aligner
	droppedBytes  int64
	connectQuit   chan struct{}

	// Stabilization sampling; tests shrink these.
	sizeStableInterval time.Duration
	sizeStableTimeout  time.Duration
}

// New validates cfg and returns a supervisor in the Configured state.
func New(cfg Config, logger *slog.Logger) (*Supervisor, error) {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:                cfg,
		logger:             logging.NewComponentLogger(logger, "encoder"),
		state:              StateConfigured,
		align:              newAligner(cfg.AudioFormat.BlockAlign()),
		sizeStableInterval: 100 * time.Millisecond,
		sizeStableTimeout:  60 * time.Second,
	}, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAudioFile hands the supervisor the recorded WAV to merge in after
// the encode finishes (FileMerge only).
func (s *Supervisor) SetAudioFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioFile = path
}

// Start spawns the encoder process and begins draining its error stream.
// Under LivePipe it also creates the FIFO and waits, asynchronously, for
// the process to open its reading end.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return fmt.Errorf("%w: Start in %s", ErrInvalidState, s.state)
	}

	if s.cfg.AudioPolicy == AudioLivePipe {
		if err := s.createPipe(); err != nil {
			return fmt.Errorf("%w: %v", ErrProcessStart, err)
		}
	}

	args := s.cfg.buildArgs()
	cmd := exec.Command(s.cfg.FFmpegBinary, args...) //nolint:gosec
	// Own process group so a forced kill reaps ffmpeg's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.removePipe()
		return fmt.Errorf("%w: stdin pipe: %v", ErrProcessStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.removePipe()
		return fmt.Errorf("%w: stderr pipe: %v", ErrProcessStart, err)
	}

	if err := cmd.Start(); err != nil {
		s.removePipe()
		return fmt.Errorf("%w: %v", ErrProcessStart, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.waitCh = make(chan error, 1)
	s.state = StateRunning

	go func() { s.waitCh <- cmd.Wait() }()
	go s.drainStderr(stderr)
	if s.cfg.AudioPolicy == AudioLivePipe {
		quit := make(chan struct{})
		s.connectQuit = quit
		go s.connectPipe(quit)
	}

	s.logger.Info("encoder process started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("policy", s.cfg.AudioPolicy.String()),
		logging.String(logging.FieldPath, s.cfg.OutputPath))
	return nil
}

// drainStderr forwards encoder diagnostics line by line so the child
// never blocks on a full stderr buffer.
func (s *Supervisor) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("ffmpeg", logging.String("line", scanner.Text()))
	}
}

func (s *Supervisor) createPipe() error {
	_ = os.Remove(s.cfg.PipePath)
	if err := unix.Mkfifo(s.cfg.PipePath, 0o600); err != nil {
		return fmt.Errorf("create fifo %s: %w", s.cfg.PipePath, err)
	}
	return nil
}

func (s *Supervisor) removePipe() {
	if s.cfg.PipePath != "" {
		_ = os.Remove(s.cfg.PipePath)
	}
}

// connectPipe opens the FIFO writer end once ffmpeg opens the reader.
// Opening with O_NONBLOCK fails with ENXIO until a reader exists, so we
// poll rather than park a goroutine on a blocking open forever.
func (s *Supervisor) connectPipe(quit <-chan struct{}) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		file, err := os.OpenFile(s.cfg.PipePath, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			if errors.Is(err, unix.ENXIO) {
				continue
			}
			s.logger.Warn("audio pipe open failed; live audio disabled", logging.Error(err))
			return
		}

		s.pipeMu.Lock()
		if s.pipeClosed {
			s.pipeMu.Unlock()
			file.Close()
			return
		}
		s.pipe = file
		s.pipeConnected = true
		dropped := s.droppedBytes
		s.pipeMu.Unlock()

		s.logger.Debug("audio pipe connected",
			logging.Int64("dropped_before_connect", dropped))
		return
	}
}

// WriteAudioData feeds one chunk of canonical PCM toward the encoder.
// Valid only while Running or StopRequested under LivePipe with a
// connected peer; in every other situation the chunk is dropped, never
// queued, so a slow or absent peer cannot grow an unbounded buffer.
// Only block-aligned payloads reach the pipe; the unaligned tail is
// carried into the next call.
func (s *Supervisor) WriteAudioData(p []byte) {
	if s.cfg.AudioPolicy != AudioLivePipe || len(p) == 0 {
		return
	}

	switch s.State() {
	case StateRunning, StateStopRequested:
	default:
		return
	}

	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	if !s.pipeConnected || s.pipeClosed || s.pipeBroken {
		s.droppedBytes += int64(len(p))
		return
	}

	aligned := s.align.push(p)
	if len(aligned) == 0 {
		return
	}
	if _, err := s.pipe.Write(aligned); err != nil {
		// Peer went away mid-write. Downgrade to a no-op; the session
		// carries on and the stop path sorts out the process itself.
		s.pipeBroken = true
		s.logger.Warn("audio pipe write failed; dropping further audio", logging.Error(err))
	}
}

// RequestStop asks the encoder to finish gracefully. Idempotent. Under
// LivePipe the order is fixed: flush the zero-padded remainder, close
// the FIFO (EOF to the peer), and only then send the stop character —
// otherwise ffmpeg can block waiting for more audio instead of quitting.
func (s *Supervisor) RequestStop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopRequested
	stdin := s.stdin
	s.mu.Unlock()

	if s.cfg.AudioPolicy == AudioLivePipe {
		s.closePipe()
	}

	// Exactly one graceful-stop character on the child's stdin.
	if _, err := stdin.Write([]byte{'q'}); err != nil {
		s.logger.Debug("graceful stop write failed; process likely exited", logging.Error(err))
	}

	s.logger.Info("encoder stop requested")
}

// closePipe flushes the alignment remainder and closes the FIFO writer.
// After it returns no audio bytes can reach the pipe.
func (s *Supervisor) closePipe() {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	if s.pipeClosed {
		return
	}
	s.pipeClosed = true

	if s.connectQuit != nil {
		close(s.connectQuit)
		s.connectQuit = nil
	}

	if s.pipeConnected && !s.pipeBroken {
		if tail := s.align.flush(); tail != nil {
			if _, err := s.pipe.Write(tail); err != nil {
				s.logger.Warn("final audio flush failed", logging.Error(err))
			}
		}
	}
	if s.pipe != nil {
		_ = s.pipe.Close()
		s.pipe = nil
	}
	if s.droppedBytes > 0 {
		s.logger.Info("audio dropped while pipe unavailable",
			logging.Int64("bytes", s.droppedBytes))
	}
}

// Finish waits for the encoder to exit, force-killing it when the bound
// elapses. quickExit selects the short bound used during urgent
// teardown; the ordinary bound scales with the output size. Under
// FileMerge a successful exit is followed by the merge sub-protocol;
// its failure surfaces as ErrMergeFailed while the video-only file
// remains valid.
func (s *Supervisor) Finish(quickExit bool) error {
	s.RequestStop()

	s.mu.Lock()
	switch s.state {
	case StateStopRequested:
	case StateDraining:
		// Another Finish is already draining; join it and share its
		// result instead of failing the caller.
		done := s.finishDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		err := s.finishErr
		s.mu.Unlock()
		return err
	case StateExitedClean, StateExitedKilled:
		s.mu.Unlock()
		return nil
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: Finish in %s", ErrInvalidState, state)
	}
	s.state = StateDraining
	s.finishDone = make(chan struct{})
	waitCh := s.waitCh
	s.mu.Unlock()

	bound := s.finishBound(quickExit)
	killed := false

	select {
	case err := <-waitCh:
		if err != nil {
			s.logger.Warn("encoder exited with error", logging.Error(err))
		}
	case <-time.After(bound):
		s.logger.Warn("encoder ignored stop; force killing",
			logging.Duration("bound", bound))
		s.killProcess()
		killed = true
		select {
		case <-waitCh:
		case <-time.After(2 * time.Second):
		}
	}

	s.mu.Lock()
	killed = killed || s.forceKilled
	audioFile := s.audioFile
	s.mu.Unlock()

	s.removePipe()

	// The merge sub-protocol belongs to the draining phase: joiners see
	// the exit state only once the final artifact is settled.
	var finishErr error
	if s.cfg.AudioPolicy == AudioFileMerge && !killed {
		finishErr = s.mergeAudio(audioFile)
	}

	s.mu.Lock()
	if killed {
		s.state = StateExitedKilled
	} else {
		s.state = StateExitedClean
	}
	s.finishErr = finishErr
	done := s.finishDone
	s.mu.Unlock()
	close(done)

	return finishErr
}

// finishBound picks the wait bound: a few seconds for urgent teardown,
// otherwise scaled to the bytes ffmpeg still has to move — one minute
// per started GiB, clamped between two minutes and half an hour.
func (s *Supervisor) finishBound(quickExit bool) time.Duration {
	if quickExit {
		return s.cfg.QuickTimeout
	}

	bound := s.cfg.StopTimeout
	if info, err := os.Stat(s.cfg.OutputPath); err == nil {
		gib := info.Size()/(1<<30) + 1
		scaled := time.Duration(gib) * time.Minute
		if scaled < 2*time.Minute {
			scaled = 2 * time.Minute
		}
		if scaled > 30*time.Minute {
			scaled = 30 * time.Minute
		}
		if scaled > bound {
			bound = scaled
		}
	}
	return bound
}

// Kill force-terminates the encoder process group immediately. An
// in-flight Finish observes the exit and reports the killed state.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	s.forceKilled = true
	s.mu.Unlock()
	s.killProcess()
}

func (s *Supervisor) killProcess() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	// Negative pid addresses the whole process group.
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// Dispose releases every handle the supervisor still owns. Idempotent;
// a still-running process is killed first.
func (s *Supervisor) Dispose() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	running := s.state == StateRunning || s.state == StateStopRequested || s.state == StateDraining
	stdin := s.stdin
	s.state = StateDisposed
	s.mu.Unlock()

	if s.cfg.AudioPolicy == AudioLivePipe {
		s.closePipe()
	}
	if running {
		s.killProcess()
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	s.removePipe()

	s.logger.Debug("encoder disposed")
}
