package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"deskrec/internal/capture"
	"deskrec/internal/config"
	"deskrec/internal/encoder"
	"deskrec/internal/history"
	"deskrec/internal/logging"
	"deskrec/internal/pcm"
	"deskrec/internal/timeline"
)

var (
	// ErrBusy reports that another recording session holds the lock.
	ErrBusy = errors.New("session: another recording is already running")
	// ErrState reports Start/Finish called out of order.
	ErrState = errors.New("session: invalid lifecycle call")
)

const lockFileName = "deskrec.lock"

// Session drives one recording from start to finished output file.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	id         string
	policy     encoder.AudioPolicy
	target     pcm.Format
	outputPath string
	audioPath  string

	source       capture.Source
	recorder     *timeline.Recorder
	supervisor   *encoder.Supervisor
	store        *history.Store
	record       *history.Record
	lock         *flock.Flock
	recorderOpts []timeline.Option

	mu        sync.Mutex
	started   bool
	finished  bool
	startedAt time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithStore enables history persistence for the session outcome.
func WithStore(store *history.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithOutputPath overrides the generated output file location.
func WithOutputPath(path string) Option {
	return func(s *Session) { s.outputPath = path }
}

// WithRecorderOptions forwards extra options to the timeline recorder
// (tests use this to stub the clock and device probe).
func WithRecorderOptions(opts ...timeline.Option) Option {
	return func(s *Session) { s.recorderOpts = append(s.recorderOpts, opts...) }
}

// New assembles a session from configuration. source supplies loopback
// audio and may be nil when the audio policy is none.
func New(cfg *config.Config, source capture.Source, logger *slog.Logger, opts ...Option) (*Session, error) {
	policy, err := encoder.ParseAudioPolicy(cfg.Encoder.AudioPolicy)
	if err != nil {
		return nil, err
	}
	if policy != encoder.AudioNone && source == nil {
		return nil, fmt.Errorf("audio policy %s needs a capture source", policy)
	}

	s := &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "session"),
		id:     uuid.NewString(),
		policy: policy,
		source: source,
		target: pcm.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: cfg.Audio.BitsPerSample,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	short := s.id[:8]
	stamp := time.Now().Format("20060102-150405")
	if s.outputPath == "" {
		name := fmt.Sprintf("recording-%s-%s.%s", stamp, short, cfg.Encoder.Container)
		s.outputPath = filepath.Join(cfg.Paths.OutputDir, name)
	}
	if policy == encoder.AudioFileMerge {
		s.audioPath = filepath.Join(cfg.Paths.WorkDir, fmt.Sprintf("deskrec-%s.wav", short))
	}

	encCfg := encoder.Config{
		FFmpegBinary:  cfg.Encoder.FFmpegBinary,
		FFprobeBinary: cfg.Encoder.FFprobeBinary,
		Display:       cfg.Capture.Display,
		Capture: encoder.Rect{
			X:      cfg.Capture.OffsetX,
			Y:      cfg.Capture.OffsetY,
			Width:  cfg.Capture.Width,
			Height: cfg.Capture.Height,
		},
		FrameRate:    cfg.Capture.FrameRate,
		OutputWidth:  cfg.Encoder.OutputWidth,
		OutputHeight: cfg.Encoder.OutputHeight,
		VideoCodec:   cfg.Encoder.VideoCodec,
		Preset:       cfg.Encoder.Preset,
		CRF:          cfg.Encoder.CRF,
		FastStart:    cfg.Encoder.FastStart,
		AudioPolicy:  policy,
		AudioFormat:  s.target,
		OutputPath:   s.outputPath,
		StopTimeout:  time.Duration(cfg.Encoder.StopTimeoutSeconds) * time.Second,
		MergeTimeout: time.Duration(cfg.Encoder.MergeTimeoutSeconds) * time.Second,
	}
	if policy == encoder.AudioLivePipe {
		encCfg.PipePath = filepath.Join(cfg.Paths.WorkDir, fmt.Sprintf("deskrec-%s.pipe", short))
	}

	sup, err := encoder.New(encCfg, logger)
	if err != nil {
		return nil, err
	}
	s.supervisor = sup

	if policy != encoder.AudioNone {
		tcfg := timeline.Config{
			GapThreshold:  time.Duration(cfg.Audio.GapThresholdMs) * time.Millisecond,
			TailThreshold: time.Duration(cfg.Audio.TailThresholdMs) * time.Millisecond,
		}
		ropts := []timeline.Option{
			timeline.WithDeviceCheck(func() (bool, error) {
				return capture.HaveCaptureDevice(cfg.Audio.Device)
			}),
		}
		if policy == encoder.AudioLivePipe {
			ropts = append(ropts, timeline.WithSubscriber(sup.WriteAudioData))
		}
		ropts = append(ropts, s.recorderOpts...)
		s.recorder = timeline.New(tcfg, source, logger, ropts...)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// OutputPath returns where the finished recording lands.
func (s *Session) OutputPath() string { return s.outputPath }

// Start acquires the single-instance lock and brings up both halves of
// the recording: audio first, since it defines the time origin, then
// the encoder after a short settle delay.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: already started", ErrState)
	}
	s.started = true
	s.mu.Unlock()

	if err := s.cfg.EnsureDirectories(); err != nil {
		return err
	}

	s.lock = flock.New(filepath.Join(s.cfg.Paths.WorkDir, lockFileName))
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !locked {
		return ErrBusy
	}

	s.startedAt = time.Now()
	s.beginHistory(ctx)

	if s.recorder != nil {
		if err := s.recorder.Start(ctx, s.target, s.audioPath); err != nil {
			s.failHistory(ctx, err)
			s.unlock()
			return err
		}
		s.settle()
	}

	if err := s.supervisor.Start(); err != nil {
		if s.recorder != nil {
			_ = s.recorder.Stop()
		}
		s.failHistory(ctx, err)
		s.unlock()
		return err
	}

	s.logger.Info("recording started",
		logging.String(logging.FieldSessionID, s.id),
		logging.String("policy", s.policy.String()),
		logging.String(logging.FieldPath, s.outputPath))
	return nil
}

// Finish stops the recording in policy order and waits for the encoder
// to produce the final file. A failed audio merge is logged and folded
// into the history outcome but not returned: the video-only file is a
// valid artifact.
func (s *Session) Finish(ctx context.Context) error {
	return s.shutdown(ctx, false)
}

// Abort tears the session down with the short encoder bound. Used when
// the user insists on exiting immediately.
func (s *Session) Abort(ctx context.Context) error {
	return s.shutdown(ctx, true)
}

// Kill force-terminates the encoder out from under an in-flight Finish,
// which then returns promptly with the killed outcome.
func (s *Session) Kill() {
	s.supervisor.Kill()
	if s.recorder != nil {
		_ = s.recorder.Stop()
	}
}

func (s *Session) shutdown(ctx context.Context, quick bool) error {
	s.mu.Lock()
	if !s.started || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.finished = true
	s.mu.Unlock()

	defer s.unlock()
	defer s.supervisor.Dispose()

	var finishErr error
	switch s.policy {
	case encoder.AudioLivePipe:
		// Stop consumption before production: the supervisor flushes
		// and closes the pipe, then the recorder closes its stream.
		s.supervisor.RequestStop()
		_ = s.recorder.Stop()
		finishErr = s.supervisor.Finish(quick)
	case encoder.AudioFileMerge:
		_ = s.recorder.Stop()
		s.settle()
		s.supervisor.SetAudioFile(s.resolveAudioFile())
		finishErr = s.supervisor.Finish(quick)
	default:
		finishErr = s.supervisor.Finish(quick)
	}

	outcome, detail := s.classify(finishErr)
	s.finishHistory(ctx, outcome, detail)

	s.logger.Info("recording finished",
		logging.String(logging.FieldSessionID, s.id),
		logging.String("outcome", string(outcome)),
		logging.String(logging.FieldPath, s.outputPath))

	if finishErr != nil && !errors.Is(finishErr, encoder.ErrMergeFailed) {
		return finishErr
	}
	return nil
}

// resolveAudioFile prefers the session's own WAV and falls back to the
// newest matching temp file in the work directory, covering recorders
// that rotate their scratch names.
func (s *Session) resolveAudioFile() string {
	if s.audioPath != "" {
		if info, err := os.Stat(s.audioPath); err == nil && !info.IsDir() {
			return s.audioPath
		}
	}
	if newest, ok := newestWAV(s.cfg.Paths.WorkDir, "deskrec-"); ok {
		return newest
	}
	return s.audioPath
}

func (s *Session) classify(finishErr error) (history.Outcome, string) {
	switch {
	case s.supervisor.State() == encoder.StateExitedKilled:
		return history.OutcomeKilled, "encoder ignored stop request"
	case errors.Is(finishErr, encoder.ErrMergeFailed):
		return history.OutcomeVideoOnly, finishErr.Error()
	case finishErr != nil:
		return history.OutcomeFailed, finishErr.Error()
	default:
		return history.OutcomeCompleted, ""
	}
}

func (s *Session) settle() {
	delay := time.Duration(s.cfg.Audio.SettleDelayMs) * time.Millisecond
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (s *Session) unlock() {
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("release session lock", logging.Error(err))
		}
		s.lock = nil
	}
}

func (s *Session) beginHistory(ctx context.Context) {
	if s.store == nil {
		return
	}
	rec := &history.Record{
		SessionID:   s.id,
		OutputPath:  s.outputPath,
		AudioPath:   s.audioPath,
		AudioPolicy: s.policy.String(),
		StartedAt:   s.startedAt,
	}
	if err := s.store.Begin(ctx, rec); err != nil {
		s.logger.Warn("record session start", logging.Error(err))
		return
	}
	s.record = rec
}

func (s *Session) failHistory(ctx context.Context, cause error) {
	s.finishHistory(ctx, history.OutcomeFailed, cause.Error())
}

func (s *Session) finishHistory(ctx context.Context, outcome history.Outcome, detail string) {
	if s.store == nil || s.record == nil {
		return
	}
	now := time.Now().UTC()
	s.record.Outcome = outcome
	s.record.Detail = detail
	s.record.EndedAt = &now

	if s.recorder != nil {
		state := s.recorder.State()
		s.record.DurationMs = state.Elapsed().Milliseconds()
		s.record.AudioBytes = state.TotalBytesWritten
	} else {
		s.record.DurationMs = time.Since(s.startedAt).Milliseconds()
	}
	if info, err := os.Stat(s.outputPath); err == nil {
		s.record.VideoBytes = info.Size()
	}

	if err := s.store.Finish(ctx, s.record); err != nil {
		s.logger.Warn("record session outcome", logging.Error(err))
	}
}
