package encoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskrec/internal/logging"
	"deskrec/internal/pcm"
)

// stubScript stands in for ffmpeg. It records each invocation when
// STUB_LOG is set, writes an MP4-signature header to the final
// argument, drains any FIFO argument into a sibling file, and exits
// once a single byte arrives on stdin. STUB_FAIL_MERGE makes it refuse
// temp-file outputs, which only the merge invocation produces.
const stubScript = `#!/bin/sh
if [ -n "$STUB_LOG" ]; then
  echo run >> "$STUB_LOG"
fi
last=""
fifo=""
for a in "$@"; do
  if [ -p "$a" ]; then
    fifo="$a"
  fi
  last="$a"
done
case "$last" in
*.temp.*)
  if [ -n "$STUB_FAIL_MERGE" ]; then
    echo "merge refused" >&2
    exit 1
  fi
  ;;
esac
printf '\000\000\000\040ftypisom0123' > "$last"
if [ -n "$fifo" ]; then
  cat "$fifo" > "$fifo.captured"
fi
dd bs=1 count=1 2>/dev/null >/dev/null
exit 0
`

// sleepScript ignores the graceful stop entirely.
const sleepScript = `#!/bin/sh
sleep 60
`

func writeStub(t *testing.T, dir, script string) string {
	t.Helper()
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newTestSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	sup, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sup.sizeStableInterval = 5 * time.Millisecond
	sup.sizeStableTimeout = 2 * time.Second
	t.Cleanup(sup.Dispose)
	return sup
}

func waitPipeConnected(t *testing.T, sup *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sup.pipeMu.Lock()
		connected := sup.pipeConnected
		sup.pipeMu.Unlock()
		if connected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audio pipe never connected")
}

func TestSupervisorStartsConfigured(t *testing.T) {
	sup := newTestSupervisor(t, Config{FrameRate: 30, OutputPath: filepath.Join(t.TempDir(), "out.mp4")})
	if got := sup.State(); got != StateConfigured {
		t.Fatalf("state = %s, want configured", got)
	}
}

func TestStartFailureLeavesConfigured(t *testing.T) {
	cfg := Config{
		FFmpegBinary: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		FrameRate:    30,
		OutputPath:   filepath.Join(t.TempDir(), "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	err := sup.Start()
	if !errors.Is(err, ErrProcessStart) {
		t.Fatalf("Start error = %v, want ErrProcessStart", err)
	}
	if got := sup.State(); got != StateConfigured {
		t.Fatalf("state = %s after failed start", got)
	}
}

func TestStartTwiceIsInvalid(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Start(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start = %v, want ErrInvalidState", err)
	}
	if err := sup.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestGracefulFinish(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sup.State(); got != StateRunning {
		t.Fatalf("state = %s, want running", got)
	}

	if err := sup.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := sup.State(); got != StateExitedClean {
		t.Fatalf("state = %s, want exited-clean", got)
	}

	// Repeated Finish after exit is a no-op.
	if err := sup.Finish(false); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
}

func TestRequestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The stub exits after the first stop byte; further calls must not
	// write again or change state incorrectly.
	sup.RequestStop()
	sup.RequestStop()
	sup.RequestStop()

	if got := sup.State(); got != StateStopRequested {
		t.Fatalf("state = %s, want stop-requested", got)
	}
	if err := sup.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := sup.State(); got != StateExitedClean {
		t.Fatalf("state = %s, want exited-clean", got)
	}
}

func TestQuickFinishKillsStubbornProcess(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, sleepScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
		QuickTimeout: 200 * time.Millisecond,
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := time.Now()
	if err := sup.Finish(true); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("quick finish took %s", elapsed)
	}
	if got := sup.State(); got != StateExitedKilled {
		t.Fatalf("state = %s, want exited-killed", got)
	}
}

func TestLivePipeDeliversAlignedAudio(t *testing.T) {
	dir := t.TempDir()
	format := pcm.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	pipePath := filepath.Join(dir, "audio.pipe")
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		AudioPolicy:  AudioLivePipe,
		AudioFormat:  format,
		PipePath:     pipePath,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitPipeConnected(t, sup)

	// 18 bytes in misaligned chunks; block align is 4, so the peer must
	// see 20 bytes once the padded tail is flushed.
	input := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18}
	sup.WriteAudioData(input[:6])
	sup.WriteAudioData(input[6:13])
	sup.WriteAudioData(input[13:])

	if err := sup.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	captured, err := os.ReadFile(pipePath + ".captured")
	if err != nil {
		t.Fatalf("read captured audio: %v", err)
	}
	if len(captured) != 20 {
		t.Fatalf("captured %d bytes, want 20", len(captured))
	}
	if !bytes.Equal(captured[:18], input) {
		t.Fatalf("captured audio diverges from input: %v", captured)
	}
	if captured[18] != 0 || captured[19] != 0 {
		t.Fatalf("tail padding not zero: %v", captured[18:])
	}

	if _, err := os.Stat(pipePath); !os.IsNotExist(err) {
		t.Fatalf("fifo not removed after finish: %v", err)
	}
}

func TestWriteAudioDataBeforeStartIsDropped(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FrameRate:   30,
		AudioPolicy: AudioLivePipe,
		AudioFormat: pcm.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16},
		PipePath:    filepath.Join(dir, "audio.pipe"),
		OutputPath:  filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	// Must not panic or queue anything while still configured.
	sup.WriteAudioData([]byte{1, 2, 3, 4})
	if got := sup.State(); got != StateConfigured {
		t.Fatalf("state = %s", got)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, sleepScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sup.Dispose()
	sup.Dispose()

	if got := sup.State(); got != StateDisposed {
		t.Fatalf("state = %s, want disposed", got)
	}
}

func TestNoAudioReachesPipeAfterStop(t *testing.T) {
	dir := t.TempDir()
	format := pcm.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	pipePath := filepath.Join(dir, "audio.pipe")
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		AudioPolicy:  AudioLivePipe,
		AudioFormat:  format,
		PipePath:     pipePath,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitPipeConnected(t, sup)

	// 6 bytes at align 4: one aligned frame goes out, 2 bytes carry.
	input := []byte{1, 2, 3, 4, 5, 6}
	sup.WriteAudioData(input)

	// The stop flushes the padded remainder and closes the pipe; the
	// peer stream must end exactly there.
	sup.RequestStop()
	sup.WriteAudioData([]byte{9, 9, 9, 9, 9, 9, 9, 9})
	sup.WriteAudioData([]byte{7, 7, 7, 7})

	if err := sup.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	captured, err := os.ReadFile(pipePath + ".captured")
	if err != nil {
		t.Fatalf("read captured audio: %v", err)
	}
	if len(captured) != 8 {
		t.Fatalf("captured %d bytes, want 8 (aligned input plus padded tail)", len(captured))
	}
	if !bytes.Equal(captured[:6], input) {
		t.Fatalf("captured audio diverges from input: %v", captured)
	}
	if captured[6] != 0 || captured[7] != 0 {
		t.Fatalf("tail padding not zero: %v", captured[6:])
	}
}

func TestConcurrentFinishJoinsInFlight(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary: writeStub(t, dir, stubScript),
		FrameRate:    30,
		OutputPath:   filepath.Join(dir, "out.mp4"),
	}
	sup := newTestSupervisor(t, cfg)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- sup.Finish(false) }()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Finish: %v", err)
		}
	}
	if got := sup.State(); got != StateExitedClean {
		t.Fatalf("state = %s, want exited-clean", got)
	}
}
