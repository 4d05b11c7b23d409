package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"deskrec/internal/pcm"
)

// AudioPolicy selects how system audio reaches the final container.
type AudioPolicy int

const (
	// AudioNone records video only.
	AudioNone AudioPolicy = iota
	// AudioLivePipe feeds raw PCM to ffmpeg over a FIFO while recording.
	AudioLivePipe
	// AudioFileMerge muxes a separately recorded WAV in after the fact.
	AudioFileMerge
)

// ParseAudioPolicy maps a configuration string onto a policy value.
func ParseAudioPolicy(s string) (AudioPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AudioNone, nil
	case "live-pipe":
		return AudioLivePipe, nil
	case "file-merge":
		return AudioFileMerge, nil
	default:
		return AudioNone, fmt.Errorf("unknown audio policy %q", s)
	}
}

func (p AudioPolicy) String() string {
	switch p {
	case AudioNone:
		return "none"
	case AudioLivePipe:
		return "live-pipe"
	case AudioFileMerge:
		return "file-merge"
	default:
		return fmt.Sprintf("audio-policy(%d)", int(p))
	}
}

// Rect describes the captured screen region. Zero Width/Height means the
// whole display.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Config describes one encoder invocation. It is immutable once the
// process starts.
type Config struct {
	FFmpegBinary  string
	FFprobeBinary string

	Display   string
	Capture   Rect
	FrameRate int

	// OutputWidth/OutputHeight, when both set and different from the
	// capture size, insert a scale filter.
	OutputWidth  int
	OutputHeight int

	VideoCodec string
	Preset     string
	CRF        int

	FastStart bool

	AudioPolicy AudioPolicy
	AudioFormat pcm.Format
	// PipePath is the FIFO the live audio feed uses (LivePipe only).
	PipePath string

	OutputPath string

	// StopTimeout bounds the ordinary graceful-stop wait; QuickTimeout
	// bounds urgent teardown. MergeTimeout bounds the merge invocation.
	StopTimeout  time.Duration
	QuickTimeout time.Duration
	MergeTimeout time.Duration
}

func (c *Config) validate() error {
	if c.OutputPath == "" {
		return errors.New("encoder: output path required")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("encoder: frame rate must be positive, got %d", c.FrameRate)
	}
	if c.AudioPolicy == AudioLivePipe {
		if c.PipePath == "" {
			return errors.New("encoder: live-pipe policy needs a pipe path")
		}
		if err := c.AudioFormat.Validate(); err != nil {
			return fmt.Errorf("encoder: %w", err)
		}
	}
	if (c.OutputWidth == 0) != (c.OutputHeight == 0) {
		return errors.New("encoder: output width and height must be set together")
	}
	return nil
}

func (c *Config) withDefaults() {
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = "ffprobe"
	}
	if c.Display == "" {
		c.Display = ":0.0"
	}
	if c.VideoCodec == "" {
		c.VideoCodec = "libx264"
	}
	if c.Preset == "" {
		c.Preset = "veryfast"
	}
	if c.CRF == 0 {
		c.CRF = 23
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.QuickTimeout <= 0 {
		c.QuickTimeout = 3 * time.Second
	}
	if c.MergeTimeout <= 0 {
		c.MergeTimeout = 5 * time.Minute
	}
}

// buildArgs assembles the ffmpeg argument list. The order is fixed:
// capture-region input, optional raw-PCM input, codec and quality
// parameters, optional scale filter, container flags, output path.
func (c *Config) buildArgs() []string {
	args := make([]string, 0, 32)
	args = append(args, "-hide_banner", "-loglevel", "error")

	// Screen input. Stdin must stay open for the graceful-stop
	// character, so -nostdin is deliberately absent.
	args = append(args, "-f", "x11grab", "-framerate", strconv.Itoa(c.FrameRate))
	if c.Capture.Width > 0 && c.Capture.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Capture.Width, c.Capture.Height))
	}
	args = append(args, "-i", fmt.Sprintf("%s+%d,%d", c.Display, c.Capture.X, c.Capture.Y))

	if c.AudioPolicy == AudioLivePipe {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(c.AudioFormat.SampleRate),
			"-ac", strconv.Itoa(c.AudioFormat.Channels),
			"-i", c.PipePath,
		)
	}

	args = append(args,
		"-c:v", c.VideoCodec,
		"-preset", c.Preset,
		"-crf", strconv.Itoa(c.CRF),
		"-pix_fmt", "yuv420p",
	)

	if c.AudioPolicy == AudioLivePipe {
		args = append(args, "-c:a", "aac")
	}

	if c.scaleNeeded() {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", c.OutputWidth, c.OutputHeight))
	}

	if c.FastStart {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, "-y", c.OutputPath)
	return args
}

func (c *Config) scaleNeeded() bool {
	if c.OutputWidth == 0 || c.OutputHeight == 0 {
		return false
	}
	return c.OutputWidth != c.Capture.Width || c.OutputHeight != c.Capture.Height
}
