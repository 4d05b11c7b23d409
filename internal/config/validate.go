package config

import (
	"errors"
	"fmt"
)

// AudioPolicies accepted by encoder.audio_policy.
const (
	AudioPolicyNone      = "none"
	AudioPolicyLivePipe  = "live-pipe"
	AudioPolicyFileMerge = "file-merge"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.FrameRate <= 0 || c.Capture.FrameRate > 240 {
		return fmt.Errorf("capture.frame_rate must be between 1 and 240, got %d", c.Capture.FrameRate)
	}
	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return errors.New("capture.width and capture.height must not be negative")
	}
	if c.Capture.OffsetX < 0 || c.Capture.OffsetY < 0 {
		return errors.New("capture.offset_x and capture.offset_y must not be negative")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	switch c.Encoder.AudioPolicy {
	case AudioPolicyNone, AudioPolicyLivePipe, AudioPolicyFileMerge:
	default:
		return fmt.Errorf("encoder.audio_policy must be one of %q, %q, %q; got %q",
			AudioPolicyNone, AudioPolicyLivePipe, AudioPolicyFileMerge, c.Encoder.AudioPolicy)
	}
	if c.Encoder.CRF < 0 || c.Encoder.CRF > 51 {
		return fmt.Errorf("encoder.crf must be between 0 and 51, got %d", c.Encoder.CRF)
	}
	switch c.Encoder.Container {
	case "mp4", "mkv":
	default:
		return fmt.Errorf("encoder.container must be mp4 or mkv, got %q", c.Encoder.Container)
	}
	if (c.Encoder.OutputWidth == 0) != (c.Encoder.OutputHeight == 0) {
		return errors.New("encoder.output_width and encoder.output_height must be set together")
	}
	if c.Encoder.OutputWidth < 0 || c.Encoder.OutputHeight < 0 {
		return errors.New("encoder.output_width and encoder.output_height must not be negative")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.BitsPerSample != 16 {
		return fmt.Errorf("audio.bits_per_sample must be 16, got %d", c.Audio.BitsPerSample)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 8 {
		return fmt.Errorf("audio.channels must be between 1 and 8, got %d", c.Audio.Channels)
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	return nil
}
