package config

import (
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoder()
	c.normalizeAudio()
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func (c *Config) normalizePaths() error {
	for _, field := range []*string{
		&c.Paths.OutputDir,
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.History.Path,
	} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

func (c *Config) normalizeEncoder() {
	e := &c.Encoder
	e.FFmpegBinary = strings.TrimSpace(e.FFmpegBinary)
	if e.FFmpegBinary == "" {
		e.FFmpegBinary = defaultFFmpegBinary
	}
	e.FFprobeBinary = strings.TrimSpace(e.FFprobeBinary)
	if e.FFprobeBinary == "" {
		e.FFprobeBinary = defaultFFprobeBinary
	}
	e.VideoCodec = strings.TrimSpace(e.VideoCodec)
	if e.VideoCodec == "" {
		e.VideoCodec = defaultVideoCodec
	}
	e.Container = strings.ToLower(strings.TrimSpace(e.Container))
	if e.Container == "" {
		e.Container = defaultContainer
	}
	e.AudioPolicy = strings.ToLower(strings.TrimSpace(e.AudioPolicy))
	if e.AudioPolicy == "" {
		e.AudioPolicy = defaultAudioPolicy
	}
	if e.StopTimeoutSeconds <= 0 {
		e.StopTimeoutSeconds = defaultStopTimeoutSeconds
	}
	if e.MergeTimeoutSeconds <= 0 {
		e.MergeTimeoutSeconds = defaultMergeTimeoutSeconds
	}
}

func (c *Config) normalizeAudio() {
	a := &c.Audio
	a.Device = strings.TrimSpace(a.Device)
	if a.SampleRate <= 0 {
		a.SampleRate = defaultSampleRate
	}
	if a.Channels <= 0 {
		a.Channels = defaultChannels
	}
	if a.BitsPerSample <= 0 {
		a.BitsPerSample = defaultBitsPerSample
	}
	if a.GapThresholdMs <= 0 {
		a.GapThresholdMs = defaultGapThresholdMs
	}
	if a.TailThresholdMs <= 0 {
		a.TailThresholdMs = defaultTailThresholdMs
	}
	if a.QueueDepth <= 0 {
		a.QueueDepth = defaultQueueDepth
	}
	if a.SettleDelayMs < 0 {
		a.SettleDelayMs = defaultSettleDelayMs
	}
}
