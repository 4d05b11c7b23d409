package config

const (
	defaultOutputDir           = "~/Videos/deskrec"
	defaultWorkDir             = "~/.local/share/deskrec/work"
	defaultLogDir              = "~/.local/share/deskrec/logs"
	defaultHistoryPath         = "~/.local/share/deskrec/history.db"
	defaultDisplay             = ":0.0"
	defaultFrameRate           = 30
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultVideoCodec          = "libx264"
	defaultPreset              = "veryfast"
	defaultCRF                 = 23
	defaultContainer           = "mp4"
	defaultAudioPolicy         = "live-pipe"
	defaultStopTimeoutSeconds  = 10
	defaultMergeTimeoutSeconds = 300
	defaultSampleRate          = 48000
	defaultChannels            = 2
	defaultBitsPerSample       = 16
	defaultGapThresholdMs      = 100
	defaultTailThresholdMs     = 20
	defaultQueueDepth          = 64
	defaultSettleDelayMs       = 500
	defaultLogFormat           = ""
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
		},
		Capture: Capture{
			Display:   defaultDisplay,
			FrameRate: defaultFrameRate,
		},
		Encoder: Encoder{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			VideoCodec:          defaultVideoCodec,
			Preset:              defaultPreset,
			CRF:                 defaultCRF,
			Container:           defaultContainer,
			FastStart:           true,
			AudioPolicy:         defaultAudioPolicy,
			StopTimeoutSeconds:  defaultStopTimeoutSeconds,
			MergeTimeoutSeconds: defaultMergeTimeoutSeconds,
		},
		Audio: Audio{
			SampleRate:      defaultSampleRate,
			Channels:        defaultChannels,
			BitsPerSample:   defaultBitsPerSample,
			GapThresholdMs:  defaultGapThresholdMs,
			TailThresholdMs: defaultTailThresholdMs,
			QueueDepth:      defaultQueueDepth,
			SettleDelayMs:   defaultSettleDelayMs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
	}
}
