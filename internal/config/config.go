package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
}

// Capture contains screen-capture input settings.
type Capture struct {
	Display   string `toml:"display"`
	OffsetX   int    `toml:"offset_x"`
	OffsetY   int    `toml:"offset_y"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	FrameRate int    `toml:"frame_rate"`
}

// Encoder contains settings for the external ffmpeg process.
type Encoder struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	VideoCodec    string `toml:"video_codec"`
	Preset        string `toml:"preset"`
	CRF           int    `toml:"crf"`
	OutputWidth   int    `toml:"output_width"`
	OutputHeight  int    `toml:"output_height"`
	Container     string `toml:"container"`
	FastStart     bool   `toml:"fast_start"`
	// AudioPolicy selects how system audio reaches the encoder:
	// "none", "live-pipe", or "file-merge".
	AudioPolicy         string `toml:"audio_policy"`
	StopTimeoutSeconds  int    `toml:"stop_timeout_seconds"`
	MergeTimeoutSeconds int    `toml:"merge_timeout_seconds"`
}

// Audio contains loopback capture and timeline settings.
type Audio struct {
	Device          string `toml:"device"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	BitsPerSample   int    `toml:"bits_per_sample"`
	GapThresholdMs  int    `toml:"gap_threshold_ms"`
	TailThresholdMs int    `toml:"tail_threshold_ms"`
	QueueDepth      int    `toml:"queue_depth"`
	SettleDelayMs   int    `toml:"settle_delay_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// History contains configuration for the recording history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for deskrec.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Capture Capture `toml:"capture"`
	Encoder Encoder `toml:"encoder"`
	Audio   Audio   `toml:"audio"`
	Logging Logging `toml:"logging"`
	History History `toml:"history"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/deskrec/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists
// at the resolved location the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("deskrec.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing
// to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories a recording session needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
