package encoder

import (
	"reflect"
	"testing"

	"deskrec/internal/pcm"
)

func TestBuildArgsVideoOnly(t *testing.T) {
	cfg := Config{
		Display:    ":1.0",
		Capture:    Rect{X: 10, Y: 20, Width: 1280, Height: 720},
		FrameRate:  30,
		OutputPath: "/tmp/out.mp4",
	}
	cfg.withDefaults()

	want := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab", "-framerate", "30",
		"-video_size", "1280x720",
		"-i", ":1.0+10,20",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-y", "/tmp/out.mp4",
	}
	if got := cfg.buildArgs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("args mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestBuildArgsLivePipe(t *testing.T) {
	cfg := Config{
		FrameRate:   60,
		AudioPolicy: AudioLivePipe,
		AudioFormat: pcm.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16},
		PipePath:    "/tmp/audio.pipe",
		OutputPath:  "/tmp/out.mkv",
	}
	cfg.withDefaults()

	want := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab", "-framerate", "60",
		"-i", ":0.0+0,0",
		"-f", "s16le", "-ar", "44100", "-ac", "2", "-i", "/tmp/audio.pipe",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-y", "/tmp/out.mkv",
	}
	if got := cfg.buildArgs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("args mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestBuildArgsScaleAndFastStart(t *testing.T) {
	cfg := Config{
		Capture:      Rect{Width: 2560, Height: 1440},
		FrameRate:    25,
		OutputWidth:  1920,
		OutputHeight: 1080,
		FastStart:    true,
		OutputPath:   "/tmp/out.mp4",
	}
	cfg.withDefaults()

	got := cfg.buildArgs()
	assertSubsequence(t, got, "-vf", "scale=1920:1080")
	assertSubsequence(t, got, "-movflags", "+faststart")
}

func TestBuildArgsNoScaleWhenSizesMatch(t *testing.T) {
	cfg := Config{
		Capture:      Rect{Width: 1920, Height: 1080},
		FrameRate:    25,
		OutputWidth:  1920,
		OutputHeight: 1080,
		OutputPath:   "/tmp/out.mp4",
	}
	cfg.withDefaults()

	for _, a := range cfg.buildArgs() {
		if a == "-vf" {
			t.Fatal("scale filter present for identical sizes")
		}
	}
}

func TestBuildArgsOmitsNostdin(t *testing.T) {
	cfg := Config{FrameRate: 30, OutputPath: "/tmp/out.mp4"}
	cfg.withDefaults()
	for _, a := range cfg.buildArgs() {
		if a == "-nostdin" {
			t.Fatal("-nostdin would break the graceful stop channel")
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing output", func(c *Config) { c.OutputPath = "" }, true},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }, true},
		{"live pipe without path", func(c *Config) {
			c.AudioPolicy = AudioLivePipe
			c.AudioFormat = pcm.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
		}, true},
		{"unpaired output size", func(c *Config) { c.OutputWidth = 1920 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{FrameRate: 30, OutputPath: "/tmp/out.mp4"}
			tc.mutate(&cfg)
			err := cfg.validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMergeTempPath(t *testing.T) {
	if got := mergeTempPath("/rec/demo.mp4"); got != "/rec/demo.temp.mp4" {
		t.Fatalf("mergeTempPath: %s", got)
	}
	if got := mergeTempPath("/rec/demo.mkv"); got != "/rec/demo.temp.mkv" {
		t.Fatalf("mergeTempPath: %s", got)
	}
}

func assertSubsequence(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i, a := range args {
		if a == flag {
			if i+1 >= len(args) {
				t.Fatalf("%s is the last argument", flag)
			}
			if args[i+1] != value {
				t.Fatalf("%s followed by %q, want %q", flag, args[i+1], value)
			}
			return
		}
	}
	t.Fatalf("flag %s missing from %v", flag, args)
}
