package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deskrec/internal/capture"
	"deskrec/internal/config"
	"deskrec/internal/deps"
	"deskrec/internal/history"
	"deskrec/internal/pcm"
	"deskrec/internal/probe"
	"deskrec/internal/session"
)

// minFreeBytes is the preflight free-space floor for the output dir.
const minFreeBytes = 512 << 20

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var (
		outputPath  string
		durationStr string
		audioFlag   string
		displayFlag string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen (and system audio) until interrupted",
		Long: "Starts a recording session and runs until Ctrl-C or --duration " +
			"elapses. A second Ctrl-C abandons the graceful encoder stop and " +
			"tears the session down immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if audioFlag != "" {
				cfg.Encoder.AudioPolicy = strings.ToLower(strings.TrimSpace(audioFlag))
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if displayFlag != "" {
				cfg.Capture.Display = displayFlag
			}

			var duration time.Duration
			if durationStr != "" {
				duration, err = time.ParseDuration(durationStr)
				if err != nil {
					return fmt.Errorf("parse --duration: %w", err)
				}
			}

			return runRecord(cmd, cfg, ctx, outputPath, duration)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: generated in the output directory)")
	cmd.Flags().StringVarP(&durationStr, "duration", "d", "", "Stop automatically after this long (e.g. 90s, 10m)")
	cmd.Flags().StringVar(&audioFlag, "audio", "", "Audio policy override: none, live-pipe, or file-merge")
	cmd.Flags().StringVar(&displayFlag, "display", "", "X display to capture (default from config)")

	return cmd
}

func runRecord(cmd *cobra.Command, cfg *config.Config, ctx *commandContext, outputPath string, duration time.Duration) error {
	out := cmd.OutOrStdout()

	statuses := deps.CheckSystemDeps(cfg)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
	}
	if res := deps.CheckDisplay(cfg.Capture.Display); !res.Passed {
		return fmt.Errorf("display check failed: %s", res.Detail)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if res := deps.CheckDiskSpace("Output", cfg.Paths.OutputDir, minFreeBytes); !res.Passed {
		fmt.Fprintf(out, "Warning: %s\n", res.Detail)
	}

	logger, err := ctx.newLogger(cfg)
	if err != nil {
		return err
	}

	var source capture.Source
	if cfg.Encoder.AudioPolicy != config.AudioPolicyNone {
		format := pcm.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: cfg.Audio.BitsPerSample,
		}
		source = capture.NewFFmpegSource(cfg.Encoder.FFmpegBinary, cfg.Audio.Device, format, cfg.Audio.QueueDepth, logger)
	}

	opts := []session.Option{}
	if outputPath != "" {
		expanded, err := config.ExpandPath(outputPath)
		if err != nil {
			return err
		}
		opts = append(opts, session.WithOutputPath(expanded))
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts = append(opts, session.WithStore(store))
	}

	sess, err := session.New(cfg, source, logger, opts...)
	if err != nil {
		return err
	}

	monitor := capture.NewMonitor(logger, nil)
	monitor.Start(cmd.Context())
	defer monitor.Stop()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := sess.Start(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(out, "Recording to %s (audio: %s). Press Ctrl-C to stop.\n",
		sess.OutputPath(), cfg.Encoder.AudioPolicy)

	var timerC <-chan time.Time
	if duration > 0 {
		timerC = time.After(duration)
	}

	select {
	case <-sigCh:
		fmt.Fprintln(out, "Stopping; waiting for the encoder to finish (Ctrl-C again to force).")
	case <-timerC:
		fmt.Fprintln(out, "Duration reached; stopping.")
	case <-cmd.Context().Done():
	}

	finishErr := make(chan error, 1)
	go func() { finishErr <- sess.Finish(context.Background()) }()

	select {
	case err := <-finishErr:
		if err != nil {
			return err
		}
	case <-sigCh:
		fmt.Fprintln(out, "Forcing immediate shutdown.")
		sess.Kill()
		if err := <-finishErr; err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Saved %s\n", sess.OutputPath())
	printProbeSummary(cmd, cfg, sess.OutputPath())
	return nil
}

// printProbeSummary inspects the finished file with ffprobe when it is
// installed. Purely informational, so failures stay quiet.
func printProbeSummary(cmd *cobra.Command, cfg *config.Config, path string) {
	if _, err := exec.LookPath(cfg.Encoder.FFprobeBinary); err != nil {
		return
	}
	result, err := probe.Run(cmd.Context(), cfg.Encoder.FFprobeBinary, path)
	if err != nil {
		return
	}
	streams := "video"
	if result.HasAudio {
		streams = "video+audio"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s, %s, %.1fs\n",
		result.FormatName, streams, result.Duration)
}
