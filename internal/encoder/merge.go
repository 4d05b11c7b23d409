package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"deskrec/internal/logging"
	"deskrec/internal/pcm"
	"deskrec/internal/probe"
)

// mergeAudio runs the FileMerge sub-protocol: validate the video-only
// output, wait for its size to stabilize, then reinvoke ffmpeg to copy
// the video stream unmodified while encoding the recorded WAV into a
// temp file that atomically replaces the original. Any failure keeps
// the video-only original as the final artifact.
func (s *Supervisor) mergeAudio(audioFile string) error {
	if skip, reason := s.mergeSkippable(audioFile); skip {
		s.logger.Info("skipping audio merge", logging.String("reason", reason))
		return nil
	}

	if err := probe.CheckSignature(s.cfg.OutputPath); err != nil {
		s.logger.Warn("video output failed structural check", logging.Error(err))
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	if err := s.waitForStableSize(s.cfg.OutputPath); err != nil {
		s.logger.Warn("video output never stabilized", logging.Error(err))
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	tempPath := mergeTempPath(s.cfg.OutputPath)
	if err := s.runMerge(audioFile, tempPath); err != nil {
		// Best-effort cleanup; the original stays in place.
		_ = os.Remove(tempPath)
		s.logger.Warn("audio merge failed; keeping video-only output", logging.Error(err))
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	if err := os.Rename(tempPath, s.cfg.OutputPath); err != nil {
		_ = os.Remove(tempPath)
		s.logger.Warn("replacing output failed; keeping video-only output", logging.Error(err))
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	s.logger.Info("audio merged into recording",
		logging.String(logging.FieldPath, s.cfg.OutputPath))
	return nil
}

// mergeSkippable reports whether there is any audio worth merging.
// A missing or empty audio source is a valid outcome, not an error: the
// video-only file stands as the final artifact.
func (s *Supervisor) mergeSkippable(audioFile string) (bool, string) {
	if strings.TrimSpace(audioFile) == "" {
		return true, "no audio file recorded"
	}
	info, err := os.Stat(audioFile)
	if err != nil {
		return true, "audio file absent"
	}
	if info.Size() == 0 {
		return true, "audio file empty"
	}
	// A header-only WAV carries no samples either.
	if _, dataBytes, err := pcm.ReadWAVInfo(audioFile); err == nil && dataBytes == 0 {
		return true, "audio file holds no samples"
	}
	return false, ""
}

// waitForStableSize waits until three consecutive size samples at the
// configured spacing agree, bounded by the stabilization timeout.
func (s *Supervisor) waitForStableSize(path string) error {
	deadline := time.Now().Add(s.sizeStableTimeout)
	var lastSize int64 = -1
	stable := 0

	for {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat output: %w", err)
		}
		if info.Size() == lastSize {
			stable++
			if stable >= 2 { // three agreeing samples total
				return nil
			}
		} else {
			lastSize = info.Size()
			stable = 0
		}
		if time.Now().After(deadline) {
			return errors.New("output size did not stabilize in time")
		}
		time.Sleep(s.sizeStableInterval)
	}
}

// runMerge invokes ffmpeg to copy video and attach the audio, trimmed
// to the shorter of the two inputs, into tempPath.
func (s *Supervisor) runMerge(audioFile, tempPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MergeTimeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", s.cfg.OutputPath,
		"-i", audioFile,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
	}
	if s.cfg.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-y", tempPath)

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegBinary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("merge timed out after %s", s.cfg.MergeTimeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("merge: %w: %s", err, detail)
		}
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func mergeTempPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	return base + ".temp" + ext
}
