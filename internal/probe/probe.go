package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// ebmlMagic opens every Matroska/WebM file.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// CheckSignature reads the first bytes of path and reports whether they
// carry a known container signature. This is the cheap structural check
// run before a merge attempt; it does not prove the file is playable.
func CheckSignature(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("probe: open %q: %w", path, err)
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := file.Read(header)
	if err != nil || n < 12 {
		return fmt.Errorf("probe: %q too short to carry a container header", path)
	}

	// ISO BMFF: size(4) then "ftyp".
	if bytes.Equal(header[4:8], []byte("ftyp")) {
		return nil
	}
	if bytes.Equal(header[:4], ebmlMagic) {
		return nil
	}
	return fmt.Errorf("probe: %q has no recognized container signature", path)
}

// Result holds the subset of ffprobe output the recorder cares about.
type Result struct {
	FormatName string
	Duration   float64
	HasVideo   bool
	HasAudio   bool
}

// Run executes ffprobe against path and parses the stream layout.
func Run(ctx context.Context, binary, path string) (*Result, error) {
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probe: ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON into a Result. Exported so tests
// run without a real ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("probe: parse ffprobe JSON: %w", err)
	}

	result := &Result{FormatName: raw.Format.FormatName}
	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}
	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			result.HasVideo = true
		case "audio":
			result.HasAudio = true
		}
	}
	return result, nil
}
