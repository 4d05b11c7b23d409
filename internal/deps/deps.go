package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"deskrec/internal/config"
)

// Requirement defines an external dependency the recorder relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckSystemDeps evaluates every binary a recording session needs.
// Both the record command and the deps command use this so the
// requirements list lives in one place.
func CheckSystemDeps(cfg *config.Config) []Status {
	requirements := []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Encoder.FFmpegBinary,
			Description: "Required for screen capture and encoding",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Encoder.FFprobeBinary,
			Description: "Required for output validation",
			Optional:    true,
		},
	}
	return CheckBinaries(requirements)
}

// Version runs the binary with -version and returns the first output
// line, the conventional ffmpeg/ffprobe version banner.
func Version(binary string) (string, error) {
	out, err := exec.Command(binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("query %s version: %w", binary, err)
	}
	line := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return "", fmt.Errorf("query %s version: empty output", binary)
	}
	return line, nil
}

// MissingRequired returns the names of required dependencies that are
// unavailable, in check order.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			missing = append(missing, st.Name)
		}
	}
	return missing
}
