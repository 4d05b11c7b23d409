package session

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// newestWAV returns the most recently modified WAV file in dir whose
// name carries the given prefix.
func newestWAV(dir, prefix string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".wav") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, name)
			newestTime = info.ModTime()
		}
	}
	return newest, newest != ""
}
