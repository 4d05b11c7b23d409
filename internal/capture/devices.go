package capture

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// procAsoundRoot points at the kernel's ALSA proc tree; tests override it.
var procAsoundRoot = "/proc/asound"

// Card describes one ALSA sound card.
type Card struct {
	Index      int
	ID         string
	Name       string
	CanCapture bool
}

var cardLine = regexp.MustCompile(`^\s*(\d+)\s+\[(\S+)\s*\]:\s*(.*)$`)

// ListCards parses /proc/asound/cards and reports each card together with
// whether it exposes at least one capture PCM.
func ListCards() ([]Card, error) {
	file, err := os.Open(filepath.Join(procAsoundRoot, "cards"))
	if err != nil {
		return nil, fmt.Errorf("list sound cards: %w", err)
	}
	defer file.Close()

	var cards []Card
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m := cardLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name := strings.TrimSpace(m[3])
		if dash := strings.Index(name, " - "); dash >= 0 {
			name = strings.TrimSpace(name[dash+3:])
		}
		cards = append(cards, Card{
			Index:      index,
			ID:         m[2],
			Name:       name,
			CanCapture: cardHasCapturePCM(index),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan sound cards: %w", err)
	}
	return cards, nil
}

// cardHasCapturePCM checks for pcm*c entries (capture substreams) under
// the card's proc directory.
func cardHasCapturePCM(index int) bool {
	entries, err := os.ReadDir(filepath.Join(procAsoundRoot, fmt.Sprintf("card%d", index)))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "pcm") && strings.HasSuffix(name, "c") {
			return true
		}
	}
	return false
}

// HaveCaptureDevice reports whether any card can capture. When device is
// non-empty it must name an existing card ID or index.
func HaveCaptureDevice(device string) (bool, error) {
	cards, err := ListCards()
	if err != nil {
		return false, err
	}
	device = strings.TrimSpace(device)
	for _, card := range cards {
		if !card.CanCapture {
			continue
		}
		if device == "" || device == card.ID || device == strconv.Itoa(card.Index) {
			return true, nil
		}
	}
	return false, nil
}
