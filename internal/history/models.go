package history

import "time"

// Outcome classifies how a recording session ended.
type Outcome string

const (
	// OutcomeRecording marks a session that is still in flight (or
	// crashed without updating its row).
	OutcomeRecording Outcome = "recording"
	// OutcomeCompleted marks a clean finish, audio included when the
	// policy asked for it.
	OutcomeCompleted Outcome = "completed"
	// OutcomeVideoOnly marks a finish where the audio merge was skipped
	// or failed; the video file stands alone.
	OutcomeVideoOnly Outcome = "video-only"
	// OutcomeKilled marks a session whose encoder had to be force
	// killed; the output may be unreadable.
	OutcomeKilled Outcome = "killed"
	// OutcomeFailed marks a session that never produced an output.
	OutcomeFailed Outcome = "failed"
)

// Record is one row of recording history.
type Record struct {
	ID          int64
	SessionID   string
	OutputPath  string
	AudioPath   string
	AudioPolicy string
	Outcome     Outcome
	Detail      string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMs  int64
	VideoBytes  int64
	AudioBytes  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Duration returns the recorded wall-clock length.
func (r *Record) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
