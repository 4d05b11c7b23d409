package history

import (
	"database/sql"
	"errors"
	"time"
)

const recordColumns = "id, session_id, output_path, audio_path, audio_policy, outcome, detail, started_at, ended_at, duration_ms, video_bytes, audio_bytes, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id          int64
		sessionID   string
		outputPath  string
		audioPath   sql.NullString
		audioPolicy string
		outcomeStr  string
		detail      sql.NullString
		startedRaw  string
		endedRaw    sql.NullString
		durationMs  int64
		videoBytes  int64
		audioBytes  int64
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&outputPath,
		&audioPath,
		&audioPolicy,
		&outcomeStr,
		&detail,
		&startedRaw,
		&endedRaw,
		&durationMs,
		&videoBytes,
		&audioBytes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:          id,
		SessionID:   sessionID,
		OutputPath:  outputPath,
		AudioPath:   audioPath.String,
		AudioPolicy: audioPolicy,
		Outcome:     Outcome(outcomeStr),
		Detail:      detail.String,
		DurationMs:  durationMs,
		VideoBytes:  videoBytes,
		AudioBytes:  audioBytes,
	}

	if started, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = started
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			rec.EndedAt = &ended
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
