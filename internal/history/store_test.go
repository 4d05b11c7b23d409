package history_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskrec/internal/history"
	"deskrec/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := &history.Record{
		SessionID:   "a2f1c3d4",
		OutputPath:  "/tmp/demo.mp4",
		AudioPolicy: "live-pipe",
	}
	if err := store.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected record ID to be assigned")
	}
	if rec.Outcome != history.OutcomeRecording {
		t.Fatalf("unexpected initial outcome: %s", rec.Outcome)
	}

	fetched, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.OutputPath != "/tmp/demo.mp4" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if fetched.EndedAt != nil {
		t.Fatalf("unfinished record has end time: %v", fetched.EndedAt)
	}
}

func TestFinishUpdatesRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	outputPath := filepath.Join(cfg.Paths.OutputDir, "demo.mp4")
	testsupport.WriteVideoFixture(t, outputPath, 1<<20)

	ctx := context.Background()
	rec := &history.Record{
		SessionID:   "b7e2",
		OutputPath:  outputPath,
		AudioPolicy: "file-merge",
	}
	if err := store.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}

	ended := time.Now().UTC()
	rec.Outcome = history.OutcomeCompleted
	rec.EndedAt = &ended
	rec.DurationMs = 4250
	rec.VideoBytes = info.Size()
	rec.AudioBytes = 512 * 1024
	rec.AudioPath = "/tmp/demo.wav"
	if err := store.Finish(ctx, rec); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Outcome != history.OutcomeCompleted {
		t.Fatalf("outcome = %s", fetched.Outcome)
	}
	if fetched.EndedAt == nil {
		t.Fatal("expected end time to be recorded")
	}
	if fetched.Duration() != 4250*time.Millisecond {
		t.Fatalf("duration = %s", fetched.Duration())
	}
	if fetched.AudioPath != "/tmp/demo.wav" {
		t.Fatalf("audio path = %q", fetched.AudioPath)
	}
	if fetched.VideoBytes != 1<<20 {
		t.Fatalf("video bytes = %d", fetched.VideoBytes)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := &history.Record{
			SessionID:   fmt.Sprintf("session-%d", i),
			OutputPath:  fmt.Sprintf("/tmp/rec-%d.mp4", i),
			AudioPolicy: "none",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Begin(ctx, rec); err != nil {
			t.Fatalf("Begin %d failed: %v", i, err)
		}
	}

	records, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].SessionID != "session-4" || records[2].SessionID != "session-2" {
		t.Fatalf("unexpected order: %s .. %s", records[0].SessionID, records[2].SessionID)
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent all failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records, got %d", len(all))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		rec := &history.Record{
			SessionID:   fmt.Sprintf("session-%d", i),
			OutputPath:  fmt.Sprintf("/tmp/rec-%d.mp4", i),
			AudioPolicy: "none",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Begin(ctx, rec); err != nil {
			t.Fatalf("Begin %d failed: %v", i, err)
		}
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}

	remaining, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d", len(remaining))
	}
	if remaining[0].SessionID != "session-5" || remaining[1].SessionID != "session-4" {
		t.Fatalf("wrong survivors: %s, %s", remaining[0].SessionID, remaining[1].SessionID)
	}
}

func TestDuplicateSessionIDRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := &history.Record{SessionID: "dup", OutputPath: "/tmp/a.mp4", AudioPolicy: "none"}
	if err := store.Begin(ctx, rec); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	again := &history.Record{SessionID: "dup", OutputPath: "/tmp/b.mp4", AudioPolicy: "none"}
	if err := store.Begin(ctx, again); err == nil {
		t.Fatal("expected duplicate session id to be rejected")
	}
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	ctx := context.Background()
	rec := &history.Record{
		SessionID:   "survives-reopen",
		OutputPath:  "/tmp/rec.mp4",
		AudioPolicy: "none",
	}
	if err := first.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Opening the same database again must run no migrations twice and
	// keep the existing rows intact.
	second := testsupport.MustOpenStore(t, cfg)
	fetched, err := second.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after reopen failed: %v", err)
	}
	if fetched == nil || fetched.SessionID != "survives-reopen" {
		t.Fatalf("row lost across reopen: %#v", fetched)
	}
}
