package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nocturnal/bookreel/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runID := uuid.New()
	started := time.Now().Add(-time.Minute)
	if err := store.Begin(ctx, runID, "Meditations", started); err != nil {
		t.Fatalf("begin: %v", err)
	}

	report := &models.Report{
		RunID:       runID,
		BookTitle:   "Meditations",
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Succeeded:   2,
		Total:       3,
		OverlayPath: "/overlays/fog.mp4",
		MusicPath:   "/music/calm.mp3",
		FinalPath:   "/video/Meditations_final_video_with_music.mp4",
		Parts: []models.PartResult{
			{Index: 1, Status: models.PartStatusFailed, Detail: "compositing failed"},
			{Index: 2, Status: models.PartStatusProcessed},
			{Index: 3, Status: models.PartStatusProcessed},
		},
	}
	if err := store.Finish(ctx, report, models.RunStatusSucceeded); err != nil {
		t.Fatalf("finish: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Succeeded != 2 || runs[0].Total != 3 {
		t.Errorf("tally not persisted: %+v", runs[0])
	}
	if runs[0].Status != string(models.RunStatusSucceeded) {
		t.Errorf("status = %s", runs[0].Status)
	}
	if runs[0].FinishedAt == nil {
		t.Error("finished_at not persisted")
	}

	run, parts, err := store.GetRun(ctx, runID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.FinalPath != report.FinalPath {
		t.Errorf("final path = %q", run.FinalPath)
	}
	// The overlay/music selection is part of the reproducibility record.
	if run.OverlayPath != report.OverlayPath || run.MusicPath != report.MusicPath {
		t.Errorf("selection not persisted: overlay %q music %q", run.OverlayPath, run.MusicPath)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 part rows, got %d", len(parts))
	}
	if parts[0].Status != models.PartStatusFailed || parts[0].Detail != "compositing failed" {
		t.Errorf("part 1 detail lost: %+v", parts[0])
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := uuid.New()
	newer := uuid.New()
	if err := store.Begin(ctx, older, "Meditations", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.Begin(ctx, newer, "Meditations", time.Now()); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != newer.String() {
		t.Errorf("runs not newest-first: %+v", runs)
	}
}

func TestGetRunMissing(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.GetRun(context.Background(), uuid.NewString()); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}
