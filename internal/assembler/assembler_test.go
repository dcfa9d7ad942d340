package assembler

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/media"
	"github.com/nocturnal/bookreel/internal/models"
)

// fakeEngine stands in for ffmpeg: it tracks the duration of every clip it
// "produces" so tests can assert the timing math without running the tool.
type fakeEngine struct {
	audioDurations map[string]float64 // audio path -> probed duration
	clipDurations  map[string]float64 // produced file -> duration

	failAnimate   map[string]bool // image path -> animation fails
	failComposite map[string]bool // audio path -> compositing fails

	cancelAfterProbe context.CancelFunc // invoked during the first probe

	effects []media.Effect // effects requested, in order
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		audioDurations: map[string]float64{},
		clipDurations:  map[string]float64{},
		failAnimate:    map[string]bool{},
		failComposite:  map[string]bool{},
	}
}

func (e *fakeEngine) produce(path string, duration float64) error {
	e.clipDurations[path] = duration
	return os.WriteFile(path, []byte("clip"), 0644)
}

func (e *fakeEngine) ProbeDuration(_ context.Context, audioPath string) (float64, error) {
	if e.cancelAfterProbe != nil {
		e.cancelAfterProbe()
		e.cancelAfterProbe = nil
	}
	d, ok := e.audioDurations[audioPath]
	if !ok {
		return 0, fmt.Errorf("probe failed for %s", audioPath)
	}
	return d, nil
}

func (e *fakeEngine) AnimateImage(_ context.Context, imagePath, outputPath string, effect media.Effect, duration float64, frames int) error {
	if frames <= 0 {
		return fmt.Errorf("zero frames requested")
	}
	if e.failAnimate[imagePath] {
		return fmt.Errorf("animation failed for %s", imagePath)
	}
	e.effects = append(e.effects, effect)
	return e.produce(outputPath, duration)
}

func (e *fakeEngine) RenderPlaceholderImage(_ context.Context, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("png"), 0644)
}

func (e *fakeEngine) Concatenate(_ context.Context, inputPaths []string, outputPath string) error {
	total := 0.0
	for _, p := range inputPaths {
		total += e.clipDurations[p]
	}
	return e.produce(outputPath, total)
}

func (e *fakeEngine) CompositeSegment(_ context.Context, slideshowPath, audioPath, _, outputPath string) error {
	if e.failComposite[audioPath] {
		return fmt.Errorf("compositing tool exited with status 1")
	}
	// Output length is the shorter of the visual track and the audio.
	d := math.Min(e.clipDurations[slideshowPath], e.audioDurations[audioPath])
	return e.produce(outputPath, d)
}

func (e *fakeEngine) MixMusic(_ context.Context, videoPath, _, outputPath string) error {
	// Music loops; output clamps to the narration.
	return e.produce(outputPath, e.clipDurations[videoPath])
}

func (e *fakeEngine) Cleanup(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

func testLayout(t *testing.T) *assets.Layout {
	t.Helper()
	root := t.TempDir()
	l := &assets.Layout{
		ChunksDir:   filepath.Join(root, "chunks"),
		AudioDir:    filepath.Join(root, "audio"),
		ImagesDir:   filepath.Join(root, "images"),
		VideoDir:    filepath.Join(root, "video"),
		TempDir:     filepath.Join(root, "video", "temp_files"),
		MusicDir:    filepath.Join(root, "music"),
		OverlaysDir: filepath.Join(root, "overlays"),
		BookTitle:   "Meditations",
	}
	if err := l.EnsureDirs(l.AudioDir, l.ImagesDir, l.VideoDir, l.TempDir); err != nil {
		t.Fatalf("failed to create dirs: %v", err)
	}
	return l
}

// addPart creates an audio artifact with the given duration and nImages
// image artifacts for the part.
func addPart(t *testing.T, l *assets.Layout, e *fakeEngine, index int, duration float64, nImages int) {
	t.Helper()
	audio := l.AudioPath(index)
	if err := os.WriteFile(audio, []byte("wav"), 0644); err != nil {
		t.Fatal(err)
	}
	e.audioDurations[audio] = duration

	for i := 1; i <= nImages; i++ {
		if err := os.WriteFile(l.ImagePath(index, i), []byte("png"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestThreePartsKnownDurations(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 2)
	addPart(t, l, e, 2, 15, 2)
	addPart(t, l, e, 3, 8, 2)

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Succeeded != 3 || report.Total != 3 {
		t.Fatalf("expected 3/3, got %d/%d", report.Succeeded, report.Total)
	}

	// Each per-part clip matches its audio duration, and the final concat
	// is the sum: 10 + 15 + 8 = 33s. With no music the assembled file is
	// renamed outside the engine, so look it up under its pre-rename path.
	final := e.clipDurations[l.FinalVideoPath()]
	if math.Abs(final-33) > 1.0/24*6 {
		t.Errorf("expected ~33s final video, got %.3fs", final)
	}
}

func TestPlaceholderSubstitutedForImagelessPart(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 2)
	addPart(t, l, e, 2, 15, 0) // no images: placeholder fallback
	addPart(t, l, e, 3, 8, 2)

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Succeeded != 3 {
		t.Fatalf("expected 3 successes, got %d (parts: %+v)", report.Succeeded, report.Parts)
	}

	// Part 2's segment covers its whole 15s from the single placeholder.
	seg := e.clipDurations[l.SegmentPath(2)]
	if math.Abs(seg-15) > 1.0/24 {
		t.Errorf("placeholder segment duration %.3fs, want 15s", seg)
	}
}

func TestCompositeFailureIsPartLocal(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 1)
	addPart(t, l, e, 2, 15, 1)
	addPart(t, l, e, 3, 8, 1)
	e.failComposite[l.AudioPath(1)] = true

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Succeeded != 2 || report.Total != 3 {
		t.Fatalf("expected tally 2/3, got %d/%d", report.Succeeded, report.Total)
	}
	if report.Parts[0].Status != models.PartStatusFailed {
		t.Errorf("part 1 should be failed, got %s", report.Parts[0].Status)
	}

	// Assembled video contains only parts 2 and 3: 15 + 8 = 23s. With no
	// music the assembled file is renamed outside the engine, so look it
	// up under its pre-rename path.
	final := e.clipDurations[l.FinalVideoPath()]
	if math.Abs(final-23) > 1.0/24*4 {
		t.Errorf("expected ~23s final video, got %.3fs", final)
	}
}

func TestZeroSegmentsIsRunFatal(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 1)
	e.failComposite[l.AudioPath(1)] = true

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err == nil {
		t.Fatal("expected run-fatal error with zero segments")
	}
	if report == nil || report.Succeeded != 0 {
		t.Fatalf("expected 0 successes in report, got %+v", report)
	}

	// No output file of any kind.
	if _, statErr := os.Stat(l.FinalVideoPath()); statErr == nil {
		t.Error("final video should not exist after total failure")
	}
	if _, statErr := os.Stat(l.FinalVideoWithMusicPath()); statErr == nil {
		t.Error("deliverable should not exist after total failure")
	}
}

func TestNoAudioIsRunFatal(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error when no audio artifacts exist")
	} else if !strings.Contains(err.Error(), "audio") {
		t.Errorf("error should name the missing prerequisite: %v", err)
	}
}

func TestReportCarriesRunIdentityAndSelection(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 33, 1)

	music := filepath.Join(l.MusicDir, "calm.mp3")
	if err := l.EnsureDirs(l.MusicDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(music, []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	e.audioDurations[music] = 5

	runID := uuid.New()
	a := New(e, l, runID, 24, "Meditations", "fog.mp4", music)
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// The report names the identity and selection it was handed, so the
	// manifest and run log written from it describe this run, not a
	// re-rolled one.
	if report.RunID != runID {
		t.Errorf("report run ID %s, want %s", report.RunID, runID)
	}
	if report.OverlayPath != "fog.mp4" {
		t.Errorf("report overlay %q, want fog.mp4", report.OverlayPath)
	}
	if report.MusicPath != music {
		t.Errorf("report music %q, want %s", report.MusicPath, music)
	}
}

func TestCancellationAbortsRemainingParts(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 1)
	addPart(t, l, e, 2, 12, 1)
	addPart(t, l, e, 3, 8, 1)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelAfterProbe = cancel // fires during part 1's probe

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Parts 2 and 3 must not have been marched through as skips.
	if report == nil || len(report.Parts) > 1 {
		t.Errorf("remaining parts processed after cancellation: %+v", report.Parts)
	}
}

func TestProbeFailureSkipsPartOnly(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 1)
	addPart(t, l, e, 2, 12, 1)
	// Break the probe for part 1 only.
	delete(e.audioDurations, l.AudioPath(1))

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Succeeded != 1 {
		t.Fatalf("expected 1 success, got %d", report.Succeeded)
	}
	if report.Parts[0].Status != models.PartStatusSkipped {
		t.Errorf("part 1 should be skipped, got %s", report.Parts[0].Status)
	}
}

func TestAllImagesFailingFailsPart(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 2)
	addPart(t, l, e, 2, 8, 1)
	e.failAnimate[l.ImagePath(1, 1)] = true
	e.failAnimate[l.ImagePath(1, 2)] = true

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Parts[0].Status != models.PartStatusFailed {
		t.Errorf("part with all images failed should fail, got %s", report.Parts[0].Status)
	}
	if report.Succeeded != 1 {
		t.Errorf("expected 1 success, got %d", report.Succeeded)
	}
}

func TestSingleImageFailureDropsAndContinues(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 12, 3)
	e.failAnimate[l.ImagePath(1, 2)] = true

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Succeeded != 1 {
		t.Fatalf("expected success despite one dropped image, got %+v", report.Parts)
	}

	// Two of three images survived: slideshow covers 2/3 of the target,
	// and the segment clamps to the shorter (visual) track.
	seg := e.clipDurations[l.SegmentPath(1)]
	if math.Abs(seg-8) > 1.0/24*2 {
		t.Errorf("expected ~8s segment after dropping one of three 4s clips, got %.3fs", seg)
	}
}

func TestTooShortDurationIsExplicitFailure(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 0.01, 2) // 0.005s per image at 24fps -> 0 frames
	addPart(t, l, e, 2, 10, 1)

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Parts[0].Status != models.PartStatusFailed {
		t.Fatalf("zero-frame part should fail, got %s", report.Parts[0].Status)
	}
	if !strings.Contains(report.Parts[0].Detail, "frames") {
		t.Errorf("failure detail should mention the frame count: %s", report.Parts[0].Detail)
	}
}

func TestEffectRotationFollowsImageOrder(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 20, 5)

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []media.Effect{
		media.EffectZoomIn, media.EffectZoomOut, media.EffectPanRight, media.EffectPanLeft, media.EffectZoomIn,
	}
	if len(e.effects) != len(want) {
		t.Fatalf("expected %d animation calls, got %d", len(want), len(e.effects))
	}
	for i, w := range want {
		if e.effects[i] != w {
			t.Errorf("image %d: effect %s, want %s", i, e.effects[i], w)
		}
	}
}

func TestIntermediateClipsCleanedUp(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 3)
	e.failAnimate[l.ImagePath(1, 3)] = true // exercise the partial-failure path too

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	leftovers, err := filepath.Glob(filepath.Join(l.TempDir, "*.clip_*.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("per-image clips not cleaned up: %v", leftovers)
	}
}

func TestMusicMixClampsToNarration(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 33, 1)

	music := filepath.Join(l.MusicDir, "calm.mp3")
	if err := l.EnsureDirs(l.MusicDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(music, []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	e.audioDurations[music] = 5 // loops under a 33s narration

	a := New(e, l, uuid.New(), 24, "Meditations", "", music)
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.FinalPath != l.FinalVideoWithMusicPath() {
		t.Errorf("deliverable at %s, want %s", report.FinalPath, l.FinalVideoWithMusicPath())
	}
	if got := e.clipDurations[report.FinalPath]; math.Abs(got-33) > 1.0/24 {
		t.Errorf("mixed output %.3fs, want 33s (clamped to narration)", got)
	}
}

func TestNoMusicRenamesDeliverable(t *testing.T) {
	l := testLayout(t)
	e := newFakeEngine()
	addPart(t, l, e, 1, 10, 1)

	a := New(e, l, uuid.New(), 24, "Meditations", "", "")
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.FinalPath != l.FinalVideoWithMusicPath() {
		t.Errorf("deliverable at %s, want %s", report.FinalPath, l.FinalVideoWithMusicPath())
	}
	if _, err := os.Stat(report.FinalPath); err != nil {
		t.Errorf("deliverable missing: %v", err)
	}
	if _, err := os.Stat(l.FinalVideoPath()); err == nil {
		t.Error("intermediate final video should have been moved")
	}
}
