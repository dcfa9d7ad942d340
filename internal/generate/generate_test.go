package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/models"
	"github.com/nocturnal/bookreel/internal/services"
)

type nopPacer struct{}

func (nopPacer) Wait(context.Context) error { return nil }

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
	if err := l.EnsureDirs(l.ChunksDir, l.AudioDir, l.ImagesDir); err != nil {
		t.Fatal(err)
	}
	return l
}

// --- script stage ---

type fakeWriter struct {
	outline  *models.Outline
	failSubs map[string]bool
	contexts []string // previousContext passed to each GenerateChunk call
}

func (w *fakeWriter) GenerateOutline(_ context.Context, _, _ string) (*models.Outline, error) {
	if w.outline == nil {
		return nil, errors.New("no outline")
	}
	return w.outline, nil
}

func (w *fakeWriter) GenerateChunk(_ context.Context, _, _ string, sub models.Subtopic, prev string) (string, error) {
	w.contexts = append(w.contexts, prev)
	if w.failSubs[sub.Subtitle] {
		return "", errors.New("model refused")
	}
	return "## " + sub.Subtitle + "\n\nNarration body.", nil
}

func testOutline() *models.Outline {
	return &models.Outline{
		MainTopics: []models.MainTopic{
			{Title: "Discipline", Subtopics: []models.Subtopic{
				{Subtitle: "Perception", KeyConcepts: []string{"judgment"}, EstimatedDuration: "8-10 minutes"},
				{Subtitle: "Action", KeyConcepts: []string{"will"}, EstimatedDuration: "8-10 minutes"},
			}},
		},
	}
}

func TestScriptStageWritesIntroAndChunks(t *testing.T) {
	l := testLayout(t)
	w := &fakeWriter{outline: testOutline()}

	stage := NewScriptStage(w, l, "Meditations", "Marcus Aurelius", nopPacer{})
	written, err := stage.Run(context.Background(), "book text")
	if err != nil {
		t.Fatalf("script stage failed: %v", err)
	}
	if written != 3 {
		t.Fatalf("expected 3 chunks (intro + 2), got %d", written)
	}

	intro, err := os.ReadFile(l.ChunkPath(1))
	if err != nil {
		t.Fatalf("intro chunk missing: %v", err)
	}
	if !strings.Contains(string(intro), "Meditations") || !strings.Contains(string(intro), "Marcus Aurelius") {
		t.Errorf("intro missing title or author: %s", intro)
	}

	second, err := os.ReadFile(l.ChunkPath(2))
	if err != nil {
		t.Fatalf("first subtopic chunk missing: %v", err)
	}
	if !strings.Contains(string(second), "## Perception") {
		t.Errorf("chunk 2 content: %s", second)
	}

	if _, err := os.Stat(l.OutlinePath()); err != nil {
		t.Errorf("outline file not saved: %v", err)
	}
}

func TestScriptStageRollingContext(t *testing.T) {
	l := testLayout(t)
	w := &fakeWriter{outline: testOutline()}

	stage := NewScriptStage(w, l, "Meditations", "Marcus Aurelius", nopPacer{})
	if _, err := stage.Run(context.Background(), "book text"); err != nil {
		t.Fatal(err)
	}

	if len(w.contexts) != 2 {
		t.Fatalf("expected 2 chunk calls, got %d", len(w.contexts))
	}
	if !strings.Contains(w.contexts[0], "beginning our journey") {
		t.Errorf("first context should be the opener: %q", w.contexts[0])
	}
	if !strings.Contains(w.contexts[1], "Perception") {
		t.Errorf("second context should reference the previous subtopic: %q", w.contexts[1])
	}
}

func TestScriptStageSkipsFailedSubtopicLeavingGap(t *testing.T) {
	l := testLayout(t)
	w := &fakeWriter{outline: testOutline(), failSubs: map[string]bool{"Perception": true}}

	stage := NewScriptStage(w, l, "Meditations", "Marcus Aurelius", nopPacer{})
	written, err := stage.Run(context.Background(), "book text")
	if err != nil {
		t.Fatalf("script stage failed: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected intro + 1 chunk, got %d", written)
	}

	// Perception would have been chunk 2; its index is burned, Action
	// lands at 3.
	if _, err := os.Stat(l.ChunkPath(2)); err == nil {
		t.Error("failed subtopic's chunk file should not exist")
	}
	if _, err := os.Stat(l.ChunkPath(3)); err != nil {
		t.Errorf("surviving subtopic should keep its sparse index: %v", err)
	}
}

// --- audio stage ---

type fakeTTS struct {
	blocked map[string]bool // block when text contains key
	calls   int
}

func (f *fakeTTS) GenerateSpeech(_ context.Context, text, _ string) (*services.TTSResponse, error) {
	f.calls++
	for key := range f.blocked {
		if strings.Contains(text, key) {
			return nil, fmt.Errorf("%w (reason: SAFETY)", services.ErrSpeechBlocked)
		}
	}
	return &services.TTSResponse{AudioData: []byte("RIFFwav"), SampleRate: 24000, Format: "wav"}, nil
}

func writeChunks(t *testing.T, l *assets.Layout, texts map[int]string) {
	t.Helper()
	for idx, text := range texts {
		if err := os.WriteFile(l.ChunkPath(idx), []byte(text), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAudioStageVoicesChunks(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "intro", 2: "first topic"})

	tts := &fakeTTS{}
	stage := NewAudioStage(tts, l, nopPacer{})
	written, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("audio stage failed: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 audio files, got %d", written)
	}
	for _, idx := range []int{1, 2} {
		if _, err := os.Stat(l.AudioPath(idx)); err != nil {
			t.Errorf("audio for part %d missing: %v", idx, err)
		}
	}
}

func TestAudioStageSkipsExisting(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "intro", 2: "topic"})
	if err := os.WriteFile(l.AudioPath(1), []byte("already"), 0644); err != nil {
		t.Fatal(err)
	}

	tts := &fakeTTS{}
	stage := NewAudioStage(tts, l, nopPacer{})
	written, err := stage.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if written != 1 || tts.calls != 1 {
		t.Errorf("existing audio should be skipped: written=%d calls=%d", written, tts.calls)
	}

	// Existing file is untouched.
	data, _ := os.ReadFile(l.AudioPath(1))
	if string(data) != "already" {
		t.Error("existing audio was overwritten")
	}
}

func TestAudioStageSkipsBlockedChunk(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "fine", 2: "forbidden content", 3: "also fine"})

	tts := &fakeTTS{blocked: map[string]bool{"forbidden": true}}
	stage := NewAudioStage(tts, l, nopPacer{})
	written, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("blocked chunk should not fail the stage: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 audio files, got %d", written)
	}
	if _, err := os.Stat(l.AudioPath(2)); err == nil {
		t.Error("blocked part should have no audio file")
	}
}

func TestAudioStageNoChunksIsFatal(t *testing.T) {
	l := testLayout(t)
	stage := NewAudioStage(&fakeTTS{}, l, nopPacer{})
	if _, err := stage.Run(context.Background()); err == nil {
		t.Fatal("expected error with no chunk files")
	}
}

// --- image stage ---

type fakeImageGen struct {
	prompts      []string
	quotaOnFirst bool
	failPrompt   map[string]bool
	renderCalls  int
}

func (f *fakeImageGen) GenerateImagePrompts(_ context.Context, _ string, _ services.VisualStyle, n, _, _ int) ([]string, error) {
	if f.prompts == nil {
		return nil, errors.New("prompt generation unavailable")
	}
	return f.prompts, nil
}

func (f *fakeImageGen) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	f.renderCalls++
	if f.quotaOnFirst && f.renderCalls == 1 {
		return nil, errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")
	}
	if f.failPrompt[prompt] {
		return nil, errors.New("render failed")
	}
	return []byte("png"), nil
}

func quickPolicy() services.RetryPolicy {
	return &services.QuotaAwarePolicy{MaxAttempts: 2, RetryDelay: time.Millisecond, QuotaCooldown: time.Millisecond}
}

func TestImageStageRendersPerPart(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "intro", 2: "topic"})

	gen := &fakeImageGen{prompts: []string{"p1", "p2"}}
	stage := NewImageStage(gen, l, services.VisualStyle{Style: "dark oil painting"}, 2, nopPacer{}, quickPolicy())
	total, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("image stage failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 images, got %d", total)
	}
	if _, err := os.Stat(l.ImagePath(2, 2)); err != nil {
		t.Errorf("image 2 of part 2 missing: %v", err)
	}
}

func TestImageStageSkipsPartsWithImages(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "intro", 2: "topic"})
	if err := os.WriteFile(l.ImagePath(1, 1), []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	gen := &fakeImageGen{prompts: []string{"p1"}}
	stage := NewImageStage(gen, l, services.VisualStyle{}, 1, nopPacer{}, quickPolicy())
	total, err := stage.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("only part 2 should be processed, got %d images", total)
	}
}

func TestImageStageRetriesQuotaError(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "topic"})

	gen := &fakeImageGen{prompts: []string{"p1"}, quotaOnFirst: true}
	stage := NewImageStage(gen, l, services.VisualStyle{}, 1, nopPacer{}, quickPolicy())
	total, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("image stage failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("quota error should be retried, got %d images", total)
	}
	if gen.renderCalls != 2 {
		t.Errorf("expected 2 render calls (fail + retry), got %d", gen.renderCalls)
	}
}

func TestImageStageDropsFailedImage(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "topic"})

	gen := &fakeImageGen{prompts: []string{"bad", "good"}, failPrompt: map[string]bool{"bad": true}}
	stage := NewImageStage(gen, l, services.VisualStyle{}, 2, nopPacer{}, quickPolicy())
	total, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("image stage failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 surviving image, got %d", total)
	}

	// The surviving image keeps its positional filename.
	if _, err := os.Stat(l.ImagePath(1, 2)); err != nil {
		t.Errorf("surviving image should be img_2: %v", err)
	}
	if _, err := os.Stat(l.ImagePath(1, 1)); err == nil {
		t.Error("failed image slot should be empty")
	}
}

func TestImageStagePromptFailureSkipsPart(t *testing.T) {
	l := testLayout(t)
	writeChunks(t, l, map[int]string{1: "a", 2: "b"})

	gen := &fakeImageGen{prompts: nil} // prompt generation always fails
	stage := NewImageStage(gen, l, services.VisualStyle{}, 1, nopPacer{}, quickPolicy())
	total, err := stage.Run(context.Background())
	if err != nil {
		t.Fatalf("prompt failure should be part-local: %v", err)
	}
	if total != 0 {
		t.Errorf("no images expected, got %d", total)
	}
}
