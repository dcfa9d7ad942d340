package assembler

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/media"
	"github.com/nocturnal/bookreel/internal/models"
)

// Media is the set of external media-tool operations the assembler drives.
// *media.FFmpeg implements it; tests substitute a fake engine.
type Media interface {
	ProbeDuration(ctx context.Context, audioPath string) (float64, error)
	AnimateImage(ctx context.Context, imagePath, outputPath string, effect media.Effect, duration float64, frames int) error
	RenderPlaceholderImage(ctx context.Context, outputPath, title string) error
	Concatenate(ctx context.Context, inputPaths []string, outputPath string) error
	CompositeSegment(ctx context.Context, slideshowPath, audioPath, overlayPath, outputPath string) error
	MixMusic(ctx context.Context, videoPath, musicPath, outputPath string) error
	Cleanup(paths ...string)
}

// Assembler walks the discovered parts in index order and stitches the
// per-part segments into the final video. Parts fail individually; only
// "no audio at all" and "no segments produced" abort the run.
type Assembler struct {
	media     Media
	layout    *assets.Layout
	frameRate int
	title     string // display title for placeholder frames

	// Resolved once per run, before processing starts, so a run is
	// reproducible and the selection can be recorded.
	overlayPath string
	musicPath   string

	runID uuid.UUID
}

// New builds an assembler for one run. The caller resolves the run ID and
// the overlay/music selection up front so the manifest, the run log, and
// the assembly all describe the same run.
func New(m Media, layout *assets.Layout, runID uuid.UUID, frameRate int, displayTitle, overlayPath, musicPath string) *Assembler {
	return &Assembler{
		media:       m,
		layout:      layout,
		frameRate:   frameRate,
		title:       displayTitle,
		overlayPath: overlayPath,
		musicPath:   musicPath,
		runID:       runID,
	}
}

// Run executes the full assembly: discovery, per-part processing,
// final concatenation, and music mixing.
func (a *Assembler) Run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{
		RunID:       a.runID,
		BookTitle:   a.layout.BookTitle,
		OverlayPath: a.overlayPath,
		MusicPath:   a.musicPath,
		StartedAt:   time.Now(),
	}

	parts, err := a.layout.DiscoverParts()
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio files found in %s: run the audio stage first", a.layout.AudioDir)
	}

	log.Printf("[Assembler] Found %d audio parts for %q (overlay=%q, music=%q)",
		len(parts), a.layout.BookTitle, a.overlayPath, a.musicPath)

	report.Total = len(parts)

	var segments []string
	for i := range parts {
		// Part-local failures never abort the run, but cancellation must
		// not be mistaken for one: a cancelled probe would otherwise skip
		// every remaining part.
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now()
			return report, err
		}

		part := &parts[i]
		result := a.processPart(ctx, part)
		report.Parts = append(report.Parts, result)

		if result.Status == models.PartStatusProcessed {
			report.Succeeded++
			segments = append(segments, part.SegmentPath)
			log.Printf("[Assembler] Part %d complete (%d/%d so far)", part.Index, report.Succeeded, report.Total)
		} else {
			log.Printf("[Assembler] Part %d %s: %s", part.Index, result.Status, result.Detail)
		}
	}

	log.Printf("[Assembler] Processing summary: %d/%d parts succeeded", report.Succeeded, report.Total)

	if len(segments) == 0 {
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("no processed segments to assemble")
	}

	// Segments arrive in ascending part index because parts were walked
	// in discovery order; concatenation preserves it.
	finalPath := a.layout.FinalVideoPath()
	if err := a.media.Concatenate(ctx, segments, finalPath); err != nil {
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("final concatenation failed: %w", err)
	}

	deliverable, err := a.finishWithMusic(ctx, finalPath)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	report.FinalPath = deliverable
	report.FinishedAt = time.Now()
	log.Printf("[Assembler] Final video saved to %s", deliverable)
	return report, nil
}

// processPart takes one part through probe, slideshow, and compositing.
// Every failure here is part-local: the run continues with the next part.
func (a *Assembler) processPart(ctx context.Context, part *models.Part) models.PartResult {
	result := models.PartResult{Index: part.Index}

	duration, err := a.media.ProbeDuration(ctx, part.AudioPath)
	if err != nil {
		result.Status = models.PartStatusSkipped
		result.Detail = fmt.Sprintf("audio duration probe failed: %v", err)
		return result
	}

	log.Printf("[Assembler] Part %d: audio duration %.2fs, %d image(s)", part.Index, duration, len(part.ImagePaths))

	slideshowPath := a.layout.SlideshowPath(part.Index)
	if err := a.buildSlideshow(ctx, part, duration, slideshowPath); err != nil {
		result.Status = models.PartStatusFailed
		result.Detail = fmt.Sprintf("slideshow failed: %v", err)
		return result
	}
	defer a.media.Cleanup(slideshowPath)

	segmentPath := a.layout.SegmentPath(part.Index)
	if err := a.media.CompositeSegment(ctx, slideshowPath, part.AudioPath, a.overlayPath, segmentPath); err != nil {
		result.Status = models.PartStatusFailed
		result.Detail = fmt.Sprintf("compositing failed: %v", err)
		return result
	}

	part.SegmentPath = segmentPath
	result.Status = models.PartStatusProcessed
	return result
}

// buildSlideshow produces one clip of exactly the target duration from the
// part's images. With no images a placeholder frame is synthesized and
// treated as a single image. Individual image failures are dropped; the
// part fails only when every image fails.
func (a *Assembler) buildSlideshow(ctx context.Context, part *models.Part, duration float64, outputPath string) error {
	images := part.ImagePaths
	if len(images) == 0 {
		log.Printf("[Assembler] Part %d has no images, rendering placeholder", part.Index)
		placeholder := a.layout.SlideshowPath(part.Index) + ".placeholder.png"
		if err := a.media.RenderPlaceholderImage(ctx, placeholder, fmt.Sprintf("%s - Part %d", a.title, part.Index)); err != nil {
			return fmt.Errorf("placeholder render failed: %w", err)
		}
		defer a.media.Cleanup(placeholder)
		images = []string{placeholder}
	}

	perImage := duration / float64(len(images))
	frames := int(perImage * float64(a.frameRate))
	if frames <= 0 {
		return fmt.Errorf("part %d: %.3fs across %d image(s) yields %d frames at %d fps, duration too short",
			part.Index, duration, len(images), frames, a.frameRate)
	}

	var clips []string
	// Intermediate per-image clips are removed on every exit path,
	// including the drop-and-continue one below.
	defer func() { a.media.Cleanup(clips...) }()

	for i, imagePath := range images {
		if _, err := os.Stat(imagePath); err != nil {
			log.Printf("[Assembler] Part %d: image missing, skipping: %s", part.Index, imagePath)
			continue
		}

		clipPath := fmt.Sprintf("%s.clip_%d.mp4", outputPath, i)
		effect := media.EffectFor(i)

		if err := a.media.AnimateImage(ctx, imagePath, clipPath, effect, perImage, frames); err != nil {
			log.Printf("[Assembler] Part %d: animation failed for image %d (%s), dropping: %v", part.Index, i+1, effect, err)
			a.media.Cleanup(clipPath)
			continue
		}

		clips = append(clips, clipPath)
	}

	if len(clips) == 0 {
		return fmt.Errorf("part %d: no image clips were produced", part.Index)
	}

	return a.media.Concatenate(ctx, clips, outputPath)
}

// finishWithMusic mixes background music under the assembled narration, or
// moves the assembled video to the deliverable path when no music exists.
func (a *Assembler) finishWithMusic(ctx context.Context, assembledPath string) (string, error) {
	deliverable := a.layout.FinalVideoWithMusicPath()

	if a.musicPath == "" {
		log.Printf("[Assembler] No background music available, delivering narration-only video")
		if err := os.Rename(assembledPath, deliverable); err != nil {
			return "", fmt.Errorf("failed to move final video: %w", err)
		}
		return deliverable, nil
	}

	if err := a.media.MixMusic(ctx, assembledPath, a.musicPath, deliverable); err != nil {
		// Deliver the narration-only cut rather than fail the whole run
		// this late.
		log.Printf("[Assembler] Music mixing failed, delivering without music: %v", err)
		return assembledPath, nil
	}

	a.media.Cleanup(assembledPath)
	return deliverable, nil
}
