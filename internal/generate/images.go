package generate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/services"
)

// ImageGenerator produces contextual prompts and renders them.
// *services.GeminiService implements it.
type ImageGenerator interface {
	GenerateImagePrompts(ctx context.Context, chunkText string, style services.VisualStyle, numImages, partNumber, totalParts int) ([]string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStage renders N images per narration chunk. Resumable: a part that
// already has any images on disk is left alone. Quota errors trigger the
// retry policy's cooldown; any image that still fails is dropped, since the
// assembler tolerates short or empty image sets.
type ImageStage struct {
	gen     ImageGenerator
	layout  *assets.Layout
	style   services.VisualStyle
	perPart int
	pacer   Waiter
	policy  services.RetryPolicy
}

func NewImageStage(gen ImageGenerator, layout *assets.Layout, style services.VisualStyle, perPart int, pacer Waiter, policy services.RetryPolicy) *ImageStage {
	return &ImageStage{
		gen:     gen,
		layout:  layout,
		style:   style,
		perPart: perPart,
		pacer:   pacer,
		policy:  policy,
	}
}

// Run generates images for every chunk that has none yet and returns the
// number of images written.
func (s *ImageStage) Run(ctx context.Context) (int, error) {
	indices, paths, err := s.layout.DiscoverChunks()
	if err != nil {
		return 0, fmt.Errorf("failed to scan chunks: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no chunk files found in %s: run the script stage first", s.layout.ChunksDir)
	}

	if err := s.layout.EnsureDirs(s.layout.ImagesDir); err != nil {
		return 0, err
	}

	log.Printf("[Images] Found %d chunks for %q (style: %s)", len(paths), s.layout.BookTitle, s.style.Style)

	total := 0
	for i, chunkPath := range paths {
		index := indices[i]

		existing, err := filepath.Glob(filepath.Join(s.layout.ImagesDir, fmt.Sprintf("image_part_%d_img_*.png", index)))
		if err != nil {
			return total, err
		}
		if len(existing) > 0 {
			log.Printf("[Images] Part %d has %d existing image(s), skipping", index, len(existing))
			continue
		}

		text, err := os.ReadFile(chunkPath)
		if err != nil {
			return total, fmt.Errorf("failed to read chunk %d: %w", index, err)
		}

		n, err := s.processPart(ctx, index, len(paths), string(text))
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			log.Printf("[Images] Part %d failed, continuing: %v", index, err)
			continue
		}

		log.Printf("[Images] Part %d complete: %d/%d images generated", index, n, s.perPart)
		total += n
	}

	log.Printf("[Images] Image stage complete: %d new image(s)", total)
	return total, nil
}

// processPart generates prompts for one chunk and renders each of them.
func (s *ImageStage) processPart(ctx context.Context, index, totalParts int, chunkText string) (int, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return 0, err
	}

	prompts, err := s.gen.GenerateImagePrompts(ctx, chunkText, s.style, s.perPart, index, totalParts)
	if err != nil {
		return 0, fmt.Errorf("prompt generation failed: %w", err)
	}

	saved := 0
	for i, prompt := range prompts {
		data, err := s.renderWithRetry(ctx, prompt)
		if err != nil {
			log.Printf("[Images] Part %d image %d failed, dropping: %v", index, i+1, err)
			continue
		}

		path := s.layout.ImagePath(index, i+1)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return saved, fmt.Errorf("failed to save %s: %w", path, err)
		}

		log.Printf("[Images] Saved %s", filepath.Base(path))
		saved++
	}

	if saved == 0 {
		return 0, fmt.Errorf("no images were generated for part %d", index)
	}

	return saved, nil
}

// renderWithRetry renders one prompt, applying the retry policy. Quota
// errors get the long cooldown; transient errors a short delay.
func (s *ImageStage) renderWithRetry(ctx context.Context, prompt string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := s.gen.GenerateImage(ctx, prompt)
		if err == nil {
			return data, nil
		}
		lastErr = err

		delay, retry := s.policy.Backoff(err, attempt)
		if !retry {
			return nil, lastErr
		}

		if services.IsQuotaError(err) {
			log.Printf("[Images] Hit API quota, pausing %s before retrying", delay)
		}
		if err := services.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
