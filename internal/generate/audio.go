package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/services"
)

// AudioStage voices each narration chunk into audio_part_N.wav. The stage
// is resumable: parts whose audio already exists are skipped, so a rerun
// only fills the gaps.
type AudioStage struct {
	tts    services.TTSService
	layout *assets.Layout
	pacer  Waiter
}

func NewAudioStage(tts services.TTSService, layout *assets.Layout, pacer Waiter) *AudioStage {
	return &AudioStage{tts: tts, layout: layout, pacer: pacer}
}

// Run voices every chunk that does not yet have audio. It returns how many
// files were written. Safety-blocked chunks are skipped, other per-chunk
// failures are logged and skipped too; only an empty chunks dir is fatal.
func (s *AudioStage) Run(ctx context.Context) (int, error) {
	indices, paths, err := s.layout.DiscoverChunks()
	if err != nil {
		return 0, fmt.Errorf("failed to scan chunks: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no chunk files found in %s: run the script stage first", s.layout.ChunksDir)
	}

	if err := s.layout.EnsureDirs(s.layout.AudioDir); err != nil {
		return 0, err
	}

	log.Printf("[Audio] Found %d chunks for %q", len(paths), s.layout.BookTitle)

	written := 0
	for i, chunkPath := range paths {
		index := indices[i]
		audioPath := s.layout.AudioPath(index)

		if _, err := os.Stat(audioPath); err == nil {
			log.Printf("[Audio] Part %d already exists, skipping", index)
			continue
		}

		text, err := os.ReadFile(chunkPath)
		if err != nil {
			return written, fmt.Errorf("failed to read chunk %d: %w", index, err)
		}

		if err := s.pacer.Wait(ctx); err != nil {
			return written, err
		}

		log.Printf("[Audio] Generating part %d/%d", index, len(paths))

		resp, err := s.tts.GenerateSpeech(ctx, string(text), "a calm, gentle audiobook narration")
		if err != nil {
			if errors.Is(err, services.ErrSpeechBlocked) {
				log.Printf("[Audio] Part %d blocked by safety filters, skipping: %v", index, err)
				continue
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			log.Printf("[Audio] Part %d generation failed, skipping: %v", index, err)
			continue
		}

		if err := os.WriteFile(audioPath, resp.AudioData, 0644); err != nil {
			return written, fmt.Errorf("failed to save audio for part %d: %w", index, err)
		}

		log.Printf("[Audio] Saved part %d (%d bytes)", index, len(resp.AudioData))
		written++
	}

	log.Printf("[Audio] Audio stage complete: %d new file(s)", written)
	return written, nil
}
