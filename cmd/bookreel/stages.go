package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nocturnal/bookreel/internal/config"
	"github.com/nocturnal/bookreel/internal/generate"
	"github.com/nocturnal/bookreel/internal/services"
)

func newScriptCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "script",
		Short: "Extract the book text and generate outline and narration chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runScript(cmd.Context(), cfg)
		},
	}
}

func newAudioCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "audio",
		Short: "Voice each narration chunk (skips parts that already have audio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runAudio(cmd.Context(), cfg)
		},
	}
}

func newImagesCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "Generate images for each chunk (skips parts that already have any)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runImages(cmd.Context(), cfg)
		},
	}
}

func runScript(ctx context.Context, cfg *config.Config) error {
	if cfg.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the script stage")
	}
	if cfg.BookFileName == "" {
		return fmt.Errorf("BOOK_FILE_NAME is required for the script stage")
	}

	layout := newLayout(cfg)
	if indices, _, err := layout.DiscoverChunks(); err == nil && len(indices) > 0 {
		log.Printf("[Script] Found %d existing chunk(s), skipping script stage", len(indices))
		return nil
	}

	epubPath := filepath.Join(cfg.BookDir(), cfg.BookFileName)
	log.Printf("[Script] Extracting text from %s", epubPath)
	bookText, err := services.ExtractBookText(epubPath)
	if err != nil {
		return fmt.Errorf("EPUB extraction failed: %w", err)
	}
	log.Printf("[Script] Extracted %d characters", len(bookText))

	stage := generate.NewScriptStage(
		services.NewOpenAIService(cfg.OpenAIKey),
		layout,
		cfg.DisplayTitle(),
		cfg.Author,
		services.NewPacer(cfg.RequestsPerMinute),
	)

	written, err := stage.Run(ctx, bookText)
	if err != nil {
		return err
	}

	log.Printf("[Script] Done: %d chunk file(s)", written)
	return nil
}

func runAudio(ctx context.Context, cfg *config.Config) error {
	tts, err := newTTSProvider(cfg)
	if err != nil {
		return err
	}

	stage := generate.NewAudioStage(tts, newLayout(cfg), services.NewPacer(cfg.RequestsPerMinute))
	written, err := stage.Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("[Audio] Done: %d new audio file(s)", written)
	return nil
}

func runImages(ctx context.Context, cfg *config.Config) error {
	if cfg.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the image stage")
	}

	gemini, err := services.NewGeminiService(ctx, cfg.GeminiKey)
	if err != nil {
		return err
	}

	layout := newLayout(cfg)
	style, err := generate.LoadVisualStyle(layout.VisualStylePath())
	if err != nil {
		return err
	}

	stage := generate.NewImageStage(
		gemini,
		layout,
		style,
		cfg.ImagesPerPart,
		services.NewPacer(cfg.RequestsPerMinute),
		services.NewQuotaAwarePolicy(time.Duration(cfg.QuotaCooldownSec)*time.Second),
	)

	total, err := stage.Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("[Images] Done: %d new image(s)", total)
	return nil
}

// newTTSProvider picks the narration voice: ElevenLabs when configured,
// otherwise Gemini TTS.
func newTTSProvider(cfg *config.Config) (services.TTSService, error) {
	if cfg.ElevenLabsKey != "" {
		log.Printf("[Audio] TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
		return services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID), nil
	}
	if cfg.GeminiKey != "" {
		log.Printf("[Audio] TTS provider: Gemini (voice: %s)", cfg.GeminiVoice)
		return services.NewGeminiTTSService(cfg.GeminiKey, cfg.GeminiVoice), nil
	}
	return nil, fmt.Errorf("no TTS provider configured: set ELEVENLABS_API_KEY or GEMINI_API_KEY")
}
