package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nocturnal/bookreel/internal/assembler"
	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/config"
	"github.com/nocturnal/bookreel/internal/manifest"
	"github.com/nocturnal/bookreel/internal/media"
	"github.com/nocturnal/bookreel/internal/models"
	"github.com/nocturnal/bookreel/internal/runlog"
)

func newManifestCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Write the job.json snapshot of discovered assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			layout := newLayout(cfg)
			overlay, _ := pickRunAssets(cfg, layout)

			m, err := manifest.Write(layout, uuid.New(), overlay)
			if err != nil {
				return err
			}

			log.Printf("[Manifest] %d part(s) recorded for %q", len(m.Assets), m.BookTitle)
			return nil
		},
	}
}

func newAssembleCommand(load configLoader) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Build per-part segments and the final video with background music",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			overlay, music := pickRunAssets(cfg, newLayout(cfg))
			return assemble(cmd.Context(), cfg, cleanup, uuid.New(), overlay, music)
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove temp segment files after a successful assembly")

	return cmd
}

func newRunCommand(load configLoader) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: script, audio, images, manifest, assemble",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGeneration(); err != nil {
				return err
			}

			ctx := cmd.Context()
			stages := []struct {
				name string
				run  func(context.Context, *config.Config) error
			}{
				{"script", runScript},
				{"audio", runAudio},
				{"images", runImages},
			}
			for _, stage := range stages {
				log.Printf("[Run] === Stage: %s ===", stage.name)
				if err := stage.run(ctx, cfg); err != nil {
					return fmt.Errorf("%s stage failed: %w", stage.name, err)
				}
			}

			// One run identity and one asset selection, shared by the
			// manifest, the assembly, and the run log. Picking twice would
			// record an overlay the video does not contain.
			layout := newLayout(cfg)
			runID := uuid.New()
			overlay, music := pickRunAssets(cfg, layout)
			if _, err := manifest.Write(layout, runID, overlay); err != nil {
				return err
			}

			log.Printf("[Run] === Stage: assemble ===")
			return assemble(ctx, cfg, cleanup, runID, overlay, music)
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove temp segment files after a successful assembly")

	return cmd
}

// assemble runs the video assembly against whatever artifacts exist,
// records the run in the run log, and prints the summary table. The caller
// resolves runID and the overlay/music selection. Processed segment files
// survive in temp_files for inspection unless cleanup is set.
func assemble(ctx context.Context, cfg *config.Config, cleanup bool, runID uuid.UUID, overlay, music string) error {
	layout := newLayout(cfg)

	lock, err := layout.Lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := layout.EnsureDirs(layout.VideoDir, layout.TempDir); err != nil {
		return err
	}

	engine, err := media.New(layout.TempDir, media.Options{
		FrameRate:        cfg.FrameRate,
		CanvasWidth:      cfg.CanvasWidth,
		CanvasHeight:     cfg.CanvasHeight,
		AudioCodec:       cfg.AudioCodec,
		AudioBitrate:     cfg.AudioBitrate,
		MusicVolume:      cfg.MusicVolume,
		ChromaColor:      cfg.ChromaColor,
		ChromaSimilarity: cfg.ChromaSimilarity,
		ChromaBlend:      cfg.ChromaBlend,
	})
	if err != nil {
		return err
	}
	engine.Announce()

	a := assembler.New(engine, layout, runID, cfg.FrameRate, cfg.DisplayTitle(), overlay, music)

	store, err := runlog.Open(layout.RunLogPath())
	if err != nil {
		return err
	}
	defer store.Close()

	report, runErr := a.Run(ctx)
	if report != nil {
		status := models.RunStatusSucceeded
		if runErr != nil {
			status = models.RunStatusFailed
		}
		if err := store.Begin(ctx, report.RunID, report.BookTitle, report.StartedAt); err != nil {
			log.Printf("[Run] Could not record run start: %v", err)
		} else if err := store.Finish(ctx, report, status); err != nil {
			log.Printf("[Run] Could not record run outcome: %v", err)
		}

		printReport(report)
	}

	if runErr == nil && cleanup {
		if err := os.RemoveAll(layout.TempDir); err != nil {
			log.Printf("[Run] Temp cleanup failed: %v", err)
		} else {
			log.Printf("[Run] Removed temp files in %s", layout.TempDir)
		}
	}

	return runErr
}

// pickRunAssets resolves the overlay and music for this run, once. Both
// are optional; the seed makes the selection reproducible.
func pickRunAssets(cfg *config.Config, layout *assets.Layout) (overlay, music string) {
	selector := assets.NewSelector(cfg.Seed)

	overlays, err := layout.DiscoverOverlays()
	if err != nil {
		log.Printf("[Run] Overlay scan failed, continuing without: %v", err)
	}
	overlay = selector.Pick(overlays)

	tracks, err := layout.DiscoverMusic()
	if err != nil {
		log.Printf("[Run] Music scan failed, continuing without: %v", err)
	}
	music = selector.Pick(tracks)

	if overlay != "" {
		log.Printf("[Run] Overlay: %s", overlay)
	}
	if music != "" {
		log.Printf("[Run] Music: %s", music)
	}

	return overlay, music
}
