package main

import (
	"github.com/spf13/cobra"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/config"
)

func newRootCommand() *cobra.Command {
	var bookFlag string
	var dirFlag string

	rootCmd := &cobra.Command{
		Use:           "bookreel",
		Short:         "Turn an e-book into a narrated, illustrated video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&bookFlag, "book", "", "Book title (overrides BOOK_TITLE)")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "Base directory for books, music, overlays (overrides BOOKREEL_BASE_DIR)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if bookFlag != "" {
			cfg.BookTitle = bookFlag
		}
		if dirFlag != "" {
			cfg.BaseDir = dirFlag
		}
		if err := cfg.RequireBook(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	rootCmd.AddCommand(newScriptCommand(load))
	rootCmd.AddCommand(newAudioCommand(load))
	rootCmd.AddCommand(newImagesCommand(load))
	rootCmd.AddCommand(newManifestCommand(load))
	rootCmd.AddCommand(newAssembleCommand(load))
	rootCmd.AddCommand(newRunCommand(load))
	rootCmd.AddCommand(newServeCommand(load))

	return rootCmd
}

// configLoader defers config loading until a command actually runs, so
// flag values registered on the root are visible.
type configLoader func() (*config.Config, error)

// newLayout builds the artifact layout for the configured book.
func newLayout(cfg *config.Config) *assets.Layout {
	return &assets.Layout{
		ChunksDir:   cfg.ChunksDir(),
		AudioDir:    cfg.AudioDir(),
		ImagesDir:   cfg.ImagesDir(),
		VideoDir:    cfg.VideoDir(),
		TempDir:     cfg.TempDir(),
		MusicDir:    cfg.MusicDir(),
		OverlaysDir: cfg.OverlaysDir(),
		BookTitle:   cfg.BookTitle,
	}
}
