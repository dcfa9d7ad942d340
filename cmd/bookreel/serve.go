package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nocturnal/bookreel/internal/runlog"
	"github.com/nocturnal/bookreel/internal/server"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only status API over the book's manifest and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			layout := newLayout(cfg)
			if err := layout.EnsureDirs(layout.VideoDir); err != nil {
				return err
			}

			store, err := runlog.Open(layout.RunLogPath())
			if err != nil {
				return err
			}
			defer store.Close()

			router := server.NewRouter(server.NewHandler(layout, store), server.RouterConfig{
				CorsAllowedOrigins: cfg.CorsAllowedOrigins,
			})

			srv := &http.Server{
				Addr:    ":" + cfg.ServerPort,
				Handler: router,
			}

			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				log.Printf("[Server] Status API listening on :%s (book: %s)", cfg.ServerPort, cfg.BookTitle)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Println("[Server] Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
