package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxscribe/voxscribe/internal/server"
	"github.com/voxscribe/voxscribe/internal/watcher"
)

func serveCmd() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI, folder watcher, and Plaud poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			if err := a.statuses.RecoverStale(); err != nil {
				log.Printf("[serve] stale status recovery: %v", err)
			}

			if !noWatch {
				w := watcher.New(a.cfg.Paths.WatchDir, func(ctx context.Context, path string) error {
					return a.runner.ProcessFile(ctx, path)
				})
				go func() {
					if err := w.Run(ctx); err != nil && ctx.Err() == nil {
						log.Printf("[serve] watcher stopped: %v", err)
					}
				}()

				if a.plaud != nil {
					poller := watcher.NewPoller(a.plaud, a.conn)
					interval := time.Duration(a.cfg.Plaud.PollInterval) * time.Second
					if err := poller.Start(interval); err != nil {
						log.Printf("[serve] poller: %v", err)
					} else {
						defer poller.Stop()
					}
				}
			}

			opts := server.Options{
				Config:             a.cfg,
				Statuses:           a.statuses,
				History:            a.history,
				PlaudConn:          a.conn,
				Runner:             a.runner,
				Docs:               a.docs,
				Cache:              a.cache,
				GoogleClientID:     envOr("GOOGLE_CLIENT_ID", ""),
				GoogleClientSecret: envOr("GOOGLE_CLIENT_SECRET", ""),
			}
			if a.plaud != nil {
				opts.Plaud = a.plaud
			}
			if a.anthropic != nil {
				opts.Anthropic = a.anthropic
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the folder watcher and Plaud poller")
	return cmd
}
