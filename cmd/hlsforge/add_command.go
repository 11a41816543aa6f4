package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"hlsforge/internal/config"
	"hlsforge/internal/intake"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Add video files to the transcoding queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				watcher := intake.NewWatcher(cfg, store, logging.NewNop())
				for _, arg := range args {
					absPath, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve path: %w", err)
					}
					job, err := watcher.Enqueue(cmd.Context(), absPath)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as job #%d (video id %s)\n", filepath.Base(absPath), job.ID, job.VideoID)
				}
				return nil
			})
		},
	}
}
