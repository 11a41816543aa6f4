package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"hlsforge/internal/config"
	"hlsforge/internal/deps"
	"hlsforge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(daemonRunning(cfg)))
				fmt.Fprintf(out, "Queue database: %s\n", cfg.QueueDatabasePath())

				for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
					detail := status.Command
					if !status.Available {
						detail = status.Detail
					}
					fmt.Fprintf(out, "%s: %s (%s)\n", status.Name, yesNo(status.Available), detail)
				}

				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Jobs: %s total, %s queued, %s processing, %s failed, %s complete\n",
					formatCount(int64(summary.Total)),
					formatCount(int64(summary.Queued)),
					formatCount(int64(summary.Processing)),
					formatCount(int64(summary.Failed)),
					formatCount(int64(summary.Complete)),
				)
				return nil
			})
		},
	}
}

// daemonRunning probes the daemon lock file. Acquiring the lock means no
// daemon holds it; the lock is released immediately after the check.
func daemonRunning(cfg *config.Config) bool {
	lock := flock.New(cfg.DaemonLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
