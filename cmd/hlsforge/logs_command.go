package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hlsforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lineCount int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			path := logs.CurrentPath(cfg.Paths.LogDir)
			lines, offset, err := logs.Tail(path, lineCount)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
					lines, offset, err = logs.ReadFrom(path, offset)
					if err != nil {
						return err
					}
					for _, line := range lines {
						fmt.Fprintln(out, line)
					}
				}
			}
		},
	}

	cmd.Flags().IntVarP(&lineCount, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep reading as the log grows")
	return cmd
}
