package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"hlsforge/internal/media/ladder"
	"hlsforge/internal/media/probe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <path>",
		Short: "Inspect a video file and show its encoding ladder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			result, err := probe.Inspect(cmd.Context(), cfg.FFprobeBinary(), absPath)
			if err != nil {
				return err
			}
			profile, err := result.Profile()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File: %s\n", absPath)
			fmt.Fprintf(out, "Video: %s %dx%d @ %.3f fps\n", profile.VideoCodec, profile.Width, profile.Height, profile.FrameRate)
			fmt.Fprintf(out, "Duration: %.1fs\n", profile.DurationSeconds)
			fmt.Fprintf(out, "Audio: %s\n", yesNo(profile.HasAudio))
			if profile.BitRate > 0 {
				fmt.Fprintf(out, "Bitrate: %d kb/s\n", profile.BitRate/1000)
			}

			renditions := ladder.Eligible(profile.Width, profile.Height)
			if len(renditions) == 0 {
				fmt.Fprintf(out, "No eligible renditions: source is below %s\n", ladder.Lowest().Resolution())
				return nil
			}

			rows := make([][]string, 0, len(renditions))
			for _, r := range renditions {
				rows = append(rows, []string{
					r.Name,
					r.Resolution(),
					strconv.Itoa(r.BitrateKbps) + "k",
					strconv.Itoa(r.MaxRateKbps()) + "k",
					strconv.Itoa(r.BufSizeKbps()) + "k",
				})
			}
			table := renderTable(
				[]tableColumn{
					{title: "Rendition"},
					{title: "Resolution"},
					{title: "Bitrate", align: alignRight},
					{title: "Maxrate", align: alignRight},
					{title: "Bufsize", align: alignRight},
				},
				rows,
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}
