/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"

	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/reader"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate file...",
	Short: "Check recordings end to end",
	Long: `Validate reads every chunk of each recording, verifies the
chunk section checksum and checks that ticks only move forward.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		failed := 0
		for _, filename := range args {
			stats, err := reader.ValidateFile(filename)
			if err != nil {
				logger.Error("invalid recording", "path", filename, "error", err)
				fmt.Fprintf(out, "FAIL %s: %v\n", filename, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "OK   %s\n", filename)
			for _, stream := range []format.Stream{format.STREAM_SNAPSHOTS, format.STREAM_EVENTS} {
				if stats.Chunks[stream] == 0 {
					continue
				}
				fmt.Fprintf(out, "     %s: %d entries in %d chunks, ticks %d..%d\n",
					stream, stats.Entries[stream], stats.Chunks[stream], stats.First[stream], stats.Last[stream])
			}
		}
		if failed > 0 {
			return errors.Errorf("%d of %d recordings are invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
