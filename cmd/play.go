package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/audiolibrelab/trackjack/internal/library"
	"github.com/audiolibrelab/trackjack/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [n]",
	Short: "Play a filed recording",
	Long:  `Play the n-th most recent recording from the library (default 1, the latest) with mpv, ffplay, vlc or aplay.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			var err error
			if n, err = strconv.Atoi(args[0]); err != nil || n < 1 {
				return fmt.Errorf("invalid recording number %q", args[0])
			}
		}

		entries, err := library.NewLedger(cfg.Output.Directory).Entries()
		if err != nil {
			return err
		}
		if n > len(entries) {
			return fmt.Errorf("only %d recordings in the library", len(entries))
		}
		entry := entries[len(entries)-n]

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Playing: %s\n", entry.Track.String())
		return play.New().Play(ctx, entry.Path)
	},
}
