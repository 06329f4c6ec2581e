package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/audiolibrelab/trackjack/internal/library"

	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List recordings filed into the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger := library.NewLedger(cfg.Output.Directory)
		entries, err := ledger.Entries()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No recordings in %s\n", ledger.Path())
			return nil
		}

		limit, _ := cmd.Flags().GetInt("last")
		if limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}

		var total uint64
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDED\tSIZE\tARTIST\tTITLE\tPATH")
		for _, e := range entries {
			total += uint64(e.Size)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				humanize.Time(e.RecordedAt),
				humanize.Bytes(uint64(e.Size)),
				e.Track.Artist,
				e.Track.Name,
				e.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s in %s recordings\n", humanize.Bytes(total), humanize.Comma(int64(len(entries))))
		return nil
	},
}

func init() {
	libraryCmd.Flags().IntP("last", "n", 0, "only show the n most recent recordings")
}
