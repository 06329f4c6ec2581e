package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/trackjack/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List all PipeWire/JACK output ports that can be captured, and check the configured recording sources against them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg.Recording.Backend, cfg.Recording.SampleRate, nil)
		if err != nil {
			return err
		}

		sources, err := backend.ListSources()
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Audio Sources (%s, %s)\n", backend.GetType(), runtime.GOOS)
		fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

		fmt.Fprintf(out, "%d sources found:\n", len(sources))
		for i, source := range sources {
			fmt.Fprintf(out, "  %d. %s\n", i+1, source)
		}

		device := cfg.CaptureDevice()
		fmt.Fprintf(out, "\nConfigured device %q:\n", device.Name)
		enabled := device.EnabledSources()
		if len(enabled) == 0 {
			fmt.Fprintf(out, "  no sources enabled, recording is unavailable\n")
		}
		for _, source := range enabled {
			status := "available"
			if err := backend.ValidateSource(source); err != nil {
				status = err.Error()
			}
			fmt.Fprintf(out, "  • %s: %s\n", source, status)
		}

		fmt.Fprintf(out, "\nConfigure in recording.sources: [\"<left port>\", \"<right port>\"]\n")
		return nil
	},
}
