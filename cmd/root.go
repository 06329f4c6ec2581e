package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/trackjack/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	envFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "trackjack",
	Short: "Record whatever your music player plays, one file per track",
	Long: `TrackJack drives an MPD music player from the start of its current song,
captures the system audio through PipeWire and cuts the recording at every
track change.

Each finished track is filed into your music library as
"{track number} - {title} - {album}.{ext}", optionally grouped into
artist/album directories.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		// config init must work without a valid config
		if cmd.Name() == "init" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/trackjack.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of TRACKJACK_* environment overrides, ignored when missing")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(playCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

// ffmpegLogWriter returns where ffmpeg output goes, nil to discard it.
func ffmpegLogWriter() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return nil
}
