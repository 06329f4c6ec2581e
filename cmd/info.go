package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/audiolibrelab/trackjack/internal/music"

	"github.com/spf13/cobra"
)

const playerTimeout = 5 * time.Second

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the player's current song and where it would be filed",
	Long:  `Connect to the configured MPD server and display the current song, the player state and the library path a recording of it would be moved to.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), playerTimeout)
		defer cancel()

		player := music.NewMPD(cfg.Player.Network, cfg.Player.Address, cfg.Player.Password)
		if err := player.Ping(ctx); err != nil {
			return fmt.Errorf("player at %s is unreachable: %w", cfg.Player.Address, err)
		}

		state, err := player.PlayerState(ctx)
		if err != nil {
			return err
		}
		track, err := player.CurrentTrack(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "=== PLAYER ===\n")
		fmt.Fprintf(out, "address: %s (%s)\n", cfg.Player.Address, cfg.Player.Network)
		fmt.Fprintf(out, "state: %s\n", state)
		if track == nil {
			fmt.Fprintf(out, "\nNo current song, nothing to record.\n")
			return nil
		}

		position, err := player.PlayerPosition(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "position: %s / %s\n", position.Round(time.Second), track.Duration.Round(time.Second))

		fmt.Fprintf(out, "\n=== CURRENT SONG ===\n")
		fmt.Fprintf(out, "id: %s\n", track.ID)
		fmt.Fprintf(out, "title: %s\n", track.Name)
		fmt.Fprintf(out, "artist: %s\n", track.Artist)
		fmt.Fprintf(out, "album: %s\n", track.Album)
		if track.AlbumArtist != "" {
			fmt.Fprintf(out, "album_artist: %s\n", track.AlbumArtist)
		}
		fmt.Fprintf(out, "track: %d\n", track.TrackNumber)

		settings, err := cfg.AudioSettings()
		if err != nil {
			return err
		}
		path, err := cfg.Formatter().Path(*track, settings)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n=== FILE PATHS ===\n")
		fmt.Fprintf(out, "settings: %s\n", settings)
		fmt.Fprintf(out, "output: %s\n", path)
		return nil
	},
}
