package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/audiolibrelab/trackjack/internal/server"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running TrackJack server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), playerTimeout)
		defer cancel()

		url := serverURL(cfg.Server.Address) + "/api/status"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("server is not reachable at %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s", resp.Status)
		}

		var status server.StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("failed to decode status: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state: %s\n", status.State)
		if status.Recording {
			fmt.Fprintf(out, "device: %s\n", status.Device)
			fmt.Fprintf(out, "settings: %s\n", status.Settings)
			fmt.Fprintf(out, "segments: %d\n", status.Segments)
			if status.Track != nil {
				fmt.Fprintf(out, "track: %s\n", status.Track.String())
			}
		}
		if status.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", status.LastError)
		}
		return nil
	},
}

// serverURL turns a listen address into a URL a local client can reach.
func serverURL(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "http://" + strings.TrimPrefix(address, "http://")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
