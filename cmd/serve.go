package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/trackjack/internal/server"
	"github.com/audiolibrelab/trackjack/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	Long: `Start the TrackJack control server. Recording is started and stopped with
POST /api/recording/start and /api/recording/stop; GET /api/events streams
progress as server-sent events and /metrics exposes Prometheus metrics.

The server will display the local network URL for easy access from other devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		address := cfg.Server.Address
		if cmd.Flags().Changed("address") {
			address, _ = cmd.Flags().GetString("address")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.New(cfg, ffmpegLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		events, cancel := svc.Subscribe()
		defer cancel()

		srv := server.New(svc, svc.Library(), svc.Metrics().Handler())
		slog.Info("TrackJack server starting", "address", address, "config", cfgFile)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx, address)
		})
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					logEvent(e)
				}
			}
		})

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("address", "", "listen address (overrides config)")
}
