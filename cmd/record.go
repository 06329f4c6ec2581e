package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/trackjack/internal/service"
	"github.com/audiolibrelab/trackjack/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the player's queue, one file per track",
	Long: `Rewind the current song to its start, then record system audio until the
play queue runs out or you press Ctrl+C. Every track change starts a new
file; finished files are moved into the output directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.New(cfg, ffmpegLogWriter())
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		events, cancel := svc.Subscribe()
		defer cancel()

		if err := svc.StartRecording(ctx); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		status, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		if !status.State.IsRecording() {
			slog.Warn("Nothing to record: is the player on a song and are recording sources configured?")
			return nil
		}
		slog.Info("Recording... Press Ctrl+C to stop", "device", status.Device, "settings", status.Settings)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return waitForRunEnd(gctx, events)
		})
		err = g.Wait()

		slog.Info("Stopping recording...")
		svc.Close()
		if lastErr := svc.LastError(); lastErr != "" {
			slog.Warn("Recording finished with errors", "error", lastErr)
		}
		return err
	},
}

// waitForRunEnd logs events until the run returns to not-recording or ctx
// is cancelled.
func waitForRunEnd(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(e)
			if sc, isState := e.(session.StateChanged); isState && sc.To == session.NotRecording {
				if sc.Err != nil {
					return fmt.Errorf("recording stopped (%s): %w", sc.Reason, sc.Err)
				}
				return nil
			}
		}
	}
}

func logEvent(e session.Event) {
	switch e := e.(type) {
	case session.StateChanged:
		slog.Debug("Recording state changed", "from", e.From, "to", e.To, "reason", e.Reason)
	case session.SegmentStarted:
		slog.Info("Recording track", "track", e.Track.String())
	case session.SegmentFailed:
		slog.Error("Track recording failed", "track", e.Track.String(), "error", e.Err)
	case session.RecordingFinalized:
		if e.Err != nil {
			slog.Error("Failed to file recording", "track", e.Track.String(), "error", e.Err)
		}
	}
}
