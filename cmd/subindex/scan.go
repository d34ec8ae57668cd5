package subindex

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subtitle-index/internal/logging"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle and exit",
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, v, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, v, false)
	if err != nil {
		return err
	}
	defer a.close()
	defer a.transcoder.Cleanup()

	a.memory.Start()
	defer a.memory.Stop()

	start := time.Now()
	if err := a.indexer.RunScanCycle(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	stats, err := a.db.GetStats(ctx)
	if err != nil {
		logging.Warn("Failed to read totals: %v", err)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scan finished in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "  Libraries:      %d\n", stats.Libraries)
	fmt.Fprintf(cmd.OutOrStdout(), "  Files indexed:  %d (%d pending, %d missing)\n", stats.FilesIndexed, stats.FilesPending, stats.FilesMissing)
	fmt.Fprintf(cmd.OutOrStdout(), "  Tracks:         %d video, %d audio, %d subtitle\n", stats.VideoTracks, stats.AudioTracks, stats.SubtitleTracks)
	fmt.Fprintf(cmd.OutOrStdout(), "  Conversations:  %d (%d lines)\n", stats.Conversations, stats.Lines)
	return nil
}
