package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/application"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register category channels as tickets and backfill their history, then exit",
	RunE:  runSync,
}

var (
	syncChannel string
	syncLimit   int
	syncTimeout time.Duration
)

func init() {
	syncCmd.Flags().StringVar(&syncChannel, "channel", "", "backfill only this channel id")
	syncCmd.Flags().IntVar(&syncLimit, "limit", -1, "messages per channel, 0 for all (default HISTORY_LIMIT)")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 10*time.Minute, "overall time limit")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	limit := syncLimit
	if limit < 0 {
		limit = cfg.Sync.HistoryLimit
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	rep, err := application.RunSync(ctx, cfg, syncChannel, limit, 30*time.Second)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	for _, r := range rep.Results {
		if r.Error != "" {
			log.Printf("sync: channel %s (%s) failed: %s", r.ChannelID, r.Name, r.Error)
		}
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if rep.Failed > 0 {
		return fmt.Errorf("sync: %d of %d channel(s) failed", rep.Failed, rep.Channels)
	}
	if rep.Skipped > 0 {
		return fmt.Errorf("sync: %d message(s) could not be recorded", rep.Skipped)
	}
	return nil
}
