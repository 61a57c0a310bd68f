package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// syncGrace leaves room for the local fallback after a remote timeout.
const syncGrace = 10 * time.Second

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the remote feed once and merge it into the local store",
	Long: `Run a single remote refresh to completion. Liked flags already in the
store are preserved. When the remote source is unreachable the local store
is left untouched and the command fails.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 0, "overall deadline (default: sync.fetch_timeout)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := a.cfg.Sync.FetchTimeout + syncGrace
	if syncTimeout > 0 {
		timeout = syncTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := a.api.SyncOnce(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %d posts\n", n)
	return nil
}
