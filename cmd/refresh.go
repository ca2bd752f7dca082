package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SovereignSignal/discusswatch/internal/refresh"
)

// oneShotTimeout bounds a full CLI refresh pass across all sources.
const oneShotTimeout = 5 * time.Minute

func newRefreshCommand() *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "refresh [--source id]...",
		Short: "Run a one-shot refresh pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), ids)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "source", nil, "source IDs to refresh (default: all enabled)")
	return cmd
}

func runRefresh(ctx context.Context, ids []string) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(ctx, oneShotTimeout)
	defer cancel()

	var summary refresh.Summary
	if len(ids) > 0 {
		summary = a.orch.RefreshNow(ctx, ids)
	} else {
		summary = a.orch.RefreshAll(ctx)
	}

	fmt.Printf("refreshed %d, failed %d, skipped %d\n", summary.Refreshed, summary.Failed, summary.Skipped)
	return nil
}
