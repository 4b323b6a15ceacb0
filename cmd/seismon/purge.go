package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/feed"
)

var purgeCmd = &cobra.Command{
	Use:     "purge",
	Short:   "Remove feed directories older than the retention age",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		maxAge := cfg.Feed.Retention
		if cmd.Flags().Changed("max-age") {
			maxAge, _ = cmd.Flags().GetDuration("max-age")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := feed.NewPurger(feed.PurgeOptions{
			Root:   cfg.Feed.Directory,
			MaxAge: maxAge,
			DryRun: dryRun,
		}, logger).Purge(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(res)
		} else {
			verb := "removed"
			if dryRun {
				verb = "would remove"
			}
			for _, p := range res.Removed {
				fmt.Printf("%s %s\n", verb, p)
			}
			fmt.Printf("\n%d %s, %d kept, %d failed\n", len(res.Removed), verb, res.Kept, len(res.Failures))
		}
		if len(res.Failures) > 0 {
			return fmt.Errorf("%d directories could not be removed", len(res.Failures))
		}
		return nil
	},
}

func init() {
	purgeCmd.Flags().Bool("dry-run", false, "list what would be removed without deleting")
	purgeCmd.Flags().Duration("max-age", feed.DefaultRetention, "retention age (defaults to feed.retention)")
}
