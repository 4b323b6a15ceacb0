package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List recorded events, newest first",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		filter := store.EventFilter{Limit: limit, Descending: true}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		evs, err := s.ListEvents(context.Background(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(evs)
			return nil
		}
		printEventTable(evs)
		return nil
	},
}

var detectorsCmd = &cobra.Command{
	Use:     "detectors",
	Short:   "List the detector registry",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		detectors, err := s.ListDetectors(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(detectors)
			return nil
		}
		printDetectorTable(detectors)
		return nil
	},
}

var predictionsCmd = &cobra.Command{
	Use:     "predictions <event-id>",
	Short:   "Show the predictions recorded for an event",
	GroupID: "query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		event, err := s.GetEvent(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("event %q not found", args[0])
		}
		if err != nil {
			return err
		}
		preds, err := s.PredictionsForEvent(ctx, event.EventID)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]any{"event": event, "predictions": preds})
			return nil
		}
		printPredictionTable(event, preds)
		return nil
	},
}

func init() {
	eventsCmd.Flags().Duration("since", 0, "only events with an origin time within this window (e.g. 72h)")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events (0 = all)")
}
