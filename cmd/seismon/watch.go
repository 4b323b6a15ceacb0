package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/events"
	"github.com/ligovirgo/seismon/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream pipeline events from NATS",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		if cfg.Events.NATSURL == "" {
			return fmt.Errorf("watch requires events.nats_url (SEISMON_NATS_URL)")
		}

		sub, err := events.NewNATSSubscriber(cfg.Events.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("NATS disconnected", "err", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("watching", "topic", topic)
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				printMessage(msg)
			}
		}
	},
}

func printMessage(msg events.Message) {
	v, err := events.Decode(msg)
	if err != nil {
		logger.Warn("undecodable message", "topic", msg.Topic, "err", err)
		return
	}
	if jsonOutput {
		printJSON(map[string]any{"topic": msg.Topic, "payload": v})
		return
	}

	if missingPayload(v) {
		logger.Warn("message without payload", "topic", msg.Topic)
		return
	}

	stamp := ui.RenderMuted(time.Now().Format("15:04:05"))
	switch e := v.(type) {
	case *events.EventIngested:
		fmt.Printf("%s %s %s M%.1f (%.3f, %.3f) at %s\n", stamp, ui.RenderOK("event"),
			ui.RenderAccent(e.Event.EventID), e.Event.Magnitude,
			e.Event.Latitude, e.Event.Longitude, e.Event.Time.UTC().Format(timeLayout))
	case *events.PredictionCreated:
		p := e.Prediction
		fmt.Printf("%s %s %s %s %.0f km, R3.5 %s, %.2e m/s %s\n", stamp, ui.RenderAccent("prediction"),
			p.EventID, p.Detector, p.Distance, p.R3p5.UTC().Format(timeLayout),
			p.Amplitude, ui.Lockloss(p.Lockloss))
	default:
		fmt.Printf("%s %s %v\n", stamp, msg.Topic, v)
	}
}

// missingPayload reports a decoded message whose event or prediction is null.
func missingPayload(v any) bool {
	switch e := v.(type) {
	case *events.EventIngested:
		return e.Event == nil
	case *events.PredictionCreated:
		return e.Prediction == nil
	}
	return false
}

func init() {
	watchCmd.Flags().String("topic", events.TopicAll, "NATS subject to follow")
}
