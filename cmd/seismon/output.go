package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printEventTable(events []*model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tORIGIN (UTC)\tLAT\tLON\tDEPTH KM\tMAG")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.1f\t%.1f\n",
			ui.RenderAccent(e.EventID),
			e.Time.UTC().Format(timeLayout),
			e.Latitude, e.Longitude, e.Depth, e.Magnitude)
	}
	w.Flush()
	fmt.Printf("\n%d events\n", len(events))
}

func printDetectorTable(detectors []*model.Detector) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLAT\tLON")
	for _, d := range detectors {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", d.Name, d.Latitude, d.Longitude)
	}
	w.Flush()
}

// printPredictionTable shows arrivals as offsets from the event origin.
func printPredictionTable(event *model.Event, preds []*model.Prediction) {
	fmt.Printf("%s  M%.1f  %s  (%.3f, %.3f)  depth %.1f km\n\n",
		ui.RenderAccent(event.EventID), event.Magnitude,
		event.Time.UTC().Format(timeLayout), event.Latitude, event.Longitude, event.Depth)

	offset := func(t time.Time) string {
		return t.Sub(event.Time).Round(time.Second).String()
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTOR\tDIST KM\tP\tS\tR5.0\tR3.5\tR2.0\tAMPLITUDE M/S\tRISK")
	for _, p := range preds {
		fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\t%s\t%s\t%s\t%.3e\t%s\n",
			p.Detector, p.Distance,
			offset(p.P), offset(p.S), offset(p.R5p0), offset(p.R3p5), offset(p.R2p0),
			p.Amplitude, ui.Lockloss(p.Lockloss))
	}
	w.Flush()
}
