package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write a snapshot of events and predictions",
	GroupID: "pipeline",
	Long: `Write every recorded event with its predictions.

With no destination flags the snapshot goes to stdout. --output writes a
local file atomically; --s3 uploads to the bucket configured under [export].`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		toS3, _ := cmd.Flags().GetBool("s3")

		if !cmd.Flags().Changed("format") {
			formatFlag = cfg.Export.Format
		}
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		var dests []export.Destination
		if output != "" {
			dests = append(dests, export.NewFileDestination(output))
		}
		if toS3 {
			if cfg.Export.S3Bucket == "" {
				return fmt.Errorf("--s3 requires export.s3_bucket (SEISMON_EXPORT_S3_BUCKET)")
			}
			d, err := export.NewS3Destination(ctx, cfg.Export.S3Bucket, cfg.ExportKey(), cfg.Export.S3Region, cfg.Export.S3Endpoint, format)
			if err != nil {
				return err
			}
			dests = append(dests, d)
		}

		if len(dests) == 0 {
			return export.Write(ctx, s, format, os.Stdout)
		}

		if err := export.New(s, format, dests, logger).Export(ctx); err != nil {
			return err
		}
		for _, d := range dests {
			fmt.Fprintf(os.Stderr, "exported %s to %s\n", format, d.Name())
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "jsonl", "snapshot format (jsonl or parquet)")
	exportCmd.Flags().StringP("output", "o", "", "write the snapshot to this file")
	exportCmd.Flags().Bool("s3", false, "upload the snapshot to the configured S3 bucket")
}
