package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"medidenoise/pkg/ingest"
	"medidenoise/pkg/normalize"
	"medidenoise/pkg/snr"
)

var snrCmd = &cobra.Command{
	Use:   "snr <files...>",
	Short: "Print the standalone SNR of image files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSNR(cmd.OutOrStdout(), os.Stderr, newPipeline(cfg), cfg.Server.MaxPixels, args)
	},
}

type snrRow struct {
	file  string
	value snr.Value
	err   error
}

func runSNR(out, progress io.Writer, pipeline *normalize.Pipeline, maxPixels int, files []string) error {
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Measuring"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	rows := make([]snrRow, 0, len(files))
	for _, f := range files {
		row := snrRow{file: f}
		row.value, row.err = measure(pipeline, maxPixels, f)
		rows = append(rows, row)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(progress)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSNR (dB)")
	failed := 0
	for _, row := range rows {
		if row.err != nil {
			fmt.Fprintf(tw, "%s\terror: %v\n", row.file, row.err)
			failed++
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", row.file, row.value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be measured", failed, len(files))
	}
	return nil
}

func measure(pipeline *normalize.Pipeline, maxPixels int, path string) (snr.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snr.Value{}, err
	}
	raw, err := ingest.Decode(filepath.Base(path), data, maxPixels)
	if err != nil {
		return snr.Value{}, err
	}
	img, err := pipeline.Normalize(raw)
	if err != nil {
		return snr.Value{}, err
	}
	return snr.StandaloneImage(img)
}
