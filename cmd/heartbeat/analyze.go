package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/heartbeat/internal/app"
	"github.com/ayusman/heartbeat/internal/capture"
	"github.com/ayusman/heartbeat/internal/chart"
	"github.com/ayusman/heartbeat/internal/rppg"
)

var analyzeOpts struct {
	plot        string
	opticalFlow bool
	quiet       bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Estimate heart rate over a recorded video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("optical-flow") {
			cfg.UseOpticalFlow = analyzeOpts.opticalFlow
		}
		return runAnalyze(cmd, args[0])
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.plot, "plot", "p", "", "Write the BPM series to a .png or .html chart")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.opticalFlow, "optical-flow", false, "Track the face with optical flow between rescans")
	analyzeCmd.Flags().BoolVarP(&analyzeOpts.quiet, "quiet", "q", false, "Print only the summary")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	cfg.VideoFile = path

	cam := capture.NewFileCamera(path)
	if err := cam.Open(); err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer cam.Close()

	total := -1
	if fc, ok := cam.(capture.FrameCounter); ok && fc.FrameCount() > 0 {
		total = fc.FrameCount()
	}

	// Estimates are stamped in media time from the epoch.
	epoch := time.Unix(0, 0).UTC()
	pipeline, err := app.New(app.Options{
		Config: cfg,
		Camera: cam,
		Now:    func() time.Time { return epoch },
	})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Analyzing "+filepath.Base(path)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	fps := float64(cam.FPS())
	estimates, err := pipeline.RunOffline(cmd.Context(), fps, func(int) { bar.Add(1) })
	bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(estimates) == 0 {
		return fmt.Errorf("no estimate: the face was not tracked for %d seconds", cfg.WindowSeconds)
	}

	series := chart.Series{Title: filepath.Base(path)}
	for _, est := range estimates {
		series.Points = append(series.Points, chart.Point{At: est.At, BPM: est.BPM})
		if !analyzeOpts.quiet {
			fmt.Fprintf(out, "%8.2fs  %s bpm\n", est.At.Sub(epoch).Seconds(), app.FormatBPM(est.BPM))
		}
	}

	fmt.Fprintln(out, summarize(estimates))

	if analyzeOpts.plot != "" {
		if err := writeChart(analyzeOpts.plot, series); err != nil {
			return err
		}
		fmt.Fprintf(out, "Chart written to %s\n", analyzeOpts.plot)
	}
	return nil
}

// summarize reports the median and spread of a run of estimates.
func summarize(estimates []rppg.Estimate) string {
	bpms := make([]float64, len(estimates))
	for i, est := range estimates {
		bpms[i] = est.BPM
	}
	slices.Sort(bpms)

	median := stat.Quantile(0.5, stat.Empirical, bpms, nil)
	mean, std := stat.MeanStdDev(bpms, nil)
	if len(bpms) < 2 {
		std = 0
	}

	return fmt.Sprintf("%d estimates: median %s bpm, mean %s ± %.1f, range %s-%s",
		len(bpms), app.FormatBPM(median), app.FormatBPM(mean), std,
		app.FormatBPM(bpms[0]), app.FormatBPM(bpms[len(bpms)-1]))
}

// writeChart renders series to path, choosing the format by extension.
func writeChart(path string, series chart.Series) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return chart.SavePNG(path, series)
	case ".html", ".htm":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := chart.HTML(f, series); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported chart format %q: use .png or .html", filepath.Ext(path))
	}
}
