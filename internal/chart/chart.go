// Package chart renders BPM series as interactive HTML or static PNG.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrEmpty is returned when a series has no points.
var ErrEmpty = errors.New("no readings to chart")

// Point is one BPM reading.
type Point struct {
	At  time.Time
	BPM float64
}

// Series is a titled run of readings in chronological order.
type Series struct {
	Title  string
	Points []Point
}

// Offsets returns each point's distance in seconds from the first one.
func (s Series) Offsets() []float64 {
	out := make([]float64, len(s.Points))
	if len(s.Points) == 0 {
		return out
	}
	start := s.Points[0].At
	for i, p := range s.Points {
		out[i] = p.At.Sub(start).Seconds()
	}
	return out
}

// HTML renders the series as a standalone go-echarts page.
func HTML(w io.Writer, s Series) error {
	if len(s.Points) == 0 {
		return ErrEmpty
	}

	x := make([]string, len(s.Points))
	y := make([]opts.LineData, len(s.Points))
	for i, p := range s.Points {
		x[i] = p.At.Format("15:04:05")
		y[i] = opts.LineData{Value: p.BPM}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    s.Title,
			Subtitle: fmt.Sprintf("%d readings from %s", len(s.Points), s.Points[0].At.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "BPM", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("bpm", y).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Plot builds a gonum plot of BPM against elapsed seconds.
func Plot(s Series) (*plot.Plot, error) {
	if len(s.Points) == 0 {
		return nil, ErrEmpty
	}

	offsets := s.Offsets()
	pts := make(plotter.XYs, len(s.Points))
	for i, p := range s.Points {
		pts[i] = plotter.XY{X: offsets[i], Y: p.BPM}
	}

	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "BPM"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("build line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	return p, nil
}

// PNG writes the series plot as a PNG image.
func PNG(w io.Writer, s Series) error {
	p, err := Plot(s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the series plot to path.
func SavePNG(path string, s Series) error {
	p, err := Plot(s)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
