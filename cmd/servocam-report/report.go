package main

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/servo-cam/server/internal/db"
)

// series is a session's command log laid out for plotting. T is seconds
// since the first command.
type series struct {
	Session string
	Start   time.Time
	T       []float64
	X       []float64
	Y       []float64
	Count   []float64
	Target  []bool
}

func buildSeries(session string, cmds []db.CommandRecord) series {
	s := series{
		Session: session,
		T:       make([]float64, 0, len(cmds)),
		X:       make([]float64, 0, len(cmds)),
		Y:       make([]float64, 0, len(cmds)),
		Count:   make([]float64, 0, len(cmds)),
		Target:  make([]bool, 0, len(cmds)),
	}
	if len(cmds) == 0 {
		return s
	}
	s.Start = cmds[0].Time
	for _, c := range cmds {
		s.T = append(s.T, c.Time.Sub(s.Start).Seconds())
		s.X = append(s.X, float64(c.AngleX))
		s.Y = append(s.Y, float64(c.AngleY))
		s.Count = append(s.Count, float64(c.Count))
		s.Target = append(s.Target, c.HasTarget)
	}
	return s
}

// summary holds per-axis statistics for a session.
type summary struct {
	Commands    int
	Duration    time.Duration
	MeanX, StdX float64
	MinX, MaxX  float64
	MeanY, StdY float64
	MinY, MaxY  float64
	MeanCount   float64
	// TargetShare is the fraction of commands sent while a target was held.
	TargetShare float64
}

func summarize(s series) summary {
	n := len(s.T)
	out := summary{Commands: n}
	if n == 0 {
		return out
	}
	out.Duration = time.Duration(s.T[n-1] * float64(time.Second))
	out.MeanX, out.StdX = stat.MeanStdDev(s.X, nil)
	out.MeanY, out.StdY = stat.MeanStdDev(s.Y, nil)
	if n == 1 {
		out.StdX, out.StdY = 0, 0
	}
	out.MinX, out.MaxX = floats.Min(s.X), floats.Max(s.X)
	out.MinY, out.MaxY = floats.Min(s.Y), floats.Max(s.Y)
	out.MeanCount = stat.Mean(s.Count, nil)
	held := 0
	for _, ok := range s.Target {
		if ok {
			held++
		}
	}
	out.TargetShare = float64(held) / float64(n)
	return out
}

func (s summary) write(w io.Writer) {
	fmt.Fprintf(w, "commands:     %d over %s\n", s.Commands, s.Duration.Round(time.Millisecond))
	if s.Commands == 0 {
		return
	}
	fmt.Fprintf(w, "pan (x):      mean %.1f  stddev %.2f  range %.0f..%.0f\n", s.MeanX, s.StdX, s.MinX, s.MaxX)
	fmt.Fprintf(w, "tilt (y):     mean %.1f  stddev %.2f  range %.0f..%.0f\n", s.MeanY, s.StdY, s.MinY, s.MaxY)
	fmt.Fprintf(w, "objects:      mean %.2f per command\n", s.MeanCount)
	fmt.Fprintf(w, "target held:  %.0f%%\n", s.TargetShare*100)
}

// maxChartPoints bounds the HTML payload; longer sessions are strided.
const maxChartPoints = 20000

func stride(n, limit int) int {
	if n <= limit {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(limit)))
}

// renderHTML writes an interactive chart of both axes and the object count.
func renderHTML(w io.Writer, s series) error {
	step := stride(len(s.T), maxChartPoints)
	labels := make([]string, 0, len(s.T)/step+1)
	xs := make([]opts.LineData, 0, cap(labels))
	ys := make([]opts.LineData, 0, cap(labels))
	counts := make([]opts.LineData, 0, cap(labels))
	for i := 0; i < len(s.T); i += step {
		labels = append(labels, fmt.Sprintf("%.2f", s.T[i]))
		xs = append(xs, opts.LineData{Value: s.X[i]})
		ys = append(ys, opts.LineData{Value: s.Y[i]})
		counts = append(counts, opts.LineData{Value: s.Count[i]})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "servocam session", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Servo angles",
			Subtitle: fmt.Sprintf("session=%s start=%s points=%d stride=%d", s.Session, s.Start.Format(time.RFC3339), len(labels), step),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "degrees", Min: 0, Max: 180}),
	)
	line.SetXAxis(labels).
		AddSeries("pan", xs).
		AddSeries("tilt", ys).
		AddSeries("objects", counts)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	return line.Render(w)
}

// savePNG writes a static plot of both axes to path.
func savePNG(path string, s series) error {
	p := plot.New()
	p.Title.Text = "servocam " + s.Session
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "degrees"
	p.Y.Min, p.Y.Max = 0, 180

	for _, axis := range []struct {
		name string
		vals []float64
		col  color.Color
	}{
		{"pan", s.X, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"tilt", s.Y, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	} {
		pts := make(plotter.XYs, len(s.T))
		for i := range s.T {
			pts[i].X = s.T[i]
			pts[i].Y = axis.vals[i]
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", axis.name, err)
		}
		l.Color = axis.col
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(axis.name, l)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
