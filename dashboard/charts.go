package dashboard

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("dashboard: no data to chart")

// Chart dimensions, in pixels at 96 DPI.
const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 4 * vg.Inch
	chartDPI    = 96
)

var (
	lineColor    = color.RGBA{R: 38, G: 139, B: 210, A: 255}
	anomalyColor = color.RGBA{R: 220, G: 50, B: 47, A: 255}
)

// SensorChart draws the history of one channel as a line, with the given
// anomalies of that channel marked on top.
func SensorChart(w io.Writer, readings []cabintwin.Reading, c cabintwin.Channel, events []anomaly.Event) error {
	if len(readings) == 0 {
		return ErrNoData
	}
	p := newTimePlot(fmt.Sprintf("Sensor history: %s", c), fmt.Sprintf("%s [%s]", c, c.Unit()))

	pts := make(plotter.XYs, len(readings))
	for i, r := range readings {
		pts[i].X = float64(r.Timestamp.Unix())
		pts[i].Y = r.Value(c)
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	line.Color = lineColor
	p.Add(line)

	var marks plotter.XYs
	for _, e := range events {
		if e.Channel == c {
			marks = append(marks, plotter.XY{X: float64(e.Timestamp.Unix()), Y: e.Value})
		}
	}
	if len(marks) > 0 {
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		scatter.GlyphStyle.Color = anomalyColor
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(scatter)
		p.Legend.Add("anomaly", scatter)
		p.Legend.Top = true
	}
	return writePNG(w, p)
}

// LifeChart draws the remaining life of the component over time.
func LifeChart(w io.Writer, life []lifemodel.Point) error {
	if len(life) == 0 {
		return ErrNoData
	}
	p := newTimePlot("Remaining life", "life remaining [%]")

	pts := make(plotter.XYs, len(life))
	for i, pt := range life {
		pts[i].X = float64(pt.Timestamp.Unix())
		pts[i].Y = pt.LifeRemainingPercent
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	line.Color = lineColor
	p.Add(line, plotter.NewGrid())
	return writePNG(w, p)
}

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.Padding = vg.Points(8)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04"}
	return p
}

func writePNG(w io.Writer, p *plot.Plot) error {
	c := vgimg.NewWith(vgimg.UseWH(chartWidth, chartHeight), vgimg.UseDPI(chartDPI))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
