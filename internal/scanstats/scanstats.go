// Package scanstats summarises and plots scans.
package scanstats

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/neo.lidar/internal/neo"
)

// Summary describes the distances in one scan. Samples with a zero distance
// or the communication error bit are counted but excluded from the
// statistics.
type Summary struct {
	Samples    int
	Valid      int
	CommErrors int

	MinDistance    float64 // cm
	MaxDistance    float64 // cm
	MeanDistance   float64 // cm
	StdDevDistance float64 // cm, sample standard deviation
	Coverage       float64 // degrees between the first and last valid angle
}

func (s Summary) String() string {
	return fmt.Sprintf("%d samples (%d valid, %d comm errors), distance %.0f-%.0f cm, mean %.1f sd %.1f, coverage %.1f°",
		s.Samples, s.Valid, s.CommErrors, s.MinDistance, s.MaxDistance, s.MeanDistance, s.StdDevDistance, s.Coverage)
}

func usable(s neo.Sample) bool {
	return s.Distance > 0 && !s.CommError
}

// Summarize computes the distance statistics of scan.
func Summarize(scan neo.Scan) Summary {
	sum := Summary{Samples: len(scan.Samples)}
	dist := make([]float64, 0, len(scan.Samples))
	angles := make([]float64, 0, len(scan.Samples))
	for _, s := range scan.Samples {
		if s.CommError {
			sum.CommErrors++
		}
		if !usable(s) {
			continue
		}
		dist = append(dist, float64(s.Distance))
		angles = append(angles, s.Angle)
	}
	sum.Valid = len(dist)
	if sum.Valid == 0 {
		return sum
	}

	sum.MinDistance = floats.Min(dist)
	sum.MaxDistance = floats.Max(dist)
	if sum.Valid > 1 {
		sum.MeanDistance, sum.StdDevDistance = stat.MeanStdDev(dist, nil)
	} else {
		sum.MeanDistance = dist[0]
	}
	sum.Coverage = floats.Max(angles) - floats.Min(angles)
	return sum
}

// Points converts the usable samples of scan to cartesian coordinates in
// meters, with 0° along +X and angles increasing clockwise as the device
// reports them.
func Points(scan neo.Scan) plotter.XYs {
	pts := make(plotter.XYs, 0, len(scan.Samples))
	for _, s := range scan.Samples {
		if !usable(s) {
			continue
		}
		rad := s.Angle * math.Pi / 180
		r := float64(s.Distance) / 100
		pts = append(pts, plotter.XY{X: r * math.Cos(rad), Y: -r * math.Sin(rad)})
	}
	return pts
}

func newScanPlot(scan neo.Scan) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scan %d (%s)", scan.Sequence, scan.Session)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	pts := Points(scan)
	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
		p.Add(sc)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{}})
	if err != nil {
		return nil, err
	}
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	origin.GlyphStyle.Color = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	p.Add(origin)
	return p, nil
}

// SavePlot renders scan as a top-down point plot. The image format follows
// the file extension (png, svg, pdf).
func SavePlot(scan neo.Scan, path string) error {
	p, err := newScanPlot(scan)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save scan plot: %w", err)
	}
	return nil
}

// WritePlotPNG renders scan as a PNG to w.
func WritePlotPNG(scan neo.Scan, w io.Writer) error {
	p, err := newScanPlot(scan)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
