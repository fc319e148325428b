package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"mvsalign/pkg/alignment"
)

var (
	targetColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	alignedColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	sourceColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

// Viewer renders the camera centers of an alignment as 2D projections.
type Viewer struct {
	// pairs holds the corresponding centers of one estimate
	pairs []alignment.Pair

	// showSource adds the unaligned system 1 centers to the plot
	showSource bool
}

// NewViewer creates a viewer for the pairs of an estimate.
func NewViewer(pairs []alignment.Pair, showSource bool) *Viewer {
	return &Viewer{
		pairs:      pairs,
		showSource: showSource,
	}
}

func checkAxis(axis string) error {
	switch axis {
	case "x", "X", "y", "Y", "z", "Z":
		return nil
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// project drops the coordinate named by axis, which must pass checkAxis.
func project(v r3.Vector, axis string) (float64, float64) {
	switch axis {
	case "x", "X":
		return v.Y, v.Z
	case "y", "Y":
		return v.X, v.Z
	default:
		return v.X, v.Y
	}
}

func axisLabels(axis string) (string, string) {
	switch axis {
	case "x", "X":
		return "Y", "Z"
	case "y", "Y":
		return "X", "Z"
	default:
		return "X", "Y"
	}
}

// Plot builds the projection of all centers along axis: system 2 centers and
// the mapped system 1 centers, plus the raw system 1 centers if requested.
func (v *Viewer) Plot(axis string) (*plot.Plot, error) {
	if len(v.pairs) == 0 {
		return nil, fmt.Errorf("no camera pairs to plot")
	}
	if err := checkAxis(axis); err != nil {
		return nil, err
	}

	target := make(plotter.XYs, len(v.pairs))
	aligned := make(plotter.XYs, len(v.pairs))
	source := make(plotter.XYs, len(v.pairs))
	for i, p := range v.pairs {
		target[i].X, target[i].Y = project(p.Target, axis)
		aligned[i].X, aligned[i].Y = project(p.Aligned, axis)
		source[i].X, source[i].Y = project(p.Source, axis)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Camera centers (projection along %s)", axis)
	p.X.Label.Text, p.Y.Label.Text = axisLabels(axis)
	p.Add(plotter.NewGrid())

	if v.showSource {
		s, err := plotter.NewScatter(source)
		if err != nil {
			return nil, fmt.Errorf("failed to create source scatter: %w", err)
		}
		s.GlyphStyle.Color = sourceColor
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("system 1", s)
	}

	t, err := plotter.NewScatter(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create target scatter: %w", err)
	}
	t.GlyphStyle.Color = targetColor
	t.GlyphStyle.Shape = draw.CircleGlyph{}
	t.GlyphStyle.Radius = vg.Points(3)
	p.Add(t)
	p.Legend.Add("system 2", t)

	a, err := plotter.NewScatter(aligned)
	if err != nil {
		return nil, fmt.Errorf("failed to create aligned scatter: %w", err)
	}
	a.GlyphStyle.Color = alignedColor
	a.GlyphStyle.Shape = draw.PlusGlyph{}
	a.GlyphStyle.Radius = vg.Points(3)
	p.Add(a)
	p.Legend.Add("system 1 aligned", a)

	return p, nil
}

// SavePlot writes the projection along axis to filename. The image format
// follows the file extension (png, svg, pdf, ...).
func (v *Viewer) SavePlot(axis, filename string) error {
	p, err := v.Plot(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// SavePlotSequence writes one projection per axis into outputDir as
// centers_x.png, centers_y.png and centers_z.png.
func (v *Viewer) SavePlotSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, axis := range []string{"x", "y", "z"} {
		filename := filepath.Join(outputDir, fmt.Sprintf("centers_%s.png", axis))
		if err := v.SavePlot(axis, filename); err != nil {
			return fmt.Errorf("failed to save %s-axis plot: %w", axis, err)
		}
	}
	return nil
}
