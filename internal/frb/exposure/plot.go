package exposure

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// plotColumns is the number of time columns in a rendered heat map; bins
// are averaged down to this resolution.
const plotColumns = 288

// coverageXYZ adapts a Grid to plotter.GridXYZ. Columns are time (hours
// of the UTC day), rows are beams; Z is the observed fraction of the bins
// folded into each column.
type coverageXYZ struct {
	g       *Grid
	perCell int
}

func newCoverageXYZ(g *Grid) coverageXYZ {
	per := g.Bins / plotColumns
	if per < 1 {
		per = 1
	}
	return coverageXYZ{g: g, perCell: per}
}

func (c coverageXYZ) Dims() (int, int) {
	return (c.g.Bins + c.perCell - 1) / c.perCell, len(c.g.Beams)
}

func (c coverageXYZ) Z(col, row int) float64 {
	start := col * c.perCell
	end := start + c.perCell
	if end > c.g.Bins {
		end = c.g.Bins
	}
	n := 0
	base := row * c.g.Bins
	for b := start; b < end; b++ {
		if c.g.Observed[base+b] {
			n++
		}
	}
	return float64(n) / float64(end-start)
}

func (c coverageXYZ) X(col int) float64 {
	return float64(col*c.perCell*BinSeconds) / 3600.0
}

func (c coverageXYZ) Y(row int) float64 { return float64(row) }

// newPlot builds the coverage heat map for g.
func newPlot(g *Grid, title string) (*plot.Plot, error) {
	if g == nil || len(g.Beams) == 0 {
		return nil, fmt.Errorf("empty exposure grid")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "UTC hour"
	p.Y.Label.Text = "beam row"

	hm := plotter.NewHeatMap(newCoverageXYZ(g), palette.Heat(12, 1))
	hm.Min = 0
	hm.Max = 1
	p.Add(hm)
	return p, nil
}

// SavePNG renders the grid to a PNG file.
func SavePNG(g *Grid, title, path string) error {
	p, err := newPlot(g, title)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save exposure plot: %w", err)
	}
	return nil
}

// WritePNG renders the grid as PNG to w.
func WritePNG(w io.Writer, g *Grid, title string) error {
	p, err := newPlot(g, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render exposure plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
