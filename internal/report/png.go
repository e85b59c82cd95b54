package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/hwsec-lab/sramlab/internal/monitoring"
)

// SavePlots writes the PNG plots into dir and returns the files written.
// Sections without data are skipped.
func SavePlots(dir string, d *Data) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	var files []string

	if len(d.RoundUniformity) > 0 {
		file := filepath.Join(dir, "round_uniformity.png")
		if err := saveUniformityPlot(file, d.RoundUniformity); err != nil {
			return files, err
		}
		monitoring.Logf("report: wrote %s", file)
		files = append(files, file)
	}

	if len(d.Aliasing) > 0 {
		file := filepath.Join(dir, "aliasing_hist.png")
		if err := saveAliasingPlot(file, d.Aliasing); err != nil {
			return files, err
		}
		monitoring.Logf("report: wrote %s", file)
		files = append(files, file)
	}

	return files, nil
}

func saveUniformityPlot(file string, uniformity []float64) error {
	p := plot.New()
	p.Title.Text = "Per-Round Uniformity"
	p.X.Label.Text = "Round"
	p.Y.Label.Text = "Fractional Hamming Weight"
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, len(uniformity))
	for i, u := range uniformity {
		pts[i] = plotter.XY{X: float64(i), Y: u}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build uniformity line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save uniformity plot: %w", err)
	}
	return nil
}

// saveAliasingPlot draws the distribution of per-bit aliasing values. A
// healthy PUF piles most mass near 0 and 1 with a thin middle.
func saveAliasingPlot(file string, aliasing []float64) error {
	p := plot.New()
	p.Title.Text = "Bit Aliasing Distribution"
	p.X.Label.Text = "Aliasing (mean bit value across rounds)"
	p.Y.Label.Text = "Bits"

	values := make(plotter.Values, len(aliasing))
	copy(values, aliasing)

	hist, err := plotter.NewHist(values, 32)
	if err != nil {
		return fmt.Errorf("failed to build aliasing histogram: %w", err)
	}
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save aliasing plot: %w", err)
	}
	return nil
}
