package present

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/benchscope/internal/fsutil"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// BoundsMargin is the head room, in volts, added above and below the
// waveforms when the vertical axis is rescaled.
const BoundsMargin = 0.5

var (
	channel1Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	channel2Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotFile renders each waveform pair to an image file, replacing the
// previous one. The format follows the file extension (.png, .svg, ...).
type PlotFile struct {
	fs            fsutil.FileSystem
	path          string
	width, height vg.Length
}

// NewPlotFile returns a presenter writing to path on the local filesystem.
func NewPlotFile(path string) *PlotFile {
	return NewPlotFileFS(fsutil.OSFileSystem{}, path)
}

// NewPlotFileFS returns a presenter writing to path through fs.
func NewPlotFileFS(fs fsutil.FileSystem, path string) *PlotFile {
	return &PlotFile{fs: fs, path: path, width: 10 * vg.Inch, height: 4 * vg.Inch}
}

// Path returns the output path.
func (p *PlotFile) Path() string { return p.path }

// Present implements pipeline.Presenter.
func (p *PlotFile) Present(pair waveform.Pair) error {
	if pair.Len() == 0 {
		return errors.New("empty waveform pair")
	}
	plt, err := WaveformPlot(pair)
	if err != nil {
		return err
	}

	ext := filepath.Ext(p.path)
	format := strings.ToLower(strings.TrimPrefix(ext, "."))
	if format == "" {
		format = "png"
	}
	w, err := plt.WriterTo(p.width, p.height, format)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	// Write next to the target and rename so viewers never see half a file.
	tmp := filepath.Join(filepath.Dir(p.path), "."+strings.TrimSuffix(filepath.Base(p.path), ext)+".tmp"+ext)
	if err := p.fs.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	if err := p.fs.Rename(tmp, p.path); err != nil {
		p.fs.Remove(tmp)
		return fmt.Errorf("replace plot: %w", err)
	}
	return nil
}

// WaveformPlot builds a plot of both channels with the vertical axis fitted
// to the data plus BoundsMargin.
func WaveformPlot(pair waveform.Pair) (*plot.Plot, error) {
	plt := plot.New()
	plt.Title.Text = fmt.Sprintf("Reconstructed waveforms (%.2f Hz, phase %.1f deg)", pair.Sample.FreqHz, pair.Sample.PhaseDeg)
	plt.X.Label.Text = "Time (ms)"
	plt.Y.Label.Text = "Voltage (V)"

	lo, hi := pair.Bounds(BoundsMargin)
	plt.Y.Min, plt.Y.Max = lo, hi
	if n := pair.Len(); n > 0 {
		plt.X.Min, plt.X.Max = pair.TimeMs[0], pair.TimeMs[n-1]
	}

	for _, ch := range []struct {
		name  string
		ys    []float64
		color color.Color
	}{
		{"Channel 1", pair.Ch1, channel1Color},
		{"Channel 2", pair.Ch2, channel2Color},
	} {
		pts := make(plotter.XYs, len(ch.ys))
		for i, y := range ch.ys {
			pts[i] = plotter.XY{X: pair.TimeMs[i], Y: y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = ch.color
		line.Width = vg.Points(1)
		plt.Add(line)
		plt.Legend.Add(ch.name, line)
	}
	plt.Add(plotter.NewGrid())

	plt.Legend.Top = true
	plt.Legend.Left = false
	plt.Legend.XOffs = -10
	plt.Legend.YOffs = -10
	return plt, nil
}
