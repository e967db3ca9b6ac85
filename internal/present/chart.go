package present

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/benchscope/internal/frame"
	"github.com/banshee-data/benchscope/internal/httputil"
	"github.com/banshee-data/benchscope/internal/pipeline"
	"github.com/banshee-data/benchscope/internal/timeutil"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// DefaultHistory is the number of classifications a Chart keeps.
const DefaultHistory = 120

// ErrNoData is returned when a chart is rendered before anything was
// presented to it.
var ErrNoData = errors.New("nothing presented yet")

type classified struct {
	at time.Time
	pipeline.Classification
}

// Chart keeps the latest waveform pair and a short classification history and
// renders them as go-echarts HTML pages.
type Chart struct {
	clock   timeutil.Clock
	history int

	mu      sync.Mutex
	pair     waveform.Pair
	hasPair  bool
	results  []classified
	noSignal bool
}

// capacitanceChart is the presenter returned by Chart.Capacitance.
type capacitanceChart struct{ c *Chart }

func (p capacitanceChart) Present(r pipeline.Classification) error {
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSignal = false
	c.results = append(c.results, classified{at: c.clock.Now(), Classification: r})
	if over := len(c.results) - c.history; over > 0 {
		c.results = append(c.results[:0:0], c.results[over:]...)
	}
	return nil
}

// NoSample flags the chart title while the meter reports no signal.
func (p capacitanceChart) NoSample(err error) error {
	if errors.Is(err, frame.ErrNoSignal) {
		p.c.mu.Lock()
		p.c.noSignal = true
		p.c.mu.Unlock()
	}
	return nil
}

// NewChart returns a chart keeping up to history classifications.
func NewChart(clock timeutil.Clock, history int) *Chart {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if history <= 0 {
		history = DefaultHistory
	}
	return &Chart{clock: clock, history: history}
}

// Waveform returns a presenter that records waveform pairs.
func (c *Chart) Waveform() pipeline.Presenter[waveform.Pair] {
	return pipeline.PresenterFunc[waveform.Pair](func(p waveform.Pair) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.pair, c.hasPair = p, true
		return nil
	})
}

// Capacitance returns a presenter that records classifications. It also
// implements pipeline.NoSampleReporter.
func (c *Chart) Capacitance() pipeline.Presenter[pipeline.Classification] {
	return capacitanceChart{c: c}
}

// RenderWaveform writes the latest waveform pair as an HTML line chart.
func (c *Chart) RenderWaveform(w io.Writer) error {
	c.mu.Lock()
	pair, ok := c.pair, c.hasPair
	c.mu.Unlock()
	if !ok {
		return ErrNoData
	}

	x := make([]string, pair.Len())
	ch1 := make([]opts.LineData, pair.Len())
	ch2 := make([]opts.LineData, pair.Len())
	for i := range x {
		x[i] = fmt.Sprintf("%.3f", pair.TimeMs[i])
		ch1[i] = opts.LineData{Value: pair.Ch1[i]}
		ch2[i] = opts.LineData{Value: pair.Ch2[i]}
	}
	lo, hi := pair.Bounds(BoundsMargin)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "benchscope waveform", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Reconstructed waveforms", Subtitle: FormatWaveform(pair)[0]}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: lo, Max: hi, Name: "Voltage (V)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("Channel 1", ch1).
		AddSeries("Channel 2", ch2)

	return renderPage(w, line)
}

// RenderCapacitance writes the classification history as an HTML line chart
// of the measured value in nanofarads.
func (c *Chart) RenderCapacitance(w io.Writer) error {
	c.mu.Lock()
	results := append([]classified(nil), c.results...)
	noSignal := c.noSignal
	c.mu.Unlock()
	if len(results) == 0 {
		return ErrNoData
	}

	x := make([]string, len(results))
	measured := make([]opts.LineData, len(results))
	for i, r := range results {
		x[i] = r.at.Format("15:04:05")
		measured[i] = opts.LineData{Value: r.Result.Measured.NF(), Name: r.Result.Code}
	}
	last := results[len(results)-1]
	title := "Code " + last.Result.Code
	if noSignal {
		title = NoSignalText + ", last code " + last.Result.Code
	}
	subtitle := strings.Join(append(FormatCapacitance(last.Classification)[:1], FirmwareDetails(last.Reading)...), "  ")

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "benchscope capacitance", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Measured (nF)", NameLocation: "middle", NameGap: 50}),
	)
	line.SetXAxis(x).AddSeries("measured", measured)

	return renderPage(w, line)
}

func renderPage(w io.Writer, c components.Charter) error {
	page := components.NewPage()
	page.AddCharts(c)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// AttachAdminRoutes serves the charts at /debug/waveform and
// /debug/capacitance.
func (c *Chart) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("waveform", "latest reconstructed waveforms (chart)", c.handler(c.RenderWaveform))
	debug.Handle("capacitance", "recent capacitance classifications (chart)", c.handler(c.RenderCapacitance))
}

func (c *Chart) handler(render func(io.Writer) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			if errors.Is(err, ErrNoData) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
