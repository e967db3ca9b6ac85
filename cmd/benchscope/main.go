// Command benchscope reads telemetry from a bench instrument over a serial
// link and shows either the reconstructed waveforms or the classified
// capacitor code.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/benchscope/internal/classify"
	"github.com/banshee-data/benchscope/internal/config"
	"github.com/banshee-data/benchscope/internal/monitoring"
	"github.com/banshee-data/benchscope/internal/pipeline"
	"github.com/banshee-data/benchscope/internal/present"
	"github.com/banshee-data/benchscope/internal/serialmux"
	"github.com/banshee-data/benchscope/internal/version"
	"github.com/banshee-data/benchscope/internal/waveform"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON configuration file (built-in defaults if empty)")
	mode        = flag.String("mode", config.ModeWaveform, "Decode mode: waveform or capacitance")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	devMode     = flag.Bool("dev", false, "Replay recorded instrument output instead of opening a serial port")
	listen      = flag.String("listen", "localhost:8080", "Admin HTTP listen address (empty to disable)")
	plotPath    = flag.String("plot", "", "Write the latest waveform to this image file")
	tui         = flag.Bool("tui", false, "Show a terminal status window")
	verbose     = flag.Bool("verbose", false, "Log every pipeline cycle")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// runner is the part of pipeline.Pipeline main needs, whatever its value type.
type runner interface {
	Run(ctx context.Context) error
	AttachAdminRoutes(mux *http.ServeMux)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configFile, explicitFlags())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	monitoring.SetVerbose(cfg.GetVerbose())
	log.Printf("benchscope %s starting in %s mode", version.String(), cfg.GetMode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open := func() (serialmux.SerialMuxInterface, error) { return openSerial(cfg, *devMode, serialmux.RealPortFactory{}) }
	if err := run(ctx, stop, cfg, open, *tui); err != nil {
		stop()
		log.Fatalf("benchscope: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// run opens the serial source, builds the pipeline for the configured mode
// and runs it until ctx is done or the source closes. The source and every
// presenter are closed before run returns, whatever the outcome.
func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, open func() (serialmux.SerialMuxInterface, error), tui bool) error {
	serial, err := open()
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", cfg.GetPort(), err)
	}
	reader := serialmux.NewLineReader(ctx, serial, cfg.GetLineBuffer())
	defer reader.Close()

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	chart := present.NewChart(nil, 0)
	var (
		p runner
		c io.Closer
	)
	switch cfg.GetMode() {
	case config.ModeCapacitance:
		p, c, err = capacitancePipeline(cfg, reader, chart, tui, stop)
	default:
		p, c, err = waveformPipeline(cfg, reader, chart, tui, stop)
	}
	if c != nil {
		closers = append(closers, c)
	}
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	if tui {
		// The status window owns the terminal.
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}

	var wg sync.WaitGroup
	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer func() {
		stopAdmin()
		wg.Wait()
	}()
	if addr := cfg.GetListen(); addr != "" {
		mux := http.NewServeMux()
		serial.AttachAdminRoutes(mux)
		chart.AttachAdminRoutes(mux)
		p.AttachAdminRoutes(mux)

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(adminCtx, addr, mux)
		}()
	}

	if err := p.Run(ctx); err != nil {
		log.Printf("pipeline stopped: %v", err)
	}
	return nil
}

// explicitFlags returns the names of the flags given on the command line.
func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads path (if any) and lets explicitly set flags override the
// file.
func loadConfig(path string, set map[string]bool) (*config.Config, error) {
	cfg := config.EmptyConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, set)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, set map[string]bool) {
	if set["mode"] || cfg.Mode == nil {
		cfg.Mode = mode
	}
	if set["port"] {
		cfg.Port = port
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["plot"] {
		cfg.PlotPath = plotPath
	}
	if set["verbose"] {
		cfg.Verbose = verbose
	}
}

// openSerial returns the replay mux in dev mode, otherwise a mux over the
// port factory opens.
func openSerial(cfg *config.Config, dev bool, factory serialmux.SerialPortFactory) (serialmux.SerialMuxInterface, error) {
	if dev {
		lines, err := loadFixtures(cfg.GetMode())
		if err != nil {
			return nil, err
		}
		return serialmux.NewMockSerialMux(lines, cfg.GetDevInterval()), nil
	}

	opts, err := cfg.GetPortOptions().Normalise()
	if err != nil {
		return nil, err
	}
	m, err := serialmux.OpenSerialMux(factory, cfg.GetPort(), opts)
	if err != nil {
		return nil, err
	}
	log.Printf("opened %s at %s", cfg.GetPort(), opts)
	return m, nil
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Name:        cfg.GetMode(),
		Interval:    cfg.GetRefreshInterval(),
		ReadTimeout: cfg.GetReadTimeout(),
	}
}

func waveformPipeline(cfg *config.Config, src pipeline.Source, chart *present.Chart, tui bool, cancel context.CancelFunc) (runner, io.Closer, error) {
	dec, err := pipeline.NewWaveformDecoder(cfg.GetWindow())
	if err != nil {
		return nil, nil, err
	}

	presenters := present.Multi[waveform.Pair]{chart.Waveform()}
	if path := cfg.GetPlotPath(); path != "" {
		presenters = append(presenters, present.NewPlotFile(path))
	}
	var closer io.Closer
	if tui {
		w, err := present.OpenStatusWindow("benchscope waveform", present.FormatWaveform, cancel)
		if err != nil {
			return nil, nil, err
		}
		presenters, closer = append(presenters, w), w
	} else {
		presenters = append(presenters, present.NewWaveformText(os.Stdout))
	}
	return pipeline.New[waveform.Pair](src, dec, presenters, pipelineOptions(cfg)), closer, nil
}

func capacitancePipeline(cfg *config.Config, src pipeline.Source, chart *present.Chart, tui bool, cancel context.CancelFunc) (runner, io.Closer, error) {
	table, err := cfg.GetTable()
	if err != nil {
		return nil, nil, err
	}
	dec := pipeline.NewCapacitanceDecoder(classify.New(table, cfg.GetTolerance()))

	presenters := present.Multi[pipeline.Classification]{chart.Capacitance()}
	var closer io.Closer
	if tui {
		w, err := present.OpenStatusWindow("benchscope capacitance", present.StatusCapacitance, cancel)
		if err != nil {
			return nil, nil, err
		}
		presenters, closer = append(presenters, w), w
	} else {
		presenters = append(presenters, present.NewCapacitanceText(os.Stdout))
	}
	return pipeline.New[pipeline.Classification](src, dec, presenters, pipelineOptions(cfg)), closer, nil
}

func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("admin server listening on http://%s/debug/", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("admin server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
