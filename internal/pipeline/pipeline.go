// Package pipeline runs the read, decode, present cycle that turns serial
// telemetry into something a person can look at.
//
// A Pipeline is single threaded: one cycle per tick, never two at once. The
// only blocking call in a cycle is the bounded read from the Source, and every
// per-cycle failure is logged and counted rather than returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/benchscope/internal/frame"
	"github.com/banshee-data/benchscope/internal/monitoring"
	"github.com/banshee-data/benchscope/internal/serialmux"
	"github.com/banshee-data/benchscope/internal/timeutil"
)

// Source is a pull-style line source with a bounded read.
// serialmux.LineReader implements it.
type Source interface {
	ReadLine(ctx context.Context, timeout time.Duration) serialmux.Read
	Close() error
}

// Presenter shows a decoded value.
type Presenter[T any] interface {
	Present(T) error
}

// NoSampleReporter is implemented by presenters that show when a cycle read a
// line but got no sample from it, for example the meter's "NO SIGNAL" report.
type NoSampleReporter interface {
	NoSample(err error) error
}

// PresenterFunc adapts a plain function to Presenter.
type PresenterFunc[T any] func(T) error

// Present calls f.
func (f PresenterFunc[T]) Present(v T) error { return f(v) }

// Outcome is the result of a single cycle.
type Outcome int

const (
	OutcomePresented Outcome = iota
	OutcomeTimeout
	OutcomeNoSample
	OutcomeRejected
	OutcomeSourceError
	OutcomePresentError
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePresented:
		return "presented"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNoSample:
		return "no_sample"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSourceError:
		return "source_error"
	case OutcomePresentError:
		return "present_error"
	case OutcomeClosed:
		return "closed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Defaults applied by New for zero Options fields.
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultReadTimeout = 400 * time.Millisecond
)

// Options configures a Pipeline.
type Options struct {
	// Name prefixes log lines, e.g. "waveform".
	Name        string
	Interval    time.Duration
	ReadTimeout time.Duration
	Clock       timeutil.Clock
}

// Pipeline connects a Source, a Decoder and a Presenter.
type Pipeline[T any] struct {
	source    Source
	decoder   Decoder[T]
	presenter Presenter[T]
	opts      Options

	// stepMu keeps Step calls from overlapping.
	stepMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closeErr  error
}

// New returns a pipeline reading from source. The pipeline owns source and
// closes it when Run returns.
func New[T any](source Source, decoder Decoder[T], presenter Presenter[T], opts Options) *Pipeline[T] {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Name == "" {
		opts.Name = "pipeline"
	}
	return &Pipeline[T]{
		source:    source,
		decoder:   decoder,
		presenter: presenter,
		opts:      opts,
	}
}

// Step runs one cycle: read a line, decode it, present the result.
func (p *Pipeline[T]) Step(ctx context.Context) Outcome {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	read := p.source.ReadLine(ctx, p.opts.ReadTimeout)
	if read.Dropped > 0 {
		monitoring.Debugf("[%s] skipped %d stale lines", p.opts.Name, read.Dropped)
	}

	switch read.Status {
	case serialmux.StatusLine:
	case serialmux.StatusTimeout:
		monitoring.Debugf("[%s] no line within %s", p.opts.Name, p.opts.ReadTimeout)
		return p.record(OutcomeTimeout, read.Dropped, nil)
	case serialmux.StatusError:
		monitoring.Logf("[%s] source error: %v", p.opts.Name, read.Err)
		return p.record(OutcomeSourceError, read.Dropped, read.Err)
	default:
		return p.record(OutcomeClosed, read.Dropped, nil)
	}

	v, err := p.decoder.Decode(read.Line)
	if err != nil {
		if frame.IsNoSample(err) {
			monitoring.Debugf("[%s] no sample: %v", p.opts.Name, err)
			if r, ok := p.presenter.(NoSampleReporter); ok {
				if perr := r.NoSample(err); perr != nil {
					monitoring.Logf("[%s] present failed: %v", p.opts.Name, perr)
				}
			}
			return p.record(OutcomeNoSample, read.Dropped, err)
		}
		monitoring.Logf("[%s] rejected %q: %v", p.opts.Name, read.Line, err)
		return p.record(OutcomeRejected, read.Dropped, err)
	}

	if err := p.presenter.Present(v); err != nil {
		monitoring.Logf("[%s] present failed: %v", p.opts.Name, err)
		return p.record(OutcomePresentError, read.Dropped, err)
	}
	return p.record(OutcomePresented, read.Dropped, nil)
}

// Run steps the pipeline once immediately and then once per interval until
// ctx is cancelled or the source is exhausted. Both end the run normally and
// return nil. The source is closed before Run returns.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	defer func() {
		if err := p.Close(); err != nil {
			monitoring.Logf("[%s] closing source: %v", p.opts.Name, err)
		}
	}()

	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	monitoring.Logf("[%s] running every %s (read timeout %s)", p.opts.Name, p.opts.Interval, p.opts.ReadTimeout)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if p.Step(ctx) == OutcomeClosed {
			if ctx.Err() == nil {
				monitoring.Logf("[%s] source closed", p.opts.Name)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

// Close closes the source. It is safe to call more than once.
func (p *Pipeline[T]) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.source.Close()
	})
	return p.closeErr
}

func (p *Pipeline[T]) record(o Outcome, dropped int, err error) Outcome {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s := &p.stats
	s.Cycles++
	s.DroppedLines += uint64(dropped)
	switch o {
	case OutcomePresented:
		s.Presented++
		s.LastPresented = p.opts.Clock.Now()
	case OutcomeTimeout:
		s.Timeouts++
	case OutcomeNoSample:
		s.NoSample++
	case OutcomeRejected:
		s.Rejected++
	case OutcomeSourceError:
		s.SourceErrors++
	case OutcomePresentError:
		s.PresentErrors++
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.LastError = err.Error()
	}
	return o
}
