package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/benchscope/internal/classify"
	"github.com/banshee-data/benchscope/internal/frame"
	"github.com/banshee-data/benchscope/internal/monitoring"
	"github.com/banshee-data/benchscope/internal/serialmux"
	"github.com/banshee-data/benchscope/internal/testutil"
	"github.com/banshee-data/benchscope/internal/timeutil"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// fakeSource replays scripted reads and then reports closed.
type fakeSource struct {
	mu       sync.Mutex
	reads    []serialmux.Read
	calls    int
	closed   int
	timeouts []time.Duration
}

func (s *fakeSource) ReadLine(ctx context.Context, timeout time.Duration) serialmux.Read {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, timeout)
	if ctx.Err() != nil {
		return serialmux.Read{Status: serialmux.StatusClosed, Err: ctx.Err()}
	}
	if s.calls >= len(s.reads) {
		s.calls++
		return serialmux.Read{Status: serialmux.StatusClosed}
	}
	r := s.reads[s.calls]
	s.calls++
	return r
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func line(l string) serialmux.Read { return serialmux.Read{Status: serialmux.StatusLine, Line: l} }

func quiet(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestWaveformDecoder(t *testing.T) {
	d, err := NewWaveformDecoder(waveform.Window{Points: 101})
	require.NoError(t, err)

	pair, err := d.Decode("1,1,0,50\r")
	require.NoError(t, err)
	assert.Equal(t, 101, pair.Len())
	assert.InDelta(t, 0, pair.Ch1[0], 1e-12)
	// Three cycles at 50 Hz span 60 ms.
	assert.InDelta(t, 60, pair.TimeMs[100], 1e-9)

	_, err = d.Decode("1,2,3")
	assert.True(t, frame.IsNoSample(err))

	// A positive frequency too small to size the window is rejected, not drawn.
	_, err = d.Decode("1,1,0,1e-320")
	assert.ErrorIs(t, err, waveform.ErrInvalidFrequency)
	assert.False(t, frame.IsNoSample(err))

	_, err = NewWaveformDecoder(waveform.Window{Points: 1})
	assert.Error(t, err)
}

func TestCapacitanceDecoder(t *testing.T) {
	d := NewCapacitanceDecoder(classify.New(classify.DefaultTable(), 0))

	got, err := d.Decode("f=2839.52Hz, Count=1408690, Cap=0.1150uF , resistance=0.0000ohms code=104\r")
	require.NoError(t, err)
	assert.Equal(t, "104", got.Result.Code)
	assert.Equal(t, classify.MethodCorrected, got.Result.Method)
	assert.True(t, got.Reading.HasDeviceCode)
	assert.Equal(t, 104, got.Reading.DeviceCode)

	_, err = d.Decode("NO SIGNAL")
	assert.ErrorIs(t, err, frame.ErrNoSignal)

	empty := NewCapacitanceDecoder(classify.New(nil, 0))
	_, err = empty.Decode("Cap=0.001uF")
	assert.ErrorIs(t, err, classify.ErrEmptyTable)
}

func TestStep_Outcomes(t *testing.T) {
	quiet(t)

	presentErr := errors.New("display gone")
	tests := []struct {
		name      string
		read      serialmux.Read
		presentFn func(waveform.Pair) error
		want      Outcome
	}{
		{"presented", line("1,1,0,50"), nil, OutcomePresented},
		{"timeout", serialmux.Read{Status: serialmux.StatusTimeout}, nil, OutcomeTimeout},
		{"malformed", line("1,1,0"), nil, OutcomeNoSample},
		{"non numeric", line("a,b,c,d"), nil, OutcomeNoSample},
		{"zero frequency", line("1,1,0,0"), nil, OutcomeNoSample},
		{"source error", serialmux.Read{Status: serialmux.StatusError, Err: errors.New("io")}, nil, OutcomeSourceError},
		{"closed", serialmux.Read{Status: serialmux.StatusClosed}, nil, OutcomeClosed},
		{"present error", line("1,1,0,50"), func(waveform.Pair) error { return presentErr }, OutcomePresentError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewWaveformDecoder(waveform.DefaultWindow())
			require.NoError(t, err)
			var presented []waveform.Pair
			present := tt.presentFn
			if present == nil {
				present = func(p waveform.Pair) error {
					presented = append(presented, p)
					return nil
				}
			}
			p := New[waveform.Pair](&fakeSource{reads: []serialmux.Read{tt.read}}, dec, PresenterFunc[waveform.Pair](present), Options{})

			got := p.Step(context.Background())
			assert.Equal(t, tt.want, got, "outcome %s", got)
			if tt.want == OutcomePresented {
				assert.Len(t, presented, 1)
			} else {
				assert.Empty(t, presented)
			}
			assert.EqualValues(t, 1, p.Stats().Cycles)
		})
	}
}

// signalPresenter records presented values and no-sample reports.
type signalPresenter struct {
	presented int
	noSample  []error
}

func (s *signalPresenter) Present(Classification) error { s.presented++; return nil }
func (s *signalPresenter) NoSample(err error) error {
	s.noSample = append(s.noSample, err)
	return errors.New("display gone")
}

func TestStep_ReportsNoSampleToPresenter(t *testing.T) {
	quiet(t)

	src := &fakeSource{reads: []serialmux.Read{
		line("NO SIGNAL"),
		line("f=2839.52Hz, Count=1408690, Cap=0.1014uF , resistance=0.0000ohms code=104"),
		{Status: serialmux.StatusTimeout},
	}}
	pres := &signalPresenter{}
	p := New[Classification](src, NewCapacitanceDecoder(classify.New(classify.DefaultTable(), classify.DefaultTolerance)), pres, Options{})

	// A failing report is logged; the cycle is still a no-sample cycle.
	assert.Equal(t, OutcomeNoSample, p.Step(context.Background()))
	assert.Equal(t, OutcomePresented, p.Step(context.Background()))
	assert.Equal(t, OutcomeTimeout, p.Step(context.Background()))

	require.Len(t, pres.noSample, 1, "timeouts are not reported as no sample")
	assert.ErrorIs(t, pres.noSample[0], frame.ErrNoSignal)
	assert.Equal(t, 1, pres.presented)
	assert.EqualValues(t, 1, p.Stats().NoSample)
}

func TestStep_RejectedIsNotNoSample(t *testing.T) {
	quiet(t)

	rejectErr := errors.New("out of range")
	dec := DecoderFunc[int](func(string) (int, error) { return 0, rejectErr })
	p := New[int](&fakeSource{reads: []serialmux.Read{line("x")}}, dec, PresenterFunc[int](func(int) error { return nil }), Options{})

	assert.Equal(t, OutcomeRejected, p.Step(context.Background()))
	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Rejected)
	assert.Equal(t, "out of range", stats.LastError)
}

func TestStep_PassesReadTimeoutAndCountsDropped(t *testing.T) {
	src := &fakeSource{reads: []serialmux.Read{{Status: serialmux.StatusLine, Line: "1", Dropped: 3}}}
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	dec := DecoderFunc[string](func(l string) (string, error) { return l, nil })
	p := New[string](src, dec, PresenterFunc[string](func(string) error { return nil }),
		Options{ReadTimeout: 123 * time.Millisecond, Clock: clock})

	require.Equal(t, OutcomePresented, p.Step(context.Background()))
	assert.Equal(t, []time.Duration{123 * time.Millisecond}, src.timeouts)

	stats := p.Stats()
	assert.EqualValues(t, 3, stats.DroppedLines)
	assert.EqualValues(t, 1, stats.Presented)
	assert.True(t, stats.LastPresented.Equal(start))
}

// runUntilDone advances the clock until Run returns.
func runUntilDone(t *testing.T, clock *timeutil.MockClock, interval time.Duration, done <-chan error) error {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("Run did not return")
			return nil
		default:
		}
		clock.Advance(interval)
		time.Sleep(time.Millisecond)
	}
}

func TestRun_StopsWhenSourceExhausted(t *testing.T) {
	quiet(t)

	src := &fakeSource{reads: []serialmux.Read{
		line("1,1,0,50"),
		{Status: serialmux.StatusTimeout},
		line("garbage"),
		line("2,2,90,60"),
	}}
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	dec, err := NewWaveformDecoder(waveform.DefaultWindow())
	require.NoError(t, err)

	var peaks []float64
	p := New[waveform.Pair](src, dec, PresenterFunc[waveform.Pair](func(pair waveform.Pair) error {
		_, hi := pair.Bounds(0)
		peaks = append(peaks, hi)
		return nil
	}), Options{Name: "test", Interval: 500 * time.Millisecond, Clock: clock})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.NoError(t, runUntilDone(t, clock, 500*time.Millisecond, done))
	assert.Equal(t, 1, src.closeCount(), "source must be closed exactly once")

	require.Len(t, peaks, 2)
	assert.InDelta(t, math.Sqrt2, peaks[0], 1e-3)
	assert.InDelta(t, 2*math.Sqrt2, peaks[1], 1e-2)

	stats := p.Stats()
	assert.EqualValues(t, 5, stats.Cycles)
	assert.EqualValues(t, 2, stats.Presented)
	assert.EqualValues(t, 1, stats.Timeouts)
	assert.EqualValues(t, 1, stats.NoSample)
}

// endlessSource never runs dry.
type endlessSource struct {
	fakeSource
}

func (s *endlessSource) ReadLine(ctx context.Context, timeout time.Duration) serialmux.Read {
	if ctx.Err() != nil {
		return serialmux.Read{Status: serialmux.StatusClosed, Err: ctx.Err()}
	}
	return serialmux.Read{Status: serialmux.StatusTimeout}
}

func TestRun_CancellationClosesSource(t *testing.T) {
	quiet(t)

	src := &endlessSource{}
	clock := timeutil.NewMockClock(time.Time{})
	p := New[int](src, DecoderFunc[int](func(string) (int, error) { return 0, nil }),
		PresenterFunc[int](func(int) error { return nil }), Options{Interval: time.Second, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Let a few cycles happen, then cancel.
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return p.Stats().Timeouts >= 3
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, src.closeCount())

	// Closing again is a no-op.
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, src.closeCount())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	src := &fakeSource{reads: []serialmux.Read{line("1,1,0,50")}}
	p := New[int](src, DecoderFunc[int](func(string) (int, error) { return 0, nil }),
		PresenterFunc[int](func(int) error { return nil }), Options{Clock: timeutil.NewMockClock(time.Time{})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
	assert.Equal(t, 1, src.closeCount())
	assert.Zero(t, p.Stats().Cycles)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "presented", OutcomePresented.String())
	assert.Equal(t, "no_sample", OutcomeNoSample.String())
	assert.Equal(t, "closed", OutcomeClosed.String())
	assert.Equal(t, "Outcome(99)", Outcome(99).String())
}

func TestAttachAdminRoutes(t *testing.T) {
	src := &fakeSource{reads: []serialmux.Read{line("a")}}
	p := New[string](src, DecoderFunc[string](func(l string) (string, error) { return l, nil }),
		PresenterFunc[string](func(string) error { return nil }), Options{Name: "capacitance"})
	p.Step(context.Background())

	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	w := testutil.Get(mux, "/debug/pipeline")

	require.Equal(t, http.StatusOK, w.Code)
	var got Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got.Presented)
	assert.EqualValues(t, 1, got.Cycles)
}
