package serialmux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ReadStatus tags the outcome of a LineReader.ReadLine call.
type ReadStatus int

const (
	// StatusLine means a line was read.
	StatusLine ReadStatus = iota
	// StatusTimeout means no line arrived before the timeout. It is not an
	// error; the caller simply has nothing to process this cycle.
	StatusTimeout
	// StatusError means the transport failed.
	StatusError
	// StatusClosed means the source is closed and no more lines will come.
	StatusClosed
)

func (s ReadStatus) String() string {
	switch s {
	case StatusLine:
		return "line"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("ReadStatus(%d)", int(s))
	}
}

// Read is the tagged result of a bounded line read.
type Read struct {
	Status ReadStatus
	Line   string
	// Dropped counts stale lines discarded in favour of Line.
	Dropped int
	Err     error
}

// DefaultLineBuffer is the number of unread lines a LineReader holds.
const DefaultLineBuffer = 64

// LineReader turns the push-style SerialMux into a pull-style source with a
// bounded read. It subscribes once and runs the mux monitor in the
// background; ReadLine hands out the freshest queued line.
type LineReader struct {
	mux    SerialMuxInterface
	id     string
	lines  chan string
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	err         error
	errReported bool
	closeOnce   sync.Once
	closeErr    error
}

// NewLineReader subscribes to mux and starts monitoring it. The reader owns
// the mux from then on: Close closes both.
func NewLineReader(ctx context.Context, mux SerialMuxInterface, buffer int) *LineReader {
	if buffer <= 0 {
		buffer = DefaultLineBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	id, lines := mux.SubscribeBuffered(buffer)
	r := &LineReader{
		mux:    mux,
		id:     id,
		lines:  lines,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		err := mux.Monitor(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
		// Nothing will be sent any more; release readers waiting on lines.
		mux.Unsubscribe(id)
	}()
	return r
}

// ReadLine waits at most timeout for a line. Lines that queued up since the
// previous call are skipped so the caller always sees the newest one.
func (r *LineReader) ReadLine(ctx context.Context, timeout time.Duration) Read {
	var line string
	var ok bool

	select {
	case line, ok = <-r.lines:
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case line, ok = <-r.lines:
		case <-timer.C:
			return Read{Status: StatusTimeout}
		case <-ctx.Done():
			return Read{Status: StatusClosed, Err: ctx.Err()}
		}
	}
	if !ok {
		return r.closedRead()
	}

	dropped := 0
	for {
		select {
		case next, more := <-r.lines:
			if !more {
				return Read{Status: StatusLine, Line: line, Dropped: dropped}
			}
			line = next
			dropped++
			continue
		default:
		}
		return Read{Status: StatusLine, Line: line, Dropped: dropped}
	}
}

// closedRead reports a monitor failure once, then StatusClosed.
func (r *LineReader) closedRead() Read {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && !r.errReported {
		r.errReported = true
		return Read{Status: StatusError, Err: r.err}
	}
	return Read{Status: StatusClosed}
}

// Close stops the monitor and closes the underlying mux and port.
func (r *LineReader) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		r.closeErr = r.mux.Close()
		<-r.done
	})
	return r.closeErr
}
