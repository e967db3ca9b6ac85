package serialmux

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode. Reads come from a pipe
// fed by a replay goroutine; writes are discarded.
type MockSerialPort struct {
	*io.PipeReader
	w    *io.PipeWriter
	stop chan struct{}
	once sync.Once
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// Close stops the replay and unblocks pending reads.
func (m *MockSerialPort) Close() error {
	m.once.Do(func() {
		close(m.stop)
		m.w.Close()
	})
	return m.PipeReader.Close()
}

// NewMockSerialMux creates a SerialMux backed by a mock port that replays lines
// in a loop, one every interval. Each line is written with the terminator it
// carries, or '\n' if it has none.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	mockPort := &MockSerialPort{PipeReader: r, w: w, stop: make(chan struct{})}
	log.Printf("Replaying %d mock serial lines every %s", len(lines), interval)

	// generate data periodically to simulate serial port input
	go func() {
		defer w.Close()
		if len(lines) == 0 {
			<-mockPort.stop
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-mockPort.stop:
				return
			case <-ticker.C:
			}
			line := lines[i%len(lines)]
			if !strings.HasSuffix(line, "\n") && !strings.HasSuffix(line, "\r") {
				line += "\n"
			}
			if _, err := w.Write([]byte(line)); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(mockPort)
}

// TestableSerialPort implements SerialPorter with scripted reads for
// tests. Reads block until data is added, an error is injected or the port is
// closed, which is how a real port behaves between instrument reports.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf bytes.Buffer

	// ReadError is returned by the next Read call once buffered data is
	// drained.
	ReadError error
	// CloseError is returned by Close if set.
	CloseError error

	Closed     bool
	CloseCalls int
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read returns buffered data, blocking while there is none.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.Closed && t.readBuf.Len() == 0 && t.ReadError == nil {
		t.readCond.Wait()
	}
	if t.readBuf.Len() > 0 {
		return t.readBuf.Read(p)
	}
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	err = t.ReadError
	t.ReadError = nil
	return 0, err
}

// Write discards p.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return len(p), nil
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.CloseCalls++
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.readBuf.Write(data)
	t.readCond.Broadcast()
}

// FailReads makes the next Read return err once the buffer is drained.
func (t *TestableSerialPort) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadError = err
	t.readCond.Broadcast()
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Closed
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{
		Path:    path,
		Options: opts,
	})

	if f.Error != nil {
		return nil, f.Error
	}

	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
