package present

import (
	"context"
	"errors"
	"sync"

	termbox "github.com/nsf/termbox-go"

	"github.com/banshee-data/benchscope/internal/frame"
)

const statusFooter = "Esc or q to quit"

// screen is the part of termbox the status window draws with.
type screen interface {
	Init() error
	Close()
	HideCursor()
	Clear(fg, bg termbox.Attribute) error
	Size() (int, int)
	SetCell(x, y int, ch rune, fg, bg termbox.Attribute)
	Flush() error
	PollEvent() termbox.Event
	Interrupt()
}

type termboxScreen struct{}

func (termboxScreen) Init() error                            { return termbox.Init() }
func (termboxScreen) Close()                                 { termbox.Close() }
func (termboxScreen) HideCursor()                            { termbox.HideCursor() }
func (termboxScreen) Clear(fg, bg termbox.Attribute) error   { return termbox.Clear(fg, bg) }
func (termboxScreen) Size() (int, int)                       { return termbox.Size() }
func (termboxScreen) Flush() error                           { return termbox.Flush() }
func (termboxScreen) PollEvent() termbox.Event               { return termbox.PollEvent() }
func (termboxScreen) Interrupt()                             { termbox.Interrupt() }
func (termboxScreen) SetCell(x, y int, ch rune, fg, bg termbox.Attribute) {
	termbox.SetCell(x, y, ch, fg, bg)
}

// StatusWindow draws the latest result in the terminal. Esc, q and Ctrl-C
// cancel the run.
type StatusWindow[T any] struct {
	scr    screen
	title  string
	format func(T) []string

	mu    sync.Mutex
	lines []string

	done      chan struct{}
	closeOnce sync.Once
}

// OpenStatusWindow takes over the terminal. cancel is called when the user
// asks to quit. Close must be called to restore the terminal.
func OpenStatusWindow[T any](title string, format func(T) []string, cancel context.CancelFunc) (*StatusWindow[T], error) {
	return openStatusWindow(termboxScreen{}, title, format, cancel)
}

func openStatusWindow[T any](scr screen, title string, format func(T) []string, cancel context.CancelFunc) (*StatusWindow[T], error) {
	if err := scr.Init(); err != nil {
		return nil, err
	}
	scr.HideCursor()

	s := &StatusWindow[T]{
		scr:    scr,
		title:  title,
		format: format,
		lines:  []string{"waiting for data..."},
		done:   make(chan struct{}),
	}
	go s.pollEvents(cancel)
	if err := s.draw(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *StatusWindow[T]) pollEvents(cancel context.CancelFunc) {
	defer close(s.done)
	for {
		switch ev := s.scr.PollEvent(); ev.Type {
		case termbox.EventKey:
			if ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q' {
				cancel()
			}
		case termbox.EventResize:
			s.draw()
		case termbox.EventInterrupt, termbox.EventError:
			return
		}
	}
}

// Present implements pipeline.Presenter.
func (s *StatusWindow[T]) Present(v T) error {
	return s.show(s.format(v))
}

// NoSample replaces the last reading with NoSignalText when the meter reports
// no signal. Other unusable lines leave the last reading on screen.
func (s *StatusWindow[T]) NoSample(err error) error {
	if !errors.Is(err, frame.ErrNoSignal) {
		return nil
	}
	return s.show([]string{NoSignalText})
}

// Lines returns the lines currently on screen.
func (s *StatusWindow[T]) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *StatusWindow[T]) show(lines []string) error {
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
	return s.draw()
}

func (s *StatusWindow[T]) draw() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scr.Clear(termbox.ColorWhite, termbox.ColorBlack); err != nil {
		return err
	}
	_, height := s.scr.Size()
	s.putString(1, 0, s.title, termbox.ColorWhite|termbox.AttrBold, termbox.ColorBlack)
	for i, line := range s.lines {
		s.putString(1, 2+i, line, termbox.ColorWhite, termbox.ColorBlack)
	}
	s.putString(1, height-1, statusFooter, termbox.ColorWhite, termbox.ColorBlack)
	return s.scr.Flush()
}

// Close stops the event loop and restores the terminal.
func (s *StatusWindow[T]) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
		default:
			s.scr.Interrupt()
			<-s.done
		}
		s.scr.Close()
	})
	return nil
}

func (s *StatusWindow[T]) putString(x, y int, str string, fg, bg termbox.Attribute) {
	for i, r := range []rune(str) {
		s.scr.SetCell(x+i, y, r, fg, bg)
	}
}
