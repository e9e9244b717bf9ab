package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message while a long operation runs
type Spinner struct {
	writer   io.Writer
	message  string
	interval time.Duration
	noColor  bool

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner creates a spinner; a zero interval means 100ms
func NewSpinner(w io.Writer, message string, interval time.Duration, noColor bool) *Spinner {
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	return &Spinner{writer: w, message: message, interval: interval, noColor: noColor}
}

// Start begins the animation. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.animate(s.done)
}

// Stop ends the animation and clears the line
func (s *Spinner) Stop() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	s.wg.Wait()
	fmt.Fprint(s.writer, "\r\033[K")
}

// Run shows the spinner while fn runs and reports its outcome
func (s *Spinner) Run(fn func() error) error {
	s.Start()
	err := fn()
	s.Stop()

	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		if s.noColor {
			red.DisableColor()
		}
		red.Fprintf(s.writer, "❌ %s failed\n", s.message)
		return err
	}
	fmt.Fprintln(s.writer, Success(s.message, s.noColor))
	return nil
}

func (s *Spinner) animate(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cyan := color.New(color.FgCyan)
	if s.noColor {
		cyan.DisableColor()
	}
	for frame := 0; ; frame = (frame + 1) % len(spinnerFrames) {
		select {
		case <-done:
			return
		case <-ticker.C:
			cyan.Fprintf(s.writer, "\r%s %s", spinnerFrames[frame], s.message)
		}
	}
}
