package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var defaultFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message while an operation of unknown length runs
type Spinner struct {
	writer   io.Writer
	interval time.Duration
	noColor  bool

	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped chan struct{}
}

// SpinnerOptions configures spinner behavior
type SpinnerOptions struct {
	Message  string
	NoColor  bool
	Interval time.Duration // Default: 100ms
}

// NewSpinner creates a new spinner
func NewSpinner(w io.Writer, opts SpinnerOptions) *Spinner {
	interval := opts.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	return &Spinner{
		writer:   w,
		message:  opts.Message,
		interval: interval,
		noColor:  opts.NoColor,
	}
}

// Start begins the animation. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.animate(s.done, s.stopped)
}

// Stop ends the animation and clears the line. It is safe to call on a
// stopped or never started spinner.
func (s *Spinner) Stop() {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.done, s.stopped = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
	fmt.Fprint(s.writer, "\r\033[K")
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	s.Stop()
	s.finish(color.New(color.FgGreen, color.Bold), "✓", message)
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(message string) {
	s.Stop()
	s.finish(color.New(color.FgRed, color.Bold), "❌", message)
}

func (s *Spinner) finish(c *color.Color, symbol, message string) {
	if s.noColor {
		c.DisableColor()
	}
	c.Fprintf(s.writer, "%s %s\n", symbol, message)
}

// UpdateMessage changes the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) animate(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cyan := color.New(color.FgCyan)
	if s.noColor {
		cyan.DisableColor()
	}

	for frame := 0; ; frame = (frame + 1) % len(defaultFrames) {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			cyan.Fprintf(s.writer, "\r%s %s", defaultFrames[frame], msg)
		}
	}
}

// ProgressBar shows how many of a known number of steps are done
type ProgressBar struct {
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// ProgressBarOptions configures progress bar behavior
type ProgressBarOptions struct {
	Total   int
	Width   int // Default: 40
	Message string
	NoColor bool
}

// NewProgressBar creates a new progress bar
func NewProgressBar(w io.Writer, opts ProgressBarOptions) *ProgressBar {
	width := opts.Width
	if width == 0 {
		width = 40
	}
	return &ProgressBar{
		writer:  w,
		total:   opts.Total,
		width:   width,
		message: opts.Message,
		noColor: opts.NoColor,
	}
}

// Add advances the bar by n steps
func (p *ProgressBar) Add(n int) {
	p.Set(p.current + n)
}

// Set moves the bar to step n, capped at the total
func (p *ProgressBar) Set(n int) {
	p.current = min(n, p.total)
	p.render()
}

// Finish fills the bar and ends the line
func (p *ProgressBar) Finish() {
	p.Set(p.total)
	fmt.Fprintln(p.writer)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		return
	}

	percent := float64(p.current) / float64(p.total)
	filled := int(float64(p.width) * percent)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filled))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")

	message := ""
	if p.message != "" {
		message = " " + p.message
	}
	fmt.Fprintf(p.writer, "\r%s %3d%%%s", bar.String(), int(percent*100), message)
}

// WithSpinner runs fn behind a spinner and reports its outcome
func WithSpinner(w io.Writer, message string, noColor bool, fn func() error) error {
	spinner := NewSpinner(w, SpinnerOptions{Message: message, NoColor: noColor})
	spinner.Start()

	if err := fn(); err != nil {
		spinner.Error(message + " failed")
		return err
	}
	spinner.Success(message)
	return nil
}

// WithProgress runs fn with a progress bar of total steps
func WithProgress(w io.Writer, message string, total int, noColor bool, fn func(*ProgressBar) error) error {
	bar := NewProgressBar(w, ProgressBarOptions{Total: total, Message: message, NoColor: noColor})

	if err := fn(bar); err != nil {
		fmt.Fprintln(w)
		return err
	}
	bar.Finish()
	WriteSuccess(w, message, noColor)
	return nil
}
