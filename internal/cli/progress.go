// Package cli provides terminal output helpers for the consulta command:
// step progress, a spinner for remote calls and colored status lines.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// StepPrinter prints "[i/n] description" lines as a scrape advances.
type StepPrinter struct {
	mu        sync.Mutex
	writer    io.Writer
	colorize  bool
	startTime time.Time
	last      int
}

// NewStepPrinter creates a printer writing to stdout.
func NewStepPrinter() *StepPrinter {
	return &StepPrinter{
		writer:    os.Stdout,
		colorize:  isTerminal(),
		startTime: time.Now(),
	}
}

// SetWriter sets the output writer and disables color.
func (p *StepPrinter) SetWriter(w io.Writer) *StepPrinter {
	p.writer = w
	p.colorize = false
	return p
}

// Step prints one progress line. Its signature matches scraper.StepObserver.
func (p *StepPrinter) Step(step, total int, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = step
	counter := fmt.Sprintf("[%d/%d]", step, total)
	if p.colorize {
		counter = ColorCyan + counter + ColorReset
	}
	fmt.Fprintf(p.writer, "%s %s...\n", counter, description)
}

// Finish prints the elapsed time since the printer was created.
func (p *StepPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "Concluído em %s\n", formatDuration(time.Since(p.startTime)))
}

// LastStep returns the most recent step printed, 0 if none.
func (p *StepPrinter) LastStep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Spinner represents a loading spinner
type Spinner struct {
	frames   []string
	current  int
	prefix   string
	mu       sync.Mutex
	writer   io.Writer
	active   bool
	colorize bool
	done     chan struct{}
}

// NewSpinner creates a new spinner
func NewSpinner(prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   os.Stdout,
		colorize: isTerminal(),
		done:     make(chan struct{}),
	}
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				s.render()
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", 80)+"\r")
}

func (s *Spinner) render() {
	frame := s.frames[s.current]
	if s.colorize {
		frame = ColorCyan + frame + ColorReset
	}
	fmt.Fprintf(s.writer, "\r%s %s", frame, s.prefix)
}

// Success prints a success message
func Success(w io.Writer, message string) {
	printStatus(w, ColorGreen, "✓", message)
}

// Error prints an error message
func Error(w io.Writer, message string) {
	printStatus(w, ColorRed, "✗", message)
}

// Warning prints a warning message
func Warning(w io.Writer, message string) {
	printStatus(w, ColorYellow, "⚠", message)
}

// Info prints an info message
func Info(w io.Writer, message string) {
	printStatus(w, ColorBlue, "ℹ", message)
}

func printStatus(w io.Writer, color, symbol, message string) {
	if f, ok := w.(*os.File); ok && isTerminalFile(f) {
		fmt.Fprintf(w, "%s%s%s %s\n", color, symbol, ColorReset, message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", symbol, message)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	return isTerminalFile(os.Stdout)
}

func isTerminalFile(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
