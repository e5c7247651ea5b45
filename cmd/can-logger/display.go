package main

import (
	"fmt"
	"io"
	"sync"

	"can-session-logger/internal/models"
	"can-session-logger/internal/session"

	"github.com/charmbracelet/lipgloss"
)

var (
	frameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	remoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
)

// consoleDisplay prints received frames one per line. It is called from
// the listener goroutine.
type consoleDisplay struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleDisplay(out io.Writer) *consoleDisplay {
	return &consoleDisplay{out: out}
}

func (d *consoleDisplay) Show(f models.Frame) {
	style := frameStyle
	switch {
	case f.IsErrorFrame:
		style = errorStyle
	case f.IsRemoteFrame:
		style = remoteStyle
	}
	line := style.Render(session.FormatFrame(f))

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, line)
}

// Status prints a dimmed informational line between frames
func (d *consoleDisplay) Status(format string, args ...any) {
	line := statusStyle.Render(fmt.Sprintf(format, args...))

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, line)
}
