// Package report renders analysis results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"can-session-logger/internal/analyzer"

	"github.com/charmbracelet/lipgloss"
)

const (
	barFGColor   = "#5fafd7"
	labelFGColor = "#c0c0c0"
	dimFGColor   = "245"

	// DefaultBarWidth is the width of the longest frequency bar
	DefaultBarWidth = 40
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(labelFGColor)).Width(18)
	idStyle    = lipgloss.NewStyle().Bold(true).Width(12)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(barFGColor))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(dimFGColor))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// WriteSummary prints the summary of a log. A nil summary means the log
// held no frames.
func WriteSummary(w io.Writer, path string, s *analyzer.Summary) {
	if s == nil {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("No CAN messages in %s", path)))
		return
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Summary of "+path) + "\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("Total messages", fmt.Sprint(s.TotalMessages))
	row("Unique CAN IDs", fmt.Sprint(s.UniqueCANIDs))
	row("Start time", fmt.Sprintf("%.4f", s.StartTime))
	row("End time", fmt.Sprintf("%.4f", s.EndTime))
	row("Duration", fmt.Sprintf("%.4f s", s.DurationSeconds))
	b.WriteString(labelStyle.Render("Most common IDs"))
	for i, c := range s.MostCommonIDs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", c.ID, c.Count)
	}

	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

// WriteFrequency prints one horizontal bar per id, scaled so the most
// frequent id spans width cells.
func WriteFrequency(w io.Writer, counts []analyzer.IDCount, width int) {
	if len(counts) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No CAN messages to chart"))
		return
	}

	fmt.Fprintln(w, titleStyle.Render("CAN ID frequency"))
	top := counts[0].Count
	for _, c := range counts {
		fmt.Fprintf(w, "%s%s %d\n", idStyle.Render(c.ID), barStyle.Render(Bar(c.Count, top, width)), c.Count)
	}
}

// Bar returns a bar of count/top of width cells. Any non-zero count gets at
// least one cell.
func Bar(count, top, width int) string {
	if count <= 0 || top <= 0 || width <= 0 {
		return ""
	}
	n := count * width / top
	if n == 0 {
		n = 1
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n)
}
