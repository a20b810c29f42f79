package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("62")
	red    = lipgloss.Color("9")
	faint  = lipgloss.Color("243")

	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(accent).Padding(0, 1)
	errorTag    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(red).Padding(0, 1)
	errorText   = lipgloss.NewStyle().Foreground(red)
	noticeStyle = lipgloss.NewStyle().Foreground(faint).Italic(true)
)

// Title renders a highlighted banner.
func Title(s string) string { return titleStyle.Render(s) }

// Notice writes a dimmed informational line.
func Notice(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, noticeStyle.Render(fmt.Sprintf(format, args...)))
}

// Error writes "step: message" with the step as a red tag.
func Error(w io.Writer, step, msg string) {
	if step == "" {
		fmt.Fprintln(w, errorText.Render(msg))
		return
	}
	fmt.Fprintln(w, errorTag.Render(step)+" "+errorText.Render(msg))
}
