package session

import (
	"errors"
	"io"

	"ani-tui/internal/media"
	"ani-tui/internal/ui"
)

// TextReporter prints notices and failures to a terminal stream.
type TextReporter struct {
	W io.Writer
}

func (r TextReporter) Notice(msg string) { ui.Notice(r.W, "%s", msg) }

// Failure prints "step: message". The step prefix is not repeated inside
// the message.
func (r TextReporter) Failure(err error) {
	var stepErr *media.StepError
	if errors.As(err, &stepErr) {
		ui.Error(r.W, string(stepErr.Step), stepErr.Err.Error())
		return
	}
	ui.Error(r.W, "", err.Error())
}
