package media

import (
	"errors"
	"fmt"
)

// Failure kinds shared by providers, resolvers and the orchestrator.
// Wrap them with fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	ErrNetwork      = errors.New("network error")
	ErrParse        = errors.New("unexpected response shape")
	ErrNotFound     = errors.New("not found")
	ErrNoResults    = errors.New("no results found")
	ErrNoEpisodes   = errors.New("no episodes found")
	ErrNoStream     = errors.New("no stream found")
	ErrPlayerLaunch = errors.New("player could not be launched")
)

// Step names the stage of the flow a user-visible failure came from.
type Step string

const (
	StepSearch   Step = "search"
	StepEpisodes Step = "episode listing"
	StepStream   Step = "stream extraction"
	StepPlayback Step = "playback"
)

// StepError attaches the failing step to an error shown to the user.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AtStep wraps err with the step it happened in. A nil err stays nil.
func AtStep(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}
