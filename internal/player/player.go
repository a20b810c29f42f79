// Package player launches external media players.
// All player invocations use exec.CommandContext with explicit argument
// slices; nothing passes through a shell.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/rs/zerolog"

	"ani-tui/internal/media"
)

// Request is what a player needs to start an episode.
type Request struct {
	URL      string
	Headers  map[string]string // sent with every request for the stream
	Title    string
	StartAt  float64 // seconds
	Subtitle string  // subtitle URL or file, empty for none
}

// Result is what the player reported when it exited.
type Result struct {
	Position   float64 // last playback position in seconds, 0 when unknown
	Duration   float64 // media duration in seconds, 0 when unknown
	ExitCode   int
	LoadFailed bool // the player could not open the stream
}

// Finished reports whether playback got close enough to the end to count
// the episode as watched.
func (r Result) Finished() bool {
	return r.Duration > 0 && r.Position >= r.Duration*0.9
}

// Player is the interface for media player implementations.
type Player interface {
	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool

	// Play runs the player until it exits. Only a failure to start the
	// process is an error; it wraps media.ErrPlayerLaunch.
	Play(ctx context.Context, req Request) (Result, error)
}

// Names lists the supported players.
func Names() []string { return []string{"mpv", "vlc", "iina", "celluloid"} }

// New creates a player by name.
func New(name string, log zerolog.Logger) (Player, error) {
	log = log.With().Str("component", "player").Str("player", name).Logger()
	switch name {
	case "mpv", "":
		return &MPV{bin: "mpv", log: log}, nil
	case "vlc":
		return &VLC{bin: "vlc", log: log}, nil
	case "iina", "celluloid":
		return &Generic{name: name, bin: name, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown player %q (valid: mpv, vlc, iina, celluloid)", name)
	}
}

// NewRequest builds a request for a resolved stream.
func NewRequest(src *media.StreamSource, title string, startAt float64, subtitle string) Request {
	return Request{
		URL:      src.URL,
		Headers:  src.Headers,
		Title:    title,
		StartAt:  startAt,
		Subtitle: subtitle,
	}
}

// run starts bin and waits for it on every path. The process is killed
// when ctx is cancelled. A non-zero exit is reported as an exit code.
func run(ctx context.Context, bin string, args []string, started func()) (int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %s: %w", media.ErrPlayerLaunch, bin, err)
	}
	if started != nil {
		started()
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("waiting for %s: %w", bin, err)
	}
	return 0, nil
}

// sortedHeaders returns headers as "Key: Value" lines in key order.
func sortedHeaders(headers map[string]string, skip ...string) []string {
	keys := make([]string, 0, len(headers))
outer:
	for k := range headers {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+headers[k])
	}
	return lines
}
