package player

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Generic implements the Player interface for mpv front-ends (iina,
// celluloid) that forward mpv options.
type Generic struct {
	name string
	bin  string
	log  zerolog.Logger
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Available() bool {
	_, err := exec.LookPath(g.bin)
	return err == nil
}

// Play launches the front-end. Position tracking is not supported.
func (g *Generic) Play(ctx context.Context, req Request) (Result, error) {
	code, err := run(ctx, g.bin, genericArgs(g.name, req), nil)
	if err != nil {
		return Result{}, err
	}
	g.log.Debug().Int("exit", code).Msg("player exited")
	return Result{ExitCode: code}, nil
}

// genericArgs maps the mpv options of a request onto the front-end's syntax:
// iina takes --mpv-<option>, celluloid a single --mpv-options string.
func genericArgs(name string, req Request) []string {
	opts := []string{"force-media-title=" + req.Title}
	if ua := req.Headers["User-Agent"]; ua != "" {
		opts = append(opts, "user-agent="+ua)
	}
	if ref := req.Headers["Referer"]; ref != "" {
		opts = append(opts, "referrer="+ref)
	}
	if req.StartAt > 0 {
		opts = append(opts, fmt.Sprintf("start=+%.0f", req.StartAt))
	}
	if req.Subtitle != "" {
		opts = append(opts, "sub-file="+req.Subtitle)
	}

	switch name {
	case "iina":
		args := []string{"--no-stdin", req.URL}
		for _, o := range opts {
			args = append(args, "--mpv-"+o)
		}
		return args
	default:
		flags := make([]string, len(opts))
		for i, o := range opts {
			flags[i] = "--" + o
		}
		return []string{"--new-window", "--mpv-options=" + strings.Join(flags, " "), req.URL}
	}
}
