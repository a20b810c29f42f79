package player

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// VLC implements the Player interface for VLC media player.
type VLC struct {
	bin string
	log zerolog.Logger
}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath(v.bin)
	return err == nil
}

// Play launches VLC. VLC has no IPC position tracking like mpv, so the
// reported position is always 0.
func (v *VLC) Play(ctx context.Context, req Request) (Result, error) {
	code, err := run(ctx, v.bin, vlcArgs(req), nil)
	if err != nil {
		return Result{}, err
	}
	v.log.Debug().Int("exit", code).Msg("vlc exited")
	// VLC exits non-zero on user close, so the code says nothing about loading.
	return Result{ExitCode: code}, nil
}

func vlcArgs(req Request) []string {
	args := []string{
		req.URL,
		"--meta-title", req.Title,
		"--play-and-exit",
	}
	if ua := req.Headers["User-Agent"]; ua != "" {
		args = append(args, "--http-user-agent", ua)
	}
	if ref := req.Headers["Referer"]; ref != "" {
		args = append(args, "--http-referrer", ref)
	}
	if req.StartAt > 0 {
		args = append(args, fmt.Sprintf("--start-time=%.0f", req.StartAt))
	}
	if req.Subtitle != "" {
		args = append(args, "--sub-file", req.Subtitle)
	}
	return args
}
