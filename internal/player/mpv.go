package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// mpv exit status when no file could be played.
const mpvExitLoadFailed = 2

// MPV implements the Player interface for mpv.
// Position is tracked over the JSON IPC socket at a randomized temp path.
type MPV struct {
	bin string
	log zerolog.Logger
}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath(m.bin)
	return err == nil
}

// Play launches mpv and reports the final playback position.
func (m *MPV) Play(ctx context.Context, req Request) (Result, error) {
	// Randomized socket dir prevents symlink attacks.
	socketDir, err := os.MkdirTemp("", "ani-tui-mpv-*")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	defer os.RemoveAll(socketDir)
	socketPath := filepath.Join(socketDir, "socket")

	tctx, stopTracking := context.WithCancel(ctx)
	defer stopTracking()
	tracked := make(chan progress, 1)

	code, err := run(ctx, m.bin, mpvArgs(req, socketPath), func() {
		go func() { tracked <- trackProgress(tctx, socketPath) }()
	})
	if code == -1 && err != nil {
		return Result{}, err
	}

	// mpv closes the socket on exit; give the tracker a moment to drain it.
	var p progress
	select {
	case p = <-tracked:
	case <-time.After(time.Second):
		stopTracking()
		p = <-tracked
	}

	res := Result{
		Position:   p.position,
		Duration:   p.duration,
		ExitCode:   code,
		LoadFailed: code == mpvExitLoadFailed,
	}
	m.log.Debug().Int("exit", code).Float64("position", res.Position).Bool("load_failed", res.LoadFailed).Msg("mpv exited")
	return res, nil
}

// mpvArgs builds the mpv argument list. Headers are passed one per flag so
// values may contain commas.
func mpvArgs(req Request, socketPath string) []string {
	args := []string{
		req.URL,
		"--force-media-title=" + req.Title,
		"--really-quiet",
	}
	if socketPath != "" {
		args = append(args, "--input-ipc-server="+socketPath)
	}
	if ua := req.Headers["User-Agent"]; ua != "" {
		args = append(args, "--user-agent="+ua)
	}
	if ref := req.Headers["Referer"]; ref != "" {
		args = append(args, "--referrer="+ref)
	}
	for _, h := range sortedHeaders(req.Headers, "User-Agent", "Referer") {
		args = append(args, "--http-header-fields-append="+h)
	}
	if req.StartAt > 0 {
		args = append(args, fmt.Sprintf("--start=+%.0f", req.StartAt))
	}
	if req.Subtitle != "" {
		args = append(args, "--sub-file="+req.Subtitle)
	}
	return args
}

type progress struct {
	position float64
	duration float64
}

// trackProgress follows mpv's time-pos and duration until the socket closes
// or ctx is done. The result is handed back by value, never shared.
func trackProgress(ctx context.Context, socketPath string) progress {
	var p progress

	var (
		conn net.Conn
		d    net.Dialer
	)
	for {
		var err error
		if conn, err = d.DialContext(ctx, "unix", socketPath); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return p
		case <-time.After(100 * time.Millisecond):
		}
	}
	defer conn.Close()

	// Unblock the scanner once the caller stops waiting.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for i, prop := range []string{"time-pos", "duration"} {
		cmd, _ := json.Marshal(map[string]any{
			"command":    []any{"observe_property", i + 1, prop},
			"request_id": 100 + i,
		})
		conn.Write(append(cmd, '\n'))
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var event struct {
			Event string   `json:"event"`
			Name  string   `json:"name"`
			Data  *float64 `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Event != "property-change" || event.Data == nil {
			continue
		}
		switch event.Name {
		case "time-pos":
			if *event.Data > 0 {
				p.position = *event.Data
			}
		case "duration":
			p.duration = *event.Data
		}
	}
	return p
}
