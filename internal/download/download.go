// Package download saves streams to disk with ffmpeg. A Sink stands in for
// a player, so the playback flow can download instead of play.
// ffmpeg runs via exec.CommandContext with explicit argument slices, and
// output paths are validated against directory traversal.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"ani-tui/internal/httputil"
	"ani-tui/internal/media"
	"ani-tui/internal/player"
)

// Sink downloads every requested stream into a directory.
type Sink struct {
	dir string
	bin string
	log zerolog.Logger
}

// NewSink creates a sink writing into dir.
func NewSink(dir string, log zerolog.Logger) *Sink {
	return &Sink{dir: dir, bin: "ffmpeg", log: log.With().Str("component", "download").Logger()}
}

func (s *Sink) Name() string { return "download" }

func (s *Sink) Available() bool {
	_, err := exec.LookPath(s.bin)
	return err == nil
}

// Play downloads the stream of req. A failure to start ffmpeg wraps
// media.ErrPlayerLaunch; an ffmpeg failure is reported as LoadFailed so the
// stream can be re-resolved from another provider.
func (s *Sink) Play(ctx context.Context, req player.Request) (player.Result, error) {
	ffmpegPath, err := exec.LookPath(s.bin)
	if err != nil {
		return player.Result{}, fmt.Errorf("%w: ffmpeg not found in PATH: %w", media.ErrPlayerLaunch, err)
	}

	outputPath, err := s.outputPath(req.Title)
	if err != nil {
		return player.Result{}, err
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(req, outputPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Fprintf(os.Stderr, "Downloading to: %s\n", outputPath)
	if err := cmd.Start(); err != nil {
		return player.Result{}, fmt.Errorf("%w: starting ffmpeg: %w", media.ErrPlayerLaunch, err)
	}

	err = cmd.Wait()
	if err == nil {
		s.log.Info().Str("path", outputPath).Msg("download finished")
		return player.Result{}, nil
	}

	// Clean up partial download on failure
	os.Remove(outputPath)
	if ctx.Err() != nil {
		return player.Result{}, ctx.Err()
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	s.log.Warn().Err(err).Str("path", outputPath).Msg("download failed")
	return player.Result{ExitCode: code, LoadFailed: true}, nil
}

func (s *Sink) outputPath(title string) (string, error) {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	filename := httputil.SanitizeFilename(title) + ".mkv"
	path, err := httputil.SafeDownloadPath(absDir, filename)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	return path, nil
}

// ffmpegArgs builds the ffmpeg argument list. Stream headers go through
// -headers, which applies to the input that follows it.
func ffmpegArgs(req player.Request, outputPath string) []string {
	args := []string{"-y", "-loglevel", "error", "-stats"}

	if h := headerBlock(req.Headers); h != "" {
		args = append(args, "-headers", h)
	}
	args = append(args, "-i", req.URL)

	if req.Subtitle != "" {
		args = append(args, "-i", req.Subtitle)
	}

	args = append(args,
		"-c:v", "copy", // no re-encoding
		"-c:a", "copy",
	)

	if req.Subtitle != "" {
		args = append(args,
			"-c:s", "srt",
			"-map", "0:v",
			"-map", "0:a",
			"-map", "1:s",
		)
	}

	return append(args,
		"-metadata", "title="+req.Title,
		outputPath,
	)
}

func headerBlock(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + ": " + headers[k] + "\r\n")
	}
	return b.String()
}
