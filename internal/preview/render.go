package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/term"
)

const (
	fallbackCols = 40
	fallbackRows = 20
)

// Renderer draws images as terminal graphics through chafa.
type Renderer struct {
	bin string
}

// NewRenderer returns a renderer using the chafa binary in PATH.
func NewRenderer() *Renderer {
	return &Renderer{bin: "chafa"}
}

// Available checks if chafa exists in PATH.
func (r *Renderer) Available() bool {
	_, err := exec.LookPath(r.bin)
	return err == nil
}

// Render writes the image at path to w, scaled to cols x rows cells.
func (r *Renderer) Render(ctx context.Context, w io.Writer, path string, cols, rows int) error {
	bin, err := exec.LookPath(r.bin)
	if err != nil {
		return fmt.Errorf("chafa not found in PATH: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("thumbnail not ready: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, renderArgs(path, cols, rows)...)
	cmd.Stdout = w
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("running chafa: %w", err)
	}
	return nil
}

func renderArgs(path string, cols, rows int) []string {
	return []string{
		"--size", fmt.Sprintf("%dx%d", cols, rows),
		"--animate", "off",
		"--", path,
	}
}

// Dimensions returns the preview pane size. fzf exports it to preview
// commands; otherwise the terminal size of stdout is used.
func Dimensions() (cols, rows int) {
	cols, rows = envInt("FZF_PREVIEW_COLUMNS"), envInt("FZF_PREVIEW_LINES")
	if cols > 0 && rows > 0 {
		return cols, rows
	}
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		return w, h
	}
	return fallbackCols, fallbackRows
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}
