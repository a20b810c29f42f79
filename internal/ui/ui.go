// Package ui provides the fzf launcher used for every selection.
// All items are piped to fzf via stdin as plain text, prefixed with their
// index; remote data never reaches a shell-evaluated string.
package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoSelection is returned when the user aborts a menu.
var ErrNoSelection = errors.New("no selection made")

// fzf exit status when the user pressed Esc or Ctrl-C.
const fzfAborted = 130

// Menu is one selection presented to the user.
type Menu struct {
	Prompt string
	Items  []string
	Header string

	// Preview is an fzf --preview command. fzf substitutes {1} with the
	// index of the focused item; nothing else is interpolated.
	Preview string
}

// FZF runs menus through the fzf binary.
type FZF struct {
	bin string
}

// NewFZF returns a launcher for the fzf binary in PATH.
func NewFZF() *FZF {
	return &FZF{bin: "fzf"}
}

// Available checks if fzf exists in PATH.
func (f *FZF) Available() bool {
	_, err := exec.LookPath(f.bin)
	return err == nil
}

// Select presents menu and returns the index of the chosen item.
func (f *FZF) Select(ctx context.Context, menu Menu) (int, error) {
	if len(menu.Items) == 0 {
		return -1, fmt.Errorf("no items to select from")
	}

	fzfPath, err := exec.LookPath(f.bin)
	if err != nil {
		return -1, fmt.Errorf("fzf not found in PATH: %w", err)
	}

	// Numbered items for reliable index extraction
	var input strings.Builder
	for i, item := range menu.Items {
		fmt.Fprintf(&input, "%d\t%s\n", i, oneLine(item))
	}

	cmd := exec.CommandContext(ctx, fzfPath, selectArgs(menu)...)
	cmd.Stdin = strings.NewReader(input.String())
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && (exitErr.ExitCode() == fzfAborted || exitErr.ExitCode() == 1) {
			return -1, ErrNoSelection
		}
		return -1, fmt.Errorf("fzf failed: %w", err)
	}

	return parseSelection(stdout.String(), len(menu.Items))
}

// Input prompts the user for free-text input via fzf's --print-query.
func (f *FZF) Input(ctx context.Context, prompt string) (string, error) {
	fzfPath, err := exec.LookPath(f.bin)
	if err != nil {
		return "", fmt.Errorf("fzf not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, fzfPath,
		"--prompt", prompt+" > ",
		"--height", "10%",
		"--reverse",
		"--print-query",
		"--no-info",
	)
	cmd.Stdin = strings.NewReader("")
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	// fzf exits 1 when using --print-query with no match, which is expected
	err = cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == fzfAborted {
		return "", ErrNoSelection
	}

	query := strings.TrimSpace(strings.Split(stdout.String(), "\n")[0])
	if query == "" {
		return "", ErrNoSelection
	}
	return query, nil
}

func selectArgs(menu Menu) []string {
	args := []string{
		"--prompt", menu.Prompt + " > ",
		"--height", "60%",
		"--reverse",
		"--with-nth", "2..", // hide the index
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	}
	if menu.Header != "" {
		args = append(args, "--header", menu.Header)
	}
	if menu.Preview != "" {
		args = append(args,
			"--preview", menu.Preview,
			"--preview-window", "right,40%,border-left",
		)
	}
	return args
}

// parseSelection extracts the index from the first tab-separated field.
func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, ErrNoSelection
	}

	field, _, _ := strings.Cut(selected, "\t")
	idx, err := strconv.Atoi(field)
	if err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

// oneLine keeps an item on a single fzf line.
func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s)
}
