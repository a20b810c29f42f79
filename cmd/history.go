package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ani-tui/internal/history"
	"ani-tui/internal/media"
	"ani-tui/internal/ui"
)

var flagHistoryFilter string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Continue watching from history",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <show>",
	Short: "Remove a show from history",
	Args:  cobra.ExactArgs(1),
	RunE:  historyRmRun,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		ui.Notice(os.Stderr, "History cleared.")
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&flagHistoryFilter, "filter", "f", "", "Only list shows matching this text")
	historyCmd.AddCommand(historyRmCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func openHistory() (*history.Store, error) {
	path, err := cfg.ExpandHistoryFile()
	if err != nil {
		return nil, fmt.Errorf("resolving history file: %w", err)
	}
	return history.New(afero.NewOsFs(), path), nil
}

func historyRun(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	var entries []media.HistoryEntry
	if flagHistoryFilter != "" {
		entries, err = store.Search(flagHistoryFilter)
	} else {
		entries, err = store.ContinueWatching()
	}
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if len(entries) == 0 {
		ui.Notice(os.Stderr, "No history entries found.")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Show history in fzf
	idx, err := ui.NewFZF().Select(ctx, ui.Menu{
		Prompt: "Continue watching",
		Items:  history.FormatForDisplay(entries),
	})
	if err != nil {
		if errors.Is(err, ui.ErrNoSelection) {
			return nil
		}
		return err
	}

	selected := entries[idx]
	logger.Debug().Str("show", selected.ShowID).Int("episode", selected.EpisodeNumber).Msg("resuming")

	s, cleanup, err := newSession(false)
	if err != nil {
		return err
	}
	defer cleanup()
	return s.Resume(ctx, selected)
}

func historyRmRun(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}

	id := args[0]
	removed, err := store.Remove(id)
	if err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	if !removed {
		// accept a title as well as a canonical id
		matches, err := store.Search(id)
		if err != nil {
			return fmt.Errorf("searching history: %w", err)
		}
		if len(matches) != 1 {
			return fmt.Errorf("%q matches %d shows in history", id, len(matches))
		}
		if _, err := store.Remove(matches[0].ShowID); err != nil {
			return fmt.Errorf("removing %s: %w", matches[0].ShowID, err)
		}
		id = matches[0].Title
	}
	ui.Notice(os.Stderr, "Removed %s from history.", id)
	return nil
}
