package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"ani-tui/internal/preview"
)

var flagPreviewDir string

// previewCmd is run by fzf for the focused item; it never fails loudly
// since a missing thumbnail only means an empty pane.
var previewCmd = &cobra.Command{
	Use:                "preview --dir DIR INDEX",
	Short:              "Render a prefetched thumbnail",
	Hidden:             true,
	Args:               cobra.ExactArgs(1),
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("invalid index %q", args[0])
		}
		cols, rows := preview.Dimensions()
		if err := preview.NewRenderer().Render(cmd.Context(), os.Stdout, preview.Path(flagPreviewDir, idx), cols, rows); err != nil {
			fmt.Fprintln(os.Stdout, "no preview")
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVar(&flagPreviewDir, "dir", "", "Thumbnail directory")
	_ = previewCmd.MarkFlagRequired("dir")
}
