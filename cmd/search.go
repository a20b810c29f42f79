package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ani-tui/internal/catalog"
	"ani-tui/internal/download"
	"ani-tui/internal/history"
	"ani-tui/internal/httputil"
	"ani-tui/internal/player"
	"ani-tui/internal/preview"
	"ani-tui/internal/provider"
	"ani-tui/internal/session"
	"ani-tui/internal/stream"
	"ani-tui/internal/ui"
)

// searchRun is the default command: ani-tui <query>
func searchRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := newSession(flagContinue)
	if err != nil {
		return err
	}
	defer cleanup()

	return s.Run(ctx, strings.Join(args, " "))
}

// newSession wires a session from cfg. The returned cleanup stops
// background work and removes temporary files.
func newSession(resume bool) (*session.Session, func(), error) {
	fzf := ui.NewFZF()
	if !fzf.Available() {
		return nil, nil, fmt.Errorf("fzf not found in PATH")
	}

	client := httputil.NewClient()
	providers, err := provider.NewAll(cfg.Providers, provider.Options{
		Client:         client,
		Logger:         logger.Logger,
		Quality:        cfg.Quality,
		Mode:           cfg.Mode,
		BaseURLs:       map[string]string{"consumet": cfg.ConsumetURL},
		ConsumetSource: cfg.ConsumetSource,
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := newPlayer()
	if err != nil {
		return nil, nil, err
	}

	opts := session.Options{
		Catalog: catalog.NewResolver(providers, cfg.ProviderTimeout, logger.Logger),
		Streams: stream.NewEngine(providers, stream.Options{
			TTL:      cfg.CacheTTL,
			Timeout:  cfg.ProviderTimeout,
			Strategy: stream.Strategy(cfg.Strategy),
			Logger:   logger.Logger,
		}),
		Player:       out,
		Selector:     fzf,
		Reporter:     session.TextReporter{W: os.Stderr},
		Spin:         ui.Spin,
		SubsLanguage: cfg.SubsLanguage,
		NoSubs:       !cfg.Subtitles,
		Continue:     resume,
		Logger:       logger.Logger,
	}

	if cfg.History {
		path, err := cfg.ExpandHistoryFile()
		if err != nil {
			return nil, nil, err
		}
		opts.History = history.New(afero.NewOsFs(), path)
	}

	cleanup := func() {}
	if cfg.Preview && preview.NewRenderer().Available() {
		dir, err := os.MkdirTemp("", "ani-tui-thumbs-")
		if err != nil {
			logger.Warn().Err(err).Msg("thumbnails disabled")
		} else {
			pre := preview.NewPrefetcher(afero.NewOsFs(), dir, client, logger.Logger)
			opts.Prefetcher = pre
			opts.PreviewCommand = previewCommand
			cleanup = func() {
				pre.Stop()
				_ = os.RemoveAll(dir)
			}
		}
	}

	return session.New(opts), cleanup, nil
}

// newPlayer returns what plays a resolved stream: the configured player, a
// download sink or the JSON printer.
func newPlayer() (player.Player, error) {
	switch {
	case flagJSON:
		return player.NewJSONPrinter(os.Stdout), nil
	case flagDownload != "":
		dir := flagDownload
		if dir == useDownloadDir {
			dir = cfg.DownloadDir
		}
		dir, err := expandDir(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving download dir: %w", err)
		}
		return download.NewSink(dir, logger.Logger), nil
	}

	p, err := player.New(cfg.Player, logger.Logger)
	if err != nil {
		return nil, err
	}
	if !p.Available() {
		return nil, fmt.Errorf("player %q not found in PATH", cfg.Player)
	}
	return p, nil
}

func expandDir(dir string) (string, error) {
	c := *cfg
	c.DownloadDir = dir
	return c.ExpandDownloadDir()
}

// previewCommand is the fzf --preview command rendering the thumbnail of
// the focused item. Only our own executable path and temp dir are
// interpolated, both single-quoted.
func previewCommand(dir string) string {
	exe, err := os.Executable()
	if err != nil {
		exe = "ani-tui"
	}
	return fmt.Sprintf("%s preview --dir %s {1}", shellQuote(exe), shellQuote(dir))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
