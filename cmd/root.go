// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"ani-tui/internal/config"
	"ani-tui/internal/logging"
	"ani-tui/internal/ui"
)

// Version is set at build time via ldflags.
var Version = "dev"

// useDownloadDir is the value of a bare --download flag.
const useDownloadDir = "<download_dir>"

// Global flags
var (
	flagConfig    string
	flagProviders []string
	flagQuality   string
	flagPlayer    string
	flagMode      string
	flagContinue  bool
	flagDownload  string
	flagLanguage  string
	flagNoSubs    bool
	flagNoPreview bool
	flagRace      bool
	flagJSON      bool
	flagDebug     bool
)

var (
	// cfg holds the loaded configuration (defaults < file < env < flags).
	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ani-tui [query]",
	Short: "Watch anime from the terminal",
	Long: `ani-tui searches several anime sources at once, merges their catalogs,
and plays episodes with mpv, vlc, iina or celluloid. It remembers where you
stopped so you can continue later.`,
	Args:               cobra.ArbitraryArgs,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLogger,
	RunE:               searchRun,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

// Execute runs the root command.
func Execute() {
	cc.Init(&cc.Config{
		RootCmd:       rootCmd,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})

	if err := rootCmd.Execute(); err != nil {
		ui.Error(os.Stderr, "", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/ani-tui/config.toml)")
	pf.BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	f := rootCmd.Flags()
	f.StringSliceVarP(&flagProviders, "provider", "p", nil, "Providers in priority order (repeatable): allanime | hianime | consumet")
	f.StringVarP(&flagQuality, "quality", "q", "", "Video quality: best | worst | 1080 | 720 | 480 | 360")
	f.StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	f.StringVar(&flagMode, "mode", "", "Audio: sub | dub")
	f.BoolVarP(&flagContinue, "continue", "c", false, "Resume the saved episode of the selected show")
	f.StringVarP(&flagDownload, "download", "d", "", "Download instead of playing, into download_dir or --download=`DIR`")
	f.Lookup("download").NoOptDefVal = useDownloadDir
	f.StringVarP(&flagLanguage, "language", "l", "", "Subtitle language (default: english)")
	f.BoolVarP(&flagNoSubs, "no-subs", "n", false, "Disable subtitles")
	f.BoolVar(&flagNoPreview, "no-preview", false, "Disable thumbnails in the finder")
	f.BoolVar(&flagRace, "race", false, "Query every provider at once for streams")
	f.BoolVarP(&flagJSON, "json", "j", false, "Print stream metadata as JSON instead of playing")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file <
// environment < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(afero.NewOsFs(), flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if len(flagProviders) > 0 {
		cfg.Providers = flagProviders
	}
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagQuality != "" {
		cfg.Quality = flagQuality
	}
	if flagMode != "" {
		cfg.Mode = flagMode
	}
	if flagLanguage != "" {
		cfg.SubsLanguage = flagLanguage
	}
	if flagNoSubs {
		cfg.Subtitles = false
	}
	if flagNoPreview {
		cfg.Preview = false
	}
	if flagRace {
		cfg.Strategy = "race"
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}
	cfg.Normalize()

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logging.Config{Level: cfg.Log.Level, Path: cfg.Log.Path}
	if flagDebug {
		logCfg.Console = os.Stderr
	}
	logger = logging.New(logCfg)
	logger.Debug().Str("command", cmd.Name()).Strs("providers", cfg.Providers).Msg("config loaded")
	return nil
}

func closeLogger(*cobra.Command, []string) error {
	if logger != nil {
		return logger.Close()
	}
	return nil
}
