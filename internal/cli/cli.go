package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pfrederiksen/meteomu/internal/almanac"
	"github.com/pfrederiksen/meteomu/internal/astro"
	"github.com/pfrederiksen/meteomu/internal/logger"
	"github.com/pfrederiksen/meteomu/internal/scraper"
	"github.com/pfrederiksen/meteomu/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// Environment variables providing flag defaults
const (
	EnvMoonriseURL = "METEOMU_MOONRISE_URL"
	EnvTimeout     = "METEOMU_TIMEOUT"
	EnvArchiveDir  = "METEOMU_ARCHIVE_DIR"
)

// Config holds the flag values for one run
type Config struct {
	MoonriseURL string
	Timeout     string
	ArchiveDir  string
	Verbose     bool
}

// configFromEnv returns the defaults used before flags are parsed
func configFromEnv() Config {
	return Config{
		MoonriseURL: envOr(EnvMoonriseURL, scraper.MoonriseURL),
		Timeout:     envOr(EnvTimeout, scraper.Timeout.String()),
		ArchiveDir:  os.Getenv(EnvArchiveDir),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCmd creates the root command wired to the live data sources
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

// newRootCmd creates the root command. A nil sources map builds the live sources
// from the parsed flags.
func newRootCmd(sources map[string]Source) *cobra.Command {
	cfg := configFromEnv()

	cmd := &cobra.Command{
		Use:   "meteomu <command>",
		Short: "Fetch sun and moon times for Mauritius as JSON",
		Long: `A CLI tool that prints astronomical timing data for Mauritius as JSON.

Commands:
  sunrisemu    sunrise and sunset times for this month and next
  moonrisemu   moonrise and moonset times scraped from Meteo Mauritius
  moonphasemu  principal moon phases for this month and next

Errors are written to standard error as {"error": "..."}.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,

		// Flags are parsed in RunE so an unrecognized flag-shaped argument is
		// reported as an unknown command.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tok := unknownFlag(cmd.Flags(), args); tok != "" {
				return &UnknownCommandError{Command: tok}
			}
			if err := cmd.Flags().Parse(args); err != nil {
				return err
			}
			if help, _ := cmd.Flags().GetBool("help"); help {
				return cmd.Help()
			}
			args = cmd.Flags().Args()

			logger.Configure(cfg.Verbose, cmd.ErrOrStderr())
			defer logger.LogMetrics()

			timeout, err := time.ParseDuration(cfg.Timeout)
			if err != nil {
				return fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
			}

			srcs := sources
			if srcs == nil {
				srcs = liveSources(cfg.MoonriseURL, timeout, cmd.ErrOrStderr())
			}

			d := NewDispatcher(srcs, cmd.OutOrStdout())

			if cfg.ArchiveDir != "" {
				store, err := storage.New(cfg.ArchiveDir)
				if err != nil {
					return fmt.Errorf("initializing archive: %w", err)
				}
				d.archive = store
			}

			return d.Run(cmd.Context(), args)
		},
	}

	cmd.Flags().StringVar(&cfg.MoonriseURL, "url", cfg.MoonriseURL, "Moonrise page URL (or env: "+EnvMoonriseURL+")")
	cmd.Flags().StringVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP timeout for the moonrise page (or env: "+EnvTimeout+")")
	cmd.Flags().StringVar(&cfg.ArchiveDir, "archive-dir", cfg.ArchiveDir, "Also save each result under this directory (or env: "+EnvArchiveDir+")")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Write structured debug logs to stderr")
	cmd.Flags().SetInterspersed(false)

	return cmd
}

// unknownFlag returns the first flag-shaped argument before the command that names no
// defined flag, or "" if there is none. Values of known flags are skipped.
func unknownFlag(flags *pflag.FlagSet, args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || len(arg) < 2 || arg[0] != '-' {
			return ""
		}

		var f *pflag.Flag
		hasValue := false
		if strings.HasPrefix(arg, "--") {
			var name string
			name, _, hasValue = strings.Cut(arg[2:], "=")
			f = flags.Lookup(name)
		} else if len(arg) == 2 {
			f = flags.ShorthandLookup(arg[1:])
		}
		if f == nil {
			return arg
		}
		if !hasValue && f.NoOptDefVal == "" {
			i++
		}
	}
	return ""
}

// liveSources wires each command to its data source
func liveSources(moonriseURL string, timeout time.Duration, errOut io.Writer) map[string]Source {
	sc := scraper.New(
		scraper.WithURL(moonriseURL),
		scraper.WithTimeout(timeout),
		scraper.WithErrorOutput(errOut),
	)
	provider := astro.New()
	logger.Debug("Live sources configured", logger.Fields{"moonrise_url": sc.URL(), "timeout": timeout.String()})

	return map[string]Source{
		CommandSunrise: func(ctx context.Context) (interface{}, error) {
			return provider.SunriseMU(ctx)
		},
		CommandMoonrise: func(ctx context.Context) (interface{}, error) {
			return sc.Moonrise(ctx), nil
		},
		CommandMoonPhase: func(ctx context.Context) (interface{}, error) {
			return provider.MoonPhaseMU(ctx)
		},
	}
}

// Execute runs the CLI
func Execute() {
	os.Exit(run(NewRootCmd(), os.Stderr))
}

// run executes cmd and reports any error as an envelope on stderr.
// Returns the process exit code.
func run(cmd *cobra.Command, stderr io.Writer) int {
	if err := cmd.Execute(); err != nil {
		almanac.WriteError(stderr, err.Error())
		return ExitError
	}
	return ExitSuccess
}
