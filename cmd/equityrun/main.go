package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "EquityRun"
	version = "v1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "equityrun",
		Short:   "A-share multi-horizon factor scanner",
		Version: version,
		Long: appName + ` scores the A-share universe across short, mid and long
holding horizons, maintains a realtime quote cache behind a tiered
provider failover chain, and emits at-most-once buy/sell signals for
watchlisted symbols.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newDeepDiveCmd())
	rootCmd.AddCommand(newMonitorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger configures the global logger: pretty console output on a TTY,
// JSON lines otherwise.
func setupLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty || term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
