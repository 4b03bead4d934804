package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))

	rootCmd := &cobra.Command{
		Use:   "ripple-bench",
		Short: "Load generator and demo server for ripple signal graphs",
		Long: `ripple-bench drives concurrent writer storms through a diamond-shaped
signal graph and reports throughput, notification counts, and glitch
violations (a torn recombination observed by a listener counts as one).

The serve command runs the same graph behind an HTTP server with
Prometheus metrics, a JSON stats endpoint, and a demand-gated
WebSocket feed of live values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
