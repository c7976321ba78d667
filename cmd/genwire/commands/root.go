package commands

import (
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "genwire",
	Short: "GraphQL client code generator",
	Long: `genwire - generates Go client code from GraphQL operation documents.

The generate command starts a worker process and drives it over the genwire
protocol on the worker's stdin and stdout. By default the worker is this
executable running the worker command.

Examples:
  # Generate once
  genwire generate -c genwire.yml

  # Regenerate whenever a schema or document changes
  genwire generate --watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// newLogger returns the CLI logger. Logs go to w, never to stdout, which
// carries the protocol in worker mode.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// version reports the module version the binary was built from.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("genwire %s\n", version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
