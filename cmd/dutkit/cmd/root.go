// Package cmd implements the dutkit command line tool: bench-side
// utilities for inspecting serial ports and watching a device console.
// Flash, reset and dump operations are driven programmatically by the
// owning test harness through the dut package; they have no CLI surface
// here.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	portFlag string
)

var rootCmd = &cobra.Command{
	Use:   "dutkit",
	Short: "Bench utilities for serial devices under test",
	Long: `dutkit provides bench-side utilities for devices under test:

  dutkit ports               # list serial ports in resolution order
  dutkit monitor -p PORT     # interactive console monitor

The preferred port can also be set through the DUTPORT environment
variable.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial port (overrides DUTPORT)")
}

// portHint returns the preferred port: the --port flag if given,
// otherwise the DUTPORT environment variable.
func portHint() string {
	if portFlag != "" {
		return portFlag
	}
	return os.Getenv("DUTPORT")
}

// newLogger builds the console logger honoring --verbose.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}
