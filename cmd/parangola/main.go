package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if the version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "parangola",
	Short: "Provision PARANGOLE boards and drive them over OSC",
	Long: `parangola puts a PARANGOLE board on your WiFi and then talks to it.

- Scan for boards over Bluetooth Low Energy
- Send WiFi credentials and report the address the board joined with
- List the 2.4 GHz WPA networks a board can join
- Discover OSC services on the local network and send them messages`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// main prints errors itself
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("parangola %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(wifiCmd)
	rootCmd.AddCommand(oscCmd)
	rootCmd.AddCommand(initConfigCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.config/parangola/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Shorthand for --log-level debug")
}
