package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheoxz/parangolapp/internal/ble"
	"github.com/matheoxz/parangolapp/internal/config"
)

// newAdapter returns the platform BLE adapter. Tests replace it.
var newAdapter = func() ble.Adapter {
	return ble.NewTinyGoAdapter()
}

func newSession(opts ble.SessionOptions, logger logrus.FieldLogger) *ble.Session {
	return ble.NewSession(newAdapter(), opts, logger)
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for PARANGOLE boards",
	Long: `Scan for Bluetooth Low Energy devices and list the ones whose name
contains the filter (ble.name_filter from the config, PARANGOLE by default).
Each device is listed once, under the name it first advertised.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringP("filter", "f", "", "Name filter, case-insensitive (default from config)")
	scanCmd.Flags().Bool("all", false, "List every device, ignoring the name filter")
	scanCmd.Flags().DurationP("duration", "d", 0, "Scan duration (default from config)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	opts := cfg.SessionOptions()
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		opts.ScanDuration = d
	}
	filter := scanFilter(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	session := newSession(opts, logger)
	defer session.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for %s...\n", opts.ScanDuration)
	devices, err := scanDevices(ctx, session, filter)
	if err != nil {
		return err
	}
	return printDevices(cmd.OutOrStdout(), devices)
}

func scanFilter(cmd *cobra.Command, cfg *config.Config) string {
	if all, _ := cmd.Flags().GetBool("all"); all {
		return ""
	}
	if cmd.Flags().Changed("filter") {
		f, _ := cmd.Flags().GetString("filter")
		return f
	}
	return cfg.BLE.NameFilter
}

// scanDevices runs one scan to completion, or until ctx is done, and
// returns what it found.
func scanDevices(ctx context.Context, session *ble.Session, filter string) ([]ble.Device, error) {
	if err := session.StartScan(filter); err != nil {
		return nil, err
	}

	states, stop := session.Watch()
	defer stop()

	for {
		select {
		case st, ok := <-states:
			if !ok || st.Phase != ble.PhaseScanning {
				return session.Devices(), nil
			}
		case <-ctx.Done():
			session.StopScan()
			return session.Devices(), nil
		case <-time.After(time.Second):
			// Periodic check so a missed transition cannot hang the command
			if session.State().Phase != ble.PhaseScanning {
				return session.Devices(), nil
			}
		}
	}
}
