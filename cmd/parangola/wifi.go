package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matheoxz/parangolapp/internal/wifi"
)

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Inspect the WiFi networks around this machine",
}

var wifiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the networks a board can join",
	Long: `Scan with iwlist and list the 2.4 GHz networks secured with a
pre-shared key, strongest first. Boards cannot join 5 GHz, open-enterprise
or WEP networks. Scanning usually needs root.`,
	Args: cobra.NoArgs,
	RunE: runWiFiList,
}

func init() {
	wifiListCmd.Flags().StringP("iface", "i", "", "Wireless interface (default from config)")
	wifiListCmd.Flags().BoolP("all", "a", false, "List every network, not only candidates")
	wifiCmd.AddCommand(wifiListCmd)
}

func runWiFiList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if iface, _ := cmd.Flags().GetString("iface"); iface != "" {
		cfg.WiFi.Interface = iface
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	networks, err := cfg.WiFiScanner(logger).Scan(ctx)
	if err != nil {
		return err
	}

	if all, _ := cmd.Flags().GetBool("all"); !all {
		total := len(networks)
		networks = wifi.Candidates(networks)
		logger.WithField("total", total).WithField("candidates", len(networks)).Debug("Filtered scan results")
	}
	if err := printNetworks(cmd.OutOrStdout(), networks); err != nil {
		return fmt.Errorf("printing networks: %w", err)
	}
	return nil
}
