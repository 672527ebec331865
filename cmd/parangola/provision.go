package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/matheoxz/parangolapp/internal/ble"
)

var provisionCmd = &cobra.Command{
	Use:   "provision <address>",
	Short: "Send WiFi credentials to a board",
	Long: `Connect to the board at <address>, send it the WiFi credentials and
wait for it to report whether it joined the network.

Without --password the network is treated as open. Use "parangola wifi list"
to see the networks a board can join.`,
	Example: `  parangola provision AA:BB:CC:DD:EE:FF --ssid Home --password secret
  parangola provision AA:BB:CC:DD:EE:FF --ssid Cafe --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringP("ssid", "s", "", "Network name (required)")
	provisionCmd.Flags().StringP("password", "p", "", "Network password; omit for an open network")
	provisionCmd.Flags().BoolP("watch", "w", false, "Print every phase change")
	_ = provisionCmd.MarkFlagRequired("ssid")
}

func runProvision(cmd *cobra.Command, args []string) error {
	address := strings.TrimSpace(args[0])
	if address == "" {
		return fmt.Errorf("address must not be empty")
	}
	ssid, _ := cmd.Flags().GetString("ssid")
	if ssid == "" {
		return fmt.Errorf("--ssid must not be empty")
	}
	var password *string
	if cmd.Flags().Changed("password") {
		p, _ := cmd.Flags().GetString("password")
		password = &p
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	session := newSession(cfg.SessionOptions(), logger)
	defer session.Close()

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		stop := watchPhases(cmd.ErrOrStderr(), session)
		defer stop()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s...\n", address)
	if err := session.Connect(ctx, ble.Device{Address: address}); err != nil {
		return err
	}

	if password == nil {
		logger.WithField("ssid", ssid).Info("No password given, sending credentials for an open network")
	}
	fmt.Fprintf(out, "Sending credentials for %q...\n", ssid)
	res, err := session.SendCredentials(ctx, ssid, password)
	if res.Outcome != ble.OutcomePending || err == nil {
		fmt.Fprintln(out, formatResult(res))
	}
	if err != nil {
		return err
	}

	session.Disconnect()
	return nil
}

// watchPhases prints every phase change until the returned function is
// called.
func watchPhases(w io.Writer, session *ble.Session) func() {
	states, stop := session.Watch()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := ble.Phase(-1)
		for st := range states {
			if st.Phase == last {
				continue
			}
			last = st.Phase
			fmt.Fprintln(w, formatState(st))
		}
	}()
	return func() {
		stop()
		wg.Wait()
	}
}
