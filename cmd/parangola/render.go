package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/matheoxz/parangolapp/internal/ble"
	"github.com/matheoxz/parangolapp/internal/discovery"
	"github.com/matheoxz/parangolapp/internal/wifi"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	busyColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func phaseColor(p ble.Phase) *color.Color {
	switch p {
	case ble.PhaseConnected:
		return okColor
	case ble.PhaseFailed:
		return failColor
	case ble.PhaseIdle, ble.PhaseDisconnected:
		return dimColor
	default:
		return busyColor
	}
}

// formatState renders one state change as a single line.
func formatState(st ble.State) string {
	line := phaseColor(st.Phase).Sprint(st.Phase.String())
	if st.Device.Address != "" {
		line += " " + deviceLabel(st.Device)
	}
	switch st.Result.Outcome {
	case ble.OutcomeNetworkJoined:
		line += " " + okColor.Sprintf("joined %s", st.Result.IP)
	case ble.OutcomeNetworkFailed, ble.OutcomeTransportError:
		line += " " + failColor.Sprint(st.Result.Outcome.String())
	}
	if st.Err != nil {
		line += " " + failColor.Sprint(st.Err.Error())
	}
	return line
}

// formatResult renders the outcome of a credentials exchange.
func formatResult(res ble.Result) string {
	switch res.Outcome {
	case ble.OutcomeNetworkJoined:
		return okColor.Sprintf("Board joined the network with IP %s", res.IP)
	case ble.OutcomeNetworkFailed:
		return failColor.Sprint("Board could not join the network")
	case ble.OutcomeTransportError:
		return failColor.Sprint("Link lost before the board answered")
	default:
		return busyColor.Sprint("No answer from the board yet")
	}
}

func deviceLabel(d ble.Device) string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

func printDevices(w io.Writer, devices []ble.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, d.Address, d.RSSI)
	}
	return tw.Flush()
}

func printNetworks(w io.Writer, networks []wifi.Network) error {
	if len(networks) == 0 {
		fmt.Fprintln(w, "No networks found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SSID\tSIGNAL\tFREQ\tCHANNEL\tSECURITY")
	for _, n := range networks {
		fmt.Fprintf(tw, "%s\t%d dBm\t%d MHz\t%d\t%s\n", n.SSID, n.Signal, n.Frequency, n.Channel, n.Capabilities)
	}
	return tw.Flush()
}

func printServices(w io.Writer, services []discovery.Service) error {
	if len(services) == 0 {
		fmt.Fprintln(w, "No OSC services found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHOST\tTARGET")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Host, s.Target())
	}
	return tw.Flush()
}
