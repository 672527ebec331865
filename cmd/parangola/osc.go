package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"

	"github.com/matheoxz/parangolapp/internal/config"
	"github.com/matheoxz/parangolapp/internal/discovery"
	"github.com/matheoxz/parangolapp/internal/osc"
)

var oscCmd = &cobra.Command{
	Use:   "osc",
	Short: "Find OSC services and send them messages",
	Long: `Commands that take [host:port] fall back to osc.host and osc.port
from the config when it is omitted.`,
}

var oscDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse the local network for OSC services",
	Args:  cobra.NoArgs,
	RunE:  runOSCDiscover,
}

var oscSendCmd = &cobra.Command{
	Use:   "send [host:port] <address> [args...]",
	Short: "Send one OSC message",
	Long: `Send one OSC message as a single UDP datagram.

Arguments are typed with a prefix: i:120 (int32), f:0.5 (float32),
s:on (string). Bare values are int32 if they parse as one, then finite
float32, then string, so C:major and inf are sent as strings.`,
	Example: `  parangola osc send 192.168.1.20:8000 /bpm 120
  parangola osc send /drums s:on`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOSCSend,
}

var oscConsoleCmd = &cobra.Command{
	Use:   "console [host:port]",
	Short: "Send messages interactively, one per line",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOSCConsole,
}

var oscPresetCmd = &cobra.Command{
	Use:   "preset [host:port] <control> [values...]",
	Short: "Send an arpeggiator control",
	Long: `Send one of the controls the arpeggiator understands:

  bpm <60..180>
  drums on|off
  arp-style up|down|"up down"|"down up"|"third octaved"
  note-length 1/32|1/16|1/12|1/8|1/6|1/4|1/2|1|1.5|2
  slider <effect >= 1> <0..127>`,
	Example: `  parangola osc preset 192.168.1.20:8000 bpm 96
  parangola osc preset arp-style "down up"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOSCPreset,
}

var oscListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print the OSC messages received on a UDP address",
	Args:  cobra.NoArgs,
	RunE:  runOSCListen,
}

func init() {
	oscDiscoverCmd.Flags().DurationP("timeout", "t", 0, "How long to browse (default from config)")
	oscDiscoverCmd.Flags().String("iface", "", "Browse on this network interface only")
	oscListenCmd.Flags().String("addr", "", "UDP address to listen on (default from config)")

	oscCmd.AddCommand(oscDiscoverCmd)
	oscCmd.AddCommand(oscSendCmd)
	oscCmd.AddCommand(oscConsoleCmd)
	oscCmd.AddCommand(oscPresetCmd)
	oscCmd.AddCommand(oscListenCmd)
}

// splitTarget takes a leading host:port off args, falling back to the
// config. An argument starting with "/" is an OSC address, not a target.
func splitTarget(cfg *config.Config, args []string) (string, int, []string, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "/") && strings.Contains(args[0], ":") {
		if host, port, err := osc.ParseTarget(args[0]); err == nil {
			return host, port, args[1:], nil
		}
	}
	if cfg.OSC.Host == "" {
		return "", 0, nil, ErrNoTarget
	}
	return cfg.OSC.Host, cfg.OSC.Port, args, nil
}

func runOSCDiscover(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	timeout := cfg.OSC.BrowseTimeout
	if t, _ := cmd.Flags().GetDuration("timeout"); t > 0 {
		timeout = t
	}
	bcfg := cfg.BrowserConfig()
	bcfg.Interface, _ = cmd.Flags().GetString("iface")

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, cancelBrowse := context.WithTimeout(ctx, timeout)
	defer cancelBrowse()

	out := cmd.OutOrStdout()
	browser := discovery.NewBrowser(bcfg, logger)
	fmt.Fprintf(cmd.ErrOrStderr(), "Browsing %s for %s...\n", bcfg.ServiceType, timeout)
	err = browser.Browse(ctx, func(ev discovery.Event) {
		if ev.Kind == discovery.ServiceRemoved {
			logger.WithField("name", ev.Service.Name).Info("Service went away")
		}
	})
	if err != nil {
		return err
	}
	return printServices(out, browser.Services())
}

func runOSCSend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	host, port, rest, err := splitTarget(cfg, args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("missing OSC address")
	}
	msg, err := messageFromArgs(rest)
	if err != nil {
		return err
	}

	if err := osc.NewSender(logger).Send(cmd.Context(), host, port, msg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg, net.JoinHostPort(host, strconv.Itoa(port)))
	return nil
}

// messageFromArgs builds a message from shell arguments, keeping each
// argument whole even when it contains spaces.
func messageFromArgs(args []string) (osc.Message, error) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "/") {
		return osc.Message{}, fmt.Errorf("%w: first argument must be an OSC address", osc.ErrInvalidAddress)
	}
	oscArgs, err := osc.ParseArgs(args[1:])
	if err != nil {
		return osc.Message{}, err
	}
	return osc.NewMessage(args[0], oscArgs...), nil
}

func runOSCPreset(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	host, port, rest, err := splitTarget(cfg, args)
	if err != nil {
		return err
	}
	msg, err := presetMessage(rest)
	if err != nil {
		return err
	}
	if err := osc.NewSender(logger).Send(cmd.Context(), host, port, msg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg, net.JoinHostPort(host, strconv.Itoa(port)))
	return nil
}

// presetMessage maps "<control> values..." onto the controller vocabulary.
func presetMessage(args []string) (osc.Message, error) {
	if len(args) == 0 {
		return osc.Message{}, fmt.Errorf("missing control (bpm, drums, arp-style, note-length, slider)")
	}
	control, values := args[0], args[1:]

	want := func(n int) error {
		if len(values) != n {
			return fmt.Errorf("%s takes %d value(s), got %d", control, n, len(values))
		}
		return nil
	}

	switch control {
	case "bpm":
		if err := want(1); err != nil {
			return osc.Message{}, err
		}
		bpm, err := strconv.Atoi(values[0])
		if err != nil {
			return osc.Message{}, fmt.Errorf("bpm %q is not a number", values[0])
		}
		return osc.BPM(bpm)
	case "drums":
		if err := want(1); err != nil {
			return osc.Message{}, err
		}
		switch strings.ToLower(values[0]) {
		case "on":
			return osc.Drums(true), nil
		case "off":
			return osc.Drums(false), nil
		}
		return osc.Message{}, fmt.Errorf("drums takes on or off, got %q", values[0])
	case "arp-style":
		// Styles contain spaces; accept them unquoted too
		if len(values) == 0 {
			return osc.Message{}, want(1)
		}
		return osc.ArpStyle(strings.Join(values, " "))
	case "note-length":
		if err := want(1); err != nil {
			return osc.Message{}, err
		}
		return osc.NoteLength(values[0])
	case "slider":
		if err := want(2); err != nil {
			return osc.Message{}, err
		}
		effect, err := strconv.Atoi(values[0])
		if err != nil {
			return osc.Message{}, fmt.Errorf("effect %q is not a number", values[0])
		}
		value, err := strconv.Atoi(values[1])
		if err != nil {
			return osc.Message{}, fmt.Errorf("slider value %q is not a number", values[1])
		}
		return osc.Slider(effect, value)
	default:
		return osc.Message{}, fmt.Errorf("unknown control %q", control)
	}
}

func runOSCConsole(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	host, port, _, err := splitTarget(cfg, args)
	if err != nil {
		return err
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "osc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	logger.SetOutput(rl.Stderr())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sender := osc.NewSender(logger)
	out := rl.Stdout()
	fmt.Fprintf(out, "Sending to %s. Type \"/address args...\", \"help\" or \"exit\".\n", target)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if !consoleLine(ctx, out, sender, host, port, line) {
			return nil
		}
	}
}

// consoleLine handles one console line and reports whether to keep going.
func consoleLine(ctx context.Context, out io.Writer, sender *osc.Sender, host string, port int, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case line == "exit" || line == "quit":
		return false
	case line == "help":
		fmt.Fprintln(out, `  /address [args...]   send a message; args are i:1, f:0.5, s:text or bare values
  preset <control> ... send a controller message (bpm, drums, arp-style, note-length, slider)
  exit                 leave the console`)
		return true
	}

	var msg osc.Message
	var err error
	if fields := strings.Fields(line); fields[0] == "preset" {
		msg, err = presetMessage(fields[1:])
	} else {
		msg, err = osc.ParseLine(line)
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, osc.DefaultWriteTimeout)
	defer cancel()
	if err := sender.Send(sendCtx, host, port, msg); err != nil {
		fmt.Fprintf(out, "Send failed: %v\n", err)
		return true
	}
	fmt.Fprintf(out, "sent %s\n", msg)
	return true
}

func runOSCListen(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	addr := cfg.OSC.ListenAddr
	if a, _ := cmd.Flags().GetString("addr"); a != "" {
		addr = a
	}

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	out := cmd.OutOrStdout()
	dispatcher := goosc.NewStandardDispatcher()
	if err := dispatcher.AddMsgHandler("*", func(msg *goosc.Message) {
		fmt.Fprintf(out, "%s %s %v\n", time.Now().Format("15:04:05.000"), msg.Address, msg.Arguments)
	}); err != nil {
		return err
	}
	server := &goosc.Server{Dispatcher: dispatcher}

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening for OSC messages on %s (UDP)...\n", pc.LocalAddr())
	logger.WithField("addr", pc.LocalAddr().String()).Debug("OSC listener started")
	if err := server.Serve(pc); err != nil && ctx.Err() == nil {
		return fmt.Errorf("osc server: %w", err)
	}
	return ctx.Err()
}
