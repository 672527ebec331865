package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultInterface is the wireless interface scanned when none is given.
const DefaultInterface = "wlan0"

// Scanner runs "iwlist <iface> scan" and parses its output.
type Scanner struct {
	iface  string
	logger logrus.FieldLogger
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewScanner creates a scanner for iface. A nil logger falls back to
// logrus defaults.
func NewScanner(iface string, logger logrus.FieldLogger) *Scanner {
	if iface == "" {
		iface = DefaultInterface
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		iface:  iface,
		logger: logger.WithField("iface", iface),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Scan returns every network the interface can see.
func (s *Scanner) Scan(ctx context.Context) ([]Network, error) {
	out, err := s.run(ctx, "iwlist", s.iface, "scan")
	if err != nil {
		return nil, fmt.Errorf("wifi: scan %s: %w", s.iface, err)
	}
	networks := parseIwlistOutput(string(out))
	s.logger.WithField("networks", len(networks)).Debug("WiFi scan complete")
	return networks, nil
}

// iwlist reports security as free text. It is folded into the bracketed
// capability notation so the same filter applies to every scan source.
type cellSecurity struct {
	encrypted bool
	protocols []string // "WPA", "WPA2"
	suites    []string // "PSK", "EAP" (802.1x), "SAE"
}

func (c cellSecurity) capabilities() string {
	var sb strings.Builder
	switch {
	case len(c.protocols) > 0:
		for _, p := range c.protocols {
			for _, s := range c.suites {
				fmt.Fprintf(&sb, "[%s-%s]", p, s)
			}
			if len(c.suites) == 0 {
				fmt.Fprintf(&sb, "[%s]", p)
			}
		}
	case c.encrypted:
		sb.WriteString("[WEP]")
	}
	sb.WriteString("[ESS]")
	return sb.String()
}

func parseIwlistOutput(output string) []Network {
	var networks []Network
	var current *Network
	var sec cellSecurity
	var protocol string

	flush := func() {
		if current != nil {
			current.Capabilities = sec.capabilities()
			networks = append(networks, *current)
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Cell ") {
			flush()
			current = &Network{}
			sec = cellSecurity{}
			protocol = ""
			if idx := strings.Index(line, "Address: "); idx != -1 {
				current.BSSID = strings.TrimSpace(line[idx+len("Address: "):])
			}
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "ESSID:"):
			current.SSID = strings.Trim(strings.TrimPrefix(line, "ESSID:"), "\"")
		case strings.HasPrefix(line, "Channel:"):
			current.Channel, _ = strconv.Atoi(strings.TrimPrefix(line, "Channel:"))
		case strings.HasPrefix(line, "Frequency:"):
			current.Frequency = parseFrequency(strings.TrimPrefix(line, "Frequency:"))
			if current.Channel == 0 {
				if idx := strings.Index(line, "(Channel "); idx != -1 {
					current.Channel, _ = strconv.Atoi(strings.TrimSuffix(line[idx+len("(Channel "):], ")"))
				}
			}
		case strings.Contains(line, "Signal level="):
			sig := line[strings.Index(line, "Signal level=")+len("Signal level="):]
			if sp := strings.IndexAny(sig, " /"); sp != -1 {
				sig = sig[:sp]
			}
			current.Signal, _ = strconv.Atoi(sig)
		case strings.HasPrefix(line, "Encryption key:"):
			sec.encrypted = strings.HasSuffix(line, "on")
		case strings.HasPrefix(line, "IE: IEEE 802.11i/WPA2"):
			protocol = "WPA2"
			sec.protocols = appendUnique(sec.protocols, protocol)
		case strings.HasPrefix(line, "IE: WPA Version"):
			protocol = "WPA"
			sec.protocols = appendUnique(sec.protocols, protocol)
		case strings.HasPrefix(line, "Authentication Suites") && protocol != "":
			if idx := strings.Index(line, ":"); idx != -1 {
				for _, suite := range strings.Fields(line[idx+1:]) {
					if suite == "802.1x" {
						suite = "EAP"
					}
					sec.suites = appendUnique(sec.suites, suite)
				}
			}
		}
	}
	flush()

	return networks
}

// parseFrequency converts "2.437 GHz (Channel 6)" to 2437.
func parseFrequency(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	if len(fields) > 1 && fields[1] == "MHz" {
		return int(f)
	}
	return int(f*1000 + 0.5)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
