// Package wifi lists the networks a PARANGOLE board can be provisioned onto.
// The board only has a 2.4 GHz radio and only speaks WPA personal.
package wifi

import (
	"sort"
	"strings"
)

// Network is one access point seen in a scan.
type Network struct {
	SSID      string
	BSSID     string
	Signal    int // dBm
	Frequency int // MHz
	Channel   int
	// Capabilities uses the Android ScanResult notation, e.g.
	// "[WPA2-PSK-CCMP][ESS]".
	Capabilities string
}

// Secure reports whether joining needs a password.
func (n Network) Secure() bool {
	return strings.Contains(n.Capabilities, "PSK") ||
		strings.Contains(n.Capabilities, "EAP") ||
		strings.Contains(n.Capabilities, "WEP")
}

// IsCandidate reports whether the board can join n: a 2.4 GHz network
// secured with a pre-shared key, excluding enterprise (EAP) and WEP.
func IsCandidate(n Network) bool {
	return n.Frequency >= 2400 && n.Frequency <= 2500 &&
		strings.Contains(n.Capabilities, "PSK") &&
		!strings.Contains(n.Capabilities, "EAP") &&
		!strings.Contains(n.Capabilities, "WEP")
}

// Candidates filters networks with IsCandidate and keeps the strongest
// access point per SSID, strongest first. Hidden networks are dropped.
func Candidates(networks []Network) []Network {
	best := make(map[string]Network)
	for _, n := range networks {
		if n.SSID == "" || !IsCandidate(n) {
			continue
		}
		if cur, ok := best[n.SSID]; !ok || n.Signal > cur.Signal {
			best[n.SSID] = n
		}
	}

	out := make([]Network, 0, len(best))
	for _, n := range best {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Signal != out[j].Signal {
			return out[i].Signal > out[j].Signal
		}
		return out[i].SSID < out[j].SSID
	})
	return out
}
