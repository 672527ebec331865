// Package protocol implements the text protocol spoken over the PARANGOLE
// provisioning characteristics: a credentials write and free-form status
// notifications.
package protocol

import (
	"strings"
)

// Separator joins the SSID and password in a credentials write.
const Separator = ";"

const ipPrefix = "IP:"

// StatusKind classifies a status notification.
type StatusKind int

const (
	// StatusIgnored is any payload the device sends that carries no meaning
	// for provisioning (boot chatter, partial frames).
	StatusIgnored StatusKind = iota
	// StatusDeviceAck means the device saw our subscription.
	StatusDeviceAck
	// StatusNetworkFailed means the device could not join the network.
	StatusNetworkFailed
	// StatusNetworkJoined means the device joined and reports its address.
	StatusNetworkJoined
)

func (k StatusKind) String() string {
	switch k {
	case StatusDeviceAck:
		return "device-ack"
	case StatusNetworkFailed:
		return "network-failed"
	case StatusNetworkJoined:
		return "network-joined"
	default:
		return "ignored"
	}
}

// Status is a decoded notification.
type Status struct {
	Kind StatusKind
	IP   string // set for StatusNetworkJoined
}

// CredentialsPayload encodes the write sent to the credentials
// characteristic: "<ssid>;<password>", or "<ssid>;" for an open network.
// The bytes are UTF-8 with no length prefix or terminator.
func CredentialsPayload(ssid string, password *string) []byte {
	pw := ""
	if password != nil {
		pw = *password
	}
	buf := make([]byte, 0, len(ssid)+len(Separator)+len(pw))
	buf = append(buf, ssid...)
	buf = append(buf, Separator...)
	buf = append(buf, pw...)
	return buf
}

// ParseStatus decodes one notification from the status characteristic.
//
// Checks run in a fixed order and the first match wins:
//
//  1. contains "CONNECTED" (any case): the device acknowledged us
//  2. contains "FAIL" (any case): joining the network failed
//  3. starts with "IP:" (any case): joined, the trimmed remainder is the IP
//
// A payload like "FAIL IP:0.0.0.0" is therefore a failure, never a join.
// Everything else is ignored.
func ParseStatus(payload []byte) Status {
	text := string(payload)
	upper := strings.ToUpper(text)

	switch {
	case strings.Contains(upper, "CONNECTED"):
		return Status{Kind: StatusDeviceAck}
	case strings.Contains(upper, "FAIL"):
		return Status{Kind: StatusNetworkFailed}
	case len(text) >= len(ipPrefix) && strings.EqualFold(text[:len(ipPrefix)], ipPrefix):
		return Status{Kind: StatusNetworkJoined, IP: strings.TrimSpace(text[len(ipPrefix):])}
	default:
		return Status{Kind: StatusIgnored}
	}
}
