package ble

// Phase is the position of a Session in the provisioning flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseConnecting
	PhaseServiceDiscovery
	PhaseAwaitingDeviceAck
	PhaseProvisioning
	PhaseAwaitingNetworkResult
	PhaseConnected
	PhaseFailed
	PhaseDisconnected
)

var phaseNames = [...]string{
	PhaseIdle:                  "idle",
	PhaseScanning:              "scanning",
	PhaseConnecting:            "connecting",
	PhaseServiceDiscovery:      "service-discovery",
	PhaseAwaitingDeviceAck:     "awaiting-device-ack",
	PhaseProvisioning:          "provisioning",
	PhaseAwaitingNetworkResult: "awaiting-network-result",
	PhaseConnected:             "connected",
	PhaseFailed:                "failed",
	PhaseDisconnected:          "disconnected",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Outcome is the result of a credentials exchange.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeNetworkJoined
	OutcomeNetworkFailed
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNetworkJoined:
		return "network-joined"
	case OutcomeNetworkFailed:
		return "network-failed"
	case OutcomeTransportError:
		return "transport-error"
	default:
		return "pending"
	}
}

// Result is what the device reported about joining the network. IP is set
// only for OutcomeNetworkJoined.
type Result struct {
	Outcome Outcome
	IP      string
}

// State is a snapshot of a Session.
type State struct {
	Phase  Phase
	Device Device // device of the current or last connection attempt
	Result Result
	// Acknowledged is set once the device has reported it sees us.
	Acknowledged bool
	// Err is the error that ended the last operation, if any.
	Err error
}
