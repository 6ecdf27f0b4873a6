package domain

import "time"

// Tier is the connection-timing operating point of the controller.
type Tier uint8

const (
	TierActive Tier = iota
	TierIdle
	TierDormant
)

var tierNames = map[Tier]string{
	TierActive:  "ACTIVE",
	TierIdle:    "IDLE",
	TierDormant: "DORMANT",
}

func (t Tier) String() string {
	if name, exists := tierNames[t]; exists {
		return name
	}
	return "unknown"
}

// SubrateParams is one tier's LE connection subrating parameter set.
// All values follow the HCI encoding: factors are multiples of the
// underlying connection interval, supervision timeout is in 10 ms units.
type SubrateParams struct {
	SubrateMin         uint16 `json:"subrate_min"`
	SubrateMax         uint16 `json:"subrate_max"`
	MaxLatency         uint16 `json:"max_latency"`
	ContinuationNumber uint16 `json:"continuation_number"`
	SupervisionTimeout uint16 `json:"supervision_timeout"`
}

// TierTable maps each tier to its parameter set. The table must pass
// validation before any controller is constructed.
type TierTable struct {
	Active  SubrateParams
	Idle    SubrateParams
	Dormant SubrateParams
}

func (t TierTable) Params(tier Tier) SubrateParams {
	switch tier {
	case TierActive:
		return t.Active
	case TierDormant:
		return t.Dormant
	default:
		return t.Idle
	}
}

// ActivityState is the externally reported user-activity state.
type ActivityState uint8

const (
	ActivityActive ActivityState = iota
	ActivityIdle
	ActivitySleep
	ActivityUnknown
)

var activityNames = map[ActivityState]string{
	ActivityActive: "active",
	ActivityIdle:   "idle",
	ActivitySleep:  "sleep",
}

func (s ActivityState) String() string {
	if name, exists := activityNames[s]; exists {
		return name
	}
	return "unknown"
}

// ParseActivityState maps a reported state name to an ActivityState.
// Unrecognized names map to ActivityUnknown, never to an error.
func ParseActivityState(name string) ActivityState {
	for state, n := range activityNames {
		if n == name {
			return state
		}
	}
	return ActivityUnknown
}

// ActivityMessage is the JSON payload carried on the activity topic.
type ActivityMessage struct {
	State     string `json:"state"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// LinkRole is the local role on a link.
type LinkRole uint8

const (
	RoleCentral LinkRole = iota
	RolePeripheral
)

func (r LinkRole) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

type LinkState uint8

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkDisconnected
)

var linkStateNames = map[LinkState]string{
	LinkConnecting:   "connecting",
	LinkConnected:    "connected",
	LinkDisconnected: "disconnected",
}

func (s LinkState) String() string {
	if name, exists := linkStateNames[s]; exists {
		return name
	}
	return "unknown"
}

// LinkInfo is a point-in-time snapshot of one link.
type LinkInfo struct {
	ID          string         `json:"id"`
	Peer        string         `json:"peer"`
	PeerName    string         `json:"peer_name,omitempty"`
	Addr        string         `json:"addr"`
	Role        string         `json:"role"`
	State       string         `json:"state"`
	ConnectedAt time.Time      `json:"connected_at"`
	Applied     *SubrateParams `json:"applied,omitempty"`
}

// SubrateChanged is a confirmation of a subrate change observed on a link.
// Status follows the HCI error code space; HCIStatusSuccess means applied.
type SubrateChanged struct {
	Peer               string
	Role               LinkRole
	Status             uint8
	Factor             uint16
	ContinuationNumber uint16
}

// PhyUpdated reports a PHY change observed on a link.
type PhyUpdated struct {
	Peer  string
	TxPhy uint8
	RxPhy uint8
}

var phyNames = map[uint8]string{
	Phy1M:    "1M",
	Phy2M:    "2M",
	PhyCoded: "Coded",
}

func PhyName(phy uint8) string {
	if name, exists := phyNames[phy]; exists {
		return name
	}
	return "Unknown"
}

// Alert describes a controller condition pushed to the alerting topic.
type Alert struct {
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
