package network

// State is the association state of the device.
type State int

// Association states. Transitions only Unassociated→Associating (Begin)
// and Associating→Associated (platform notification).
const (
	StateUnassociated State = iota
	StateAssociating
	StateAssociated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnassociated:
		return "unassociated"
	case StateAssociating:
		return "associating"
	case StateAssociated:
		return "associated"
	default:
		return "unknown"
	}
}

// Mode is the transport operating mode.
type Mode int

// Transport modes.
const (
	ModeStation Mode = iota + 1
)

// StaticAddress is the optional static addressing bundle.
type StaticAddress struct {
	Address string
	Gateway string
	Mask    string
	DNS     string
}

// Credentials are supplied by the configuration layer and are read-only
// once association begins.
type Credentials struct {
	SSID       string
	Passphrase string

	// Static is nil for dynamic addressing.
	Static *StaticAddress
}

// LinkInfo describes the watched link for diagnostics.
type LinkInfo struct {
	Interface    string
	SSID         string
	HardwareAddr string
	Addresses    []string
	Up           bool
	Static       *StaticAddress
}

// Station is the platform network transport.
type Station interface {
	// Configure applies a static address bundle.
	Configure(addr StaticAddress) error

	// SetMode selects the operating mode.
	SetMode(mode Mode)

	// Begin starts association asynchronously and returns immediately.
	Begin(ssid, passphrase string) error

	// Poll performs one bounded unit of platform bookkeeping. It may invoke
	// the association callback.
	Poll()

	// SetOnAssociated registers the callback fired once per successful
	// association.
	SetOnAssociated(fn func())

	// Info describes the link.
	Info() LinkInfo
}
