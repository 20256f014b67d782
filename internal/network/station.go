package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// defaultProbeInterval bounds how often HostStation queries the OS.
const defaultProbeInterval = 500 * time.Millisecond

// probeTimeout bounds a single interface query.
const probeTimeout = 100 * time.Millisecond

// interfaceState is what one probe learns about the watched interface.
type interfaceState struct {
	up           bool
	hardwareAddr string
	addresses    []string
}

// HostStation is a Station backed by an OS network interface.
//
// Association is the link being up with at least one global unicast
// address. The callback fires once per up-edge: a link that drops and
// comes back is reported again.
//
// Joining the wireless network itself (SSID and passphrase) is done by the
// host's network manager; HostStation only observes the result.
type HostStation struct {
	iface string

	probe         func(ctx context.Context, name string) (interfaceState, error)
	now           func() time.Time
	probeInterval time.Duration
	lastProbe     time.Time

	began        bool
	mode         Mode
	ssid         string
	static       *StaticAddress
	linked       bool
	last         interfaceState
	onAssociated func()
}

// NewHostStation creates a HostStation watching the named interface.
func NewHostStation(iface string) *HostStation {
	return &HostStation{
		iface:         iface,
		probe:         probeInterface,
		now:           time.Now,
		probeInterval: defaultProbeInterval,
	}
}

// Configure validates and records the static address bundle.
func (s *HostStation) Configure(addr StaticAddress) error {
	if err := ValidateStaticAddress(addr); err != nil {
		return err
	}
	s.static = &addr
	return nil
}

// SetMode records the operating mode.
func (s *HostStation) SetMode(mode Mode) {
	s.mode = mode
}

// Begin starts watching the interface. The first probe happens on the next
// Poll.
func (s *HostStation) Begin(ssid, _ string) error {
	s.ssid = ssid
	s.began = true
	return nil
}

// SetOnAssociated registers the association callback.
func (s *HostStation) SetOnAssociated(fn func()) {
	s.onAssociated = fn
}

// Poll probes the interface at most once per probe interval and fires the
// association callback on an up-edge.
func (s *HostStation) Poll() {
	if !s.began {
		return
	}

	now := s.now()
	if !s.lastProbe.IsZero() && now.Sub(s.lastProbe) < s.probeInterval {
		return
	}
	s.lastProbe = now

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	state, err := s.probe(ctx, s.iface)
	if err != nil {
		state = interfaceState{}
	}
	s.last = state

	linked := state.up && len(state.addresses) > 0
	if linked && !s.linked {
		s.linked = true
		if s.onAssociated != nil {
			s.onAssociated()
		}
		return
	}
	s.linked = linked
}

// Info describes the watched interface as of the last probe.
func (s *HostStation) Info() LinkInfo {
	return LinkInfo{
		Interface:    s.iface,
		SSID:         s.ssid,
		HardwareAddr: s.last.hardwareAddr,
		Addresses:    slices.Clone(s.last.addresses),
		Up:           s.linked,
		Static:       s.static,
	}
}

// probeInterface reads interface state through gopsutil.
func probeInterface(ctx context.Context, name string) (interfaceState, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return interfaceState{}, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		state := interfaceState{
			up:           slices.Contains(iface.Flags, "up"),
			hardwareAddr: iface.HardwareAddr,
		}
		for _, a := range iface.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			if err != nil {
				continue
			}
			if prefix.Addr().IsGlobalUnicast() {
				state.addresses = append(state.addresses, prefix.Addr().String())
			}
		}
		return state, nil
	}

	return interfaceState{}, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

// ValidateStaticAddress checks that every field of the bundle is a valid
// IPv4 address and that the mask is contiguous.
func ValidateStaticAddress(addr StaticAddress) error {
	fields := []struct {
		name  string
		value string
	}{
		{"address", addr.Address},
		{"gateway", addr.Gateway},
		{"mask", addr.Mask},
		{"dns", addr.DNS},
	}

	for _, f := range fields {
		ip, err := netip.ParseAddr(f.value)
		if err != nil || !ip.Is4() {
			return fmt.Errorf("%w: %s %q", ErrInvalidStaticAddress, f.name, f.value)
		}
	}

	mask := netip.MustParseAddr(addr.Mask).As4()
	if _, bits := net.IPMask(mask[:]).Size(); bits == 0 {
		return fmt.Errorf("%w: mask %q is not contiguous", ErrInvalidStaticAddress, addr.Mask)
	}

	return nil
}
