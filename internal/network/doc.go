// Package network brings the device onto its network.
//
// A Controller starts association once, through a platform Station, and
// when the platform reports success it runs three hooks in fixed order:
// the broker session's first connect, update-gate arming, and an optional
// caller hook. Association loss is not modelled here; the broker session
// notices it through its own transport check.
//
// HostStation is the Station used on Linux hosts. It watches one OS
// interface via gopsutil and reports association when the link is up with
// a global unicast address.
package network
