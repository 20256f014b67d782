package node

import (
	"context"
	"runtime"
	"time"

	"github.com/nerrad567/iotlink/internal/network"
	"github.com/nerrad567/iotlink/internal/session"
)

// memoryTimeout bounds the memory counter read.
const memoryTimeout = 100 * time.Millisecond

// Status is the read-only diagnostic snapshot served by the admin API.
type Status struct {
	Device        string         `json:"device"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Platform      PlatformStatus `json:"platform"`
	Memory        MemoryStatus   `json:"memory"`
	Network       NetworkStatus  `json:"network"`
	Session       *SessionStatus `json:"session,omitempty"`
	Update        *UpdateStatus  `json:"update,omitempty"`
	ResetPending  bool           `json:"reset_pending"`
}

// PlatformStatus identifies the hardware and runtime.
type PlatformStatus struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUs      int    `json:"cpus"`
	GoVersion string `json:"go_version"`
}

// MemoryStatus carries the free-memory counters. System fields are zero
// when the platform cannot report them.
type MemoryStatus struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapFreeBytes  uint64  `json:"heap_free_bytes"`
}

// NetworkStatus describes association and the watched link.
type NetworkStatus struct {
	State        string                 `json:"state"`
	Interface    string                 `json:"interface"`
	SSID         string                 `json:"ssid"`
	HardwareAddr string                 `json:"hardware_addr,omitempty"`
	Addresses    []string               `json:"addresses"`
	Static       *network.StaticAddress `json:"static,omitempty"`
	Associations uint64                 `json:"associations"`
}

// Code pairs a diagnostic code with its text.
type Code struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// SessionStatus describes the broker session.
type SessionStatus struct {
	Configured  bool       `json:"configured"`
	State       string     `json:"state"`
	Server      string     `json:"server"`
	Port        int        `json:"port"`
	Username    string     `json:"username"`
	ClientID    string     `json:"client_id"`
	Connected   bool       `json:"connected"`
	Forced      bool       `json:"forced"`
	ReturnCode  Code       `json:"return_code"`
	LastError   Code       `json:"last_error"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	Attempts    uint64     `json:"attempts"`
	Failures    uint64     `json:"failures"`
	Connects    uint64     `json:"connects"`
	Topics      []string   `json:"topics"`
}

// UpdateStatus describes the update gate.
type UpdateStatus struct {
	Armed     bool   `json:"armed"`
	Listening bool   `json:"listening"`
	Hostname  string `json:"hostname"`
	Port      int    `json:"port"`
}

// Status returns the diagnostic snapshot. It has no side effects.
// Must run on the control goroutine.
func (n *Node) Status(ctx context.Context) Status {
	st := Status{
		Device:        n.cfg.Device,
		Version:       n.cfg.Version,
		UptimeSeconds: int64(time.Since(n.started).Seconds()),
		Platform: PlatformStatus{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUs:      runtime.NumCPU(),
			GoVersion: runtime.Version(),
		},
		Memory:       n.memoryStatus(ctx),
		Network:      n.networkStatus(),
		ResetPending: n.resetPending,
	}

	if n.session != nil {
		st.Session = sessionStatus(n.session.Status())
	}
	if n.gate != nil {
		host, port := n.gate.Endpoint()
		st.Update = &UpdateStatus{
			Armed:     n.gate.Armed(),
			Listening: n.gate.Listening(),
			Hostname:  host,
			Port:      port,
		}
	}

	return st
}

func (n *Node) memoryStatus(ctx context.Context) MemoryStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := MemoryStatus{
		HeapAllocBytes: ms.HeapAlloc,
		HeapFreeBytes:  ms.HeapIdle - ms.HeapReleased,
	}

	if n.memory == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, memoryTimeout)
	defer cancel()

	vm, err := n.memory(ctx)
	if err != nil {
		n.logger.Debug("memory counters unavailable", "error", err)
		return out
	}
	out.TotalBytes = vm.Total
	out.AvailableBytes = vm.Available
	out.UsedPercent = vm.UsedPercent
	return out
}

func (n *Node) networkStatus() NetworkStatus {
	info := n.network.Info()
	addrs := info.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	return NetworkStatus{
		State:        n.network.State().String(),
		Interface:    info.Interface,
		SSID:         info.SSID,
		HardwareAddr: info.HardwareAddr,
		Addresses:    addrs,
		Static:       n.cfg.Credentials.Static,
		Associations: n.network.Associations(),
	}
}

func sessionStatus(s session.Status) *SessionStatus {
	out := &SessionStatus{
		Configured: s.Configured,
		State:      s.State.String(),
		Server:     s.Server,
		Port:       s.Port,
		Username:   s.Username,
		ClientID:   s.ClientID,
		Connected:  s.Connected,
		Forced:     s.Forced,
		ReturnCode: Code{Code: int(s.ReturnCode), Text: s.ReturnCode.String()},
		LastError:  Code{Code: int(s.LastError), Text: s.LastError.String()},
		Attempts:   s.Attempts,
		Failures:   s.Failures,
		Connects:   s.Connects,
		Topics:     s.Topics,
	}
	if !s.LastFailure.IsZero() {
		t := s.LastFailure.UTC()
		out.LastFailure = &t
	}
	return out
}
