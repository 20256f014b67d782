package node

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nerrad567/iotlink/internal/network"
	"github.com/nerrad567/iotlink/internal/session"
	"github.com/nerrad567/iotlink/internal/update"
)

// Defaults.
const (
	defaultPollInterval = 10 * time.Millisecond
	defaultResetGrace   = 500 * time.Millisecond
)

// Logger is the logging surface used by the Node.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventRecorder receives lifecycle events.
type EventRecorder interface {
	RecordEvent(component, event string, fields map[string]any)
}

// MemoryFunc reports system memory. mem.VirtualMemoryWithContext by default.
type MemoryFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Config holds the fixed node parameters.
type Config struct {
	// Device is the device name reported in status.
	Device string

	// Version is the build version reported in status.
	Version string

	// Credentials are handed to the association controller by Start.
	Credentials network.Credentials

	// UpdatePasswordHash arms the update gate on association.
	UpdatePasswordHash string

	// PollInterval is the dispatcher cadence in Run.
	PollInterval time.Duration

	// ResetGrace is how long Run keeps stepping after Reset.
	ResetGrace time.Duration
}

type command struct {
	fn   func()
	done chan struct{}
}

// Node owns the connectivity subsystems of one device.
//
// Thread Safety:
//   - Step, Start and the admin methods must run on the control goroutine:
//     the goroutine calling Run, or any goroutine before Run starts.
//   - Do and Admin are safe for concurrent use.
type Node struct {
	cfg Config

	network *network.Controller
	session *session.Manager
	gate    *update.Gate

	commands chan command
	stopped  chan struct{}
	running  atomic.Bool

	started      time.Time
	steps        uint64
	resetPending bool
	resetAt      time.Time

	onAssociated func()

	memory MemoryFunc
	logger Logger
	events EventRecorder
}

// New creates a Node and registers the association-complete hooks:
// session first-connect, then update gate arming, then the node's own
// hook. sess and gate may be nil when not configured.
func New(cfg Config, net *network.Controller, sess *session.Manager, gate *update.Gate) *Node {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ResetGrace <= 0 {
		cfg.ResetGrace = defaultResetGrace
	}

	n := &Node{
		cfg:      cfg,
		network:  net,
		session:  sess,
		gate:     gate,
		commands: make(chan command),
		stopped:  make(chan struct{}),
		started:  time.Now(),
		memory:   mem.VirtualMemoryWithContext,
		logger:   noopLogger{},
	}

	if sess != nil {
		net.SetSessionHook(sess.Start)
		sess.SetAssociationCheck(net.Associated)
	}
	if gate != nil {
		net.SetUpdateHook(func() { gate.Arm(cfg.UpdatePasswordHash) })
	}
	net.SetOnAssociated(n.handleAssociated)

	return n
}

// SetLogger sets the logger.
func (n *Node) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	n.logger = logger
}

// SetEventRecorder sets an optional event sink.
func (n *Node) SetEventRecorder(events EventRecorder) {
	n.events = events
}

// SetMemoryFunc replaces the memory source. Used by tests.
func (n *Node) SetMemoryFunc(fn MemoryFunc) {
	n.memory = fn
}

// OnAssociated registers a hook that runs after the session and update
// hooks each time association completes.
func (n *Node) OnAssociated(fn func()) {
	n.onAssociated = fn
}

// Start freezes the subscription set and begins association. It returns
// without waiting for association to complete.
func (n *Node) Start() error {
	if n.session != nil {
		n.session.Freeze()
	}
	return n.network.Begin(n.cfg.Credentials)
}

// Step is one dispatcher invocation: association bookkeeping, then broker
// session work, then update listener work. It never blocks.
func (n *Node) Step() {
	n.steps++

	n.network.Service()
	if n.session != nil {
		n.session.Step()
	}
	if n.gate != nil {
		n.gate.Service()
	}
}

// Run calls Step every poll interval and executes commands submitted with
// Do between steps. It returns nil when ctx is cancelled and
// ErrResetRequested once the grace period after Reset has elapsed. A live
// broker session is closed before returning.
func (n *Node) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(n.stopped)
	defer n.shutdown()

	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	n.logger.Info("poll dispatcher running", "interval", n.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-n.commands:
			cmd.fn()
			close(cmd.done)
		case now := <-ticker.C:
			n.Step()
			if n.resetPending && !now.Before(n.resetAt) {
				return ErrResetRequested
			}
		}
	}
}

// Do runs fn on the control goroutine between two dispatcher steps and
// waits for it to finish.
//
// Returns:
//   - error: ctx.Err() if ctx ends before fn is accepted, ErrNotRunning if
//     Run has exited
func (n *Node) Do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case n.commands <- cmd:
	case <-n.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	<-cmd.done
	return nil
}

func (n *Node) shutdown() {
	if n.session != nil {
		n.session.Close()
	}
	n.logger.Info("poll dispatcher stopped", "steps", n.steps)
}

func (n *Node) handleAssociated() {
	info := n.network.Info()
	n.record("network", "associated", map[string]any{
		"interface": info.Interface,
		"count":     n.network.Associations(),
	})

	if n.onAssociated != nil {
		n.onAssociated()
	}
}

func (n *Node) record(component, event string, fields map[string]any) {
	if n.events != nil {
		n.events.RecordEvent(component, event, fields)
	}
}
