// Package update gates the firmware-update listener and advertises the
// update endpoint over mDNS.
package update

// Logger is the logging surface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// ListenerConfig configures the firmware-update listener.
type ListenerConfig struct {
	Port         int
	Hostname     string
	PasswordHash string
}

// Listener is the firmware-update listener driven by the Gate.
type Listener interface {
	Configure(cfg ListenerConfig)
	Begin() error
	Handle()
	Active() bool
}

// Gate arms the update listener once and then services it on every poll
// step for the rest of the process lifetime. There is no disarm.
//
// Thread Safety:
//   - Not safe for concurrent use; owned by the control goroutine.
type Gate struct {
	listener Listener
	port     int
	hostname string
	armed    bool
	logger   Logger
}

// NewGate creates an unarmed Gate. hostname is the advertised identity of
// the device.
func NewGate(listener Listener, port int, hostname string) *Gate {
	return &Gate{
		listener: listener,
		port:     port,
		hostname: hostname,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (g *Gate) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	g.logger = logger
}

// Arm configures and starts the listener and marks the gate armed.
// Arming an armed gate does nothing.
func (g *Gate) Arm(passwordHash string) {
	if g.armed {
		return
	}

	g.listener.Configure(ListenerConfig{
		Port:         g.port,
		Hostname:     g.hostname,
		PasswordHash: passwordHash,
	})
	if err := g.listener.Begin(); err != nil {
		g.logger.Warn("update listener start failed, will retry", "error", err)
	}

	g.armed = true
	g.logger.Info("update listener armed", "hostname", g.hostname, "port", g.port)
}

// Service performs one unit of listener work when armed.
func (g *Gate) Service() {
	if !g.armed {
		return
	}
	g.listener.Handle()
}

// Armed reports whether the gate is armed.
func (g *Gate) Armed() bool {
	return g.armed
}

// Listening reports whether the gate is armed and the listener is up.
func (g *Gate) Listening() bool {
	return g.armed && g.listener.Active()
}

// Endpoint returns the advertised hostname and port.
func (g *Gate) Endpoint() (string, int) {
	return g.hostname, g.port
}
