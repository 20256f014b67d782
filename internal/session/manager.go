package session

import (
	"time"

	"github.com/nerrad567/iotlink/internal/infrastructure/mqtt"
)

// scratchSize is the capacity of the numeric formatting buffer. It holds
// the longest base-10 int64.
const scratchSize = 20

// Client is the broker client boundary driven by the Manager.
// *mqtt.Client satisfies it.
type Client interface {
	Begin(host string, port int)
	SetKeepAlive(d time.Duration)
	Connect(clientID, username, password string) bool
	Disconnect() bool
	Subscribe(topic string) bool
	Publish(topic string, payload []byte) bool
	Loop() bool
	Connected() bool
	ReturnCode() mqtt.ReturnCode
	LastError() mqtt.ErrorCode
	OnMessage(handler mqtt.MessageHandler)
}

// Logger is the logging surface used by the Manager.
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

// EventRecorder receives session lifecycle events for telemetry.
type EventRecorder interface {
	RecordEvent(component, event string, fields map[string]any)
}

// Config holds the fixed session parameters.
type Config struct {
	// ClientID identifies the device to the broker.
	ClientID string

	// Port is the broker TCP port.
	Port int

	// KeepAlive is applied to the client before the endpoint is bound.
	KeepAlive time.Duration

	// ReconnectInterval is the minimum time between failed attempts.
	ReconnectInterval time.Duration

	// FloatPrecision is the number of fractional digits for PublishFloat.
	FloatPrecision int

	// BufferSize bounds PublishString payloads.
	BufferSize int
}

// State is the externally visible session state.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnected
	StateForcedDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateForcedDisconnected:
		return "forced_disconnected"
	default:
		return "unknown"
	}
}

// Manager owns the lifecycle of a single broker session: connect,
// subscribe replay, publish, lazy drop detection, throttled reconnect and
// the administrative forced-disconnect override.
//
// Thread Safety:
//   - Not safe for concurrent use. Every method must be called from the
//     single control goroutine that runs the poll dispatcher.
type Manager struct {
	client Client
	cfg    Config
	clock  Clock

	identity   Identity
	configured bool
	bound      bool
	forced     bool
	connected  bool

	throttle Throttle

	topics []string
	frozen bool

	attempts uint64
	failures uint64
	connects uint64

	associated func() bool

	scratch [scratchSize]byte

	logger Logger
	events EventRecorder
}

// New creates a Manager around client. The session stays unconfigured,
// and every operation is a no-op, until Enable is called.
func New(client Client, cfg Config) *Manager {
	return &Manager{
		client:     client,
		cfg:        cfg,
		clock:      systemClock{},
		throttle:   NewThrottle(cfg.ReconnectInterval),
		associated: func() bool { return true },
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetClock replaces the time source. Used by tests.
func (m *Manager) SetClock(clock Clock) {
	m.clock = clock
}

// SetEventRecorder sets an optional telemetry sink.
func (m *Manager) SetEventRecorder(events EventRecorder) {
	m.events = events
}

// SetAssociationCheck sets the function reporting network association.
// Automatic connects and publishes require it to return true.
func (m *Manager) SetAssociationCheck(fn func() bool) {
	if fn == nil {
		fn = func() bool { return true }
	}
	m.associated = fn
}

// Enable configures the session with the effective broker identity.
//
// Returns:
//   - error: ErrInvalidIdentity without a host, ErrAlreadyStarted once the
//     endpoint is bound
func (m *Manager) Enable(identity Identity) error {
	if m.bound {
		return ErrAlreadyStarted
	}
	if !identity.Valid() {
		return ErrInvalidIdentity
	}
	m.identity = identity
	m.configured = true
	return nil
}

// Configured reports whether Enable succeeded.
func (m *Manager) Configured() bool {
	return m.configured
}

// AddTopic appends topic to the subscription set. Duplicates are kept and
// subscribed as many times as they were added.
func (m *Manager) AddTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if m.frozen {
		return ErrSubscriptionsFrozen
	}
	m.topics = append(m.topics, topic)
	return nil
}

// Freeze makes the subscription set immutable. Called before the poll
// loop starts.
func (m *Manager) Freeze() {
	m.frozen = true
}

// Topics returns a copy of the subscription set in insertion order.
func (m *Manager) Topics() []string {
	out := make([]string, len(m.topics))
	copy(out, m.topics)
	return out
}

// SetMessageHandler registers the handler for incoming messages.
// It runs on the control goroutine during Step.
func (m *Manager) SetMessageHandler(handler mqtt.MessageHandler) {
	m.client.OnMessage(handler)
}

// State returns the current session state.
func (m *Manager) State() State {
	switch {
	case m.forced:
		return StateForcedDisconnected
	case m.connected:
		return StateConnected
	default:
		return StateDisconnected
	}
}

// Start is the association-complete hook. The first call binds the broker
// endpoint to the now-valid transport; every call then makes one connect
// attempt when the session is neither forced down nor throttled.
func (m *Manager) Start() {
	if !m.configured {
		return
	}

	if !m.bound {
		m.client.SetKeepAlive(m.cfg.KeepAlive)
		m.client.Begin(m.identity.Host, m.cfg.Port)
		m.bound = true
		m.logger.Info("broker endpoint bound", "server", m.identity.Host, "port", m.cfg.Port)
	}

	if m.forced || m.client.Connected() {
		return
	}
	if m.throttle.Ready(m.clock.Now()) {
		m.connect()
	}
}

// Step performs one bounded unit of session work: one unit of broker I/O
// when connected, otherwise at most one connect attempt when associated
// and the throttle allows. It does nothing while forced down.
func (m *Manager) Step() {
	if !m.configured || !m.bound || m.forced {
		return
	}

	// Loop also classifies a loss on a transport that already reads closed.
	if m.client.Loop() {
		return
	}

	if m.connected {
		m.connected = false
		m.logger.Warn("broker connection lost",
			"server", m.identity.Host,
			"last_error", m.client.LastError().String(),
		)
		m.record("connection_lost", map[string]any{"last_error": int(m.client.LastError())})
	}

	if !m.associated() {
		return
	}
	if m.throttle.Ready(m.clock.Now()) {
		m.connect()
	}
}

// connect makes one attempt and replays the subscription set on success.
func (m *Manager) connect() bool {
	m.attempts++

	if !m.client.Connect(m.cfg.ClientID, m.identity.Username, m.identity.Password) {
		m.failures++
		m.throttle.Fail(m.clock.Now())
		m.logger.Warn("broker connect failed",
			"server", m.identity.Host,
			"return_code", m.client.ReturnCode().String(),
			"last_error", m.client.LastError().String(),
			"retry_in", m.throttle.Interval(),
		)
		m.record("connect_failed", map[string]any{
			"return_code": int(m.client.ReturnCode()),
			"last_error":  int(m.client.LastError()),
		})
		return false
	}

	m.connects++
	m.connected = true
	m.throttle.Reset()
	m.logger.Info("broker connected", "server", m.identity.Host, "client_id", m.cfg.ClientID)
	m.record("connected", nil)

	for _, topic := range m.topics {
		if !m.client.Subscribe(topic) {
			m.logger.Warn("subscribe failed", "topic", topic, "last_error", m.client.LastError().String())
		}
	}

	return true
}

// ForceDisconnect enters the forced-disconnected state, closing any live
// connection. Automatic reconnects stay suppressed until ForceReconnect.
// Calling it again is harmless.
//
// Returns:
//   - bool: true if a live connection was closed by this call
func (m *Manager) ForceDisconnect() bool {
	m.forced = true

	closed := false
	if m.bound {
		closed = m.client.Disconnect()
	}
	m.connected = false

	m.logger.Info("broker session forced down", "closed", closed)
	m.record("force_disconnect", map[string]any{"closed": closed})
	return closed
}

// ForceReconnect clears the forced-disconnected state and makes exactly
// one connect attempt immediately, ignoring the throttle.
//
// Returns:
//   - bool: true if the session is connected when it returns
func (m *Manager) ForceReconnect() bool {
	m.forced = false

	if !m.configured || !m.bound {
		m.logger.Warn("broker reconnect requested before session start")
		return false
	}
	if m.client.Connected() {
		m.connected = true
		return true
	}

	ok := m.connect()
	m.record("force_reconnect", map[string]any{"connected": ok})
	return ok
}

// record forwards an event to the recorder, if any.
func (m *Manager) record(event string, fields map[string]any) {
	if m.events == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["server"] = m.identity.Host
	m.events.RecordEvent("session", event, fields)
}

// Status is a read-only snapshot of the session for diagnostics.
//
// State is the session's view, which notices a dropped transport only on
// the next Step. Connected reads the transport live, so between a drop and
// that Step the two can disagree.
type Status struct {
	Configured  bool
	State       State
	Server      string
	Port        int
	Username    string
	ClientID    string
	Connected   bool
	Forced      bool
	ReturnCode  mqtt.ReturnCode
	LastError   mqtt.ErrorCode
	LastFailure time.Time
	Attempts    uint64
	Failures    uint64
	Connects    uint64
	Topics      []string
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	return Status{
		Configured:  m.configured,
		State:       m.State(),
		Server:      m.identity.Host,
		Port:        m.cfg.Port,
		Username:    m.identity.Username,
		ClientID:    m.cfg.ClientID,
		Connected:   m.bound && m.client.Connected(),
		Forced:      m.forced,
		ReturnCode:  m.client.ReturnCode(),
		LastError:   m.client.LastError(),
		LastFailure: m.throttle.LastFailure(),
		Attempts:    m.attempts,
		Failures:    m.failures,
		Connects:    m.connects,
		Topics:      m.Topics(),
	}
}

// Close disconnects a live session on shutdown without entering the
// forced-disconnected state.
//
// Returns:
//   - bool: true if a live connection was closed
func (m *Manager) Close() bool {
	if !m.bound {
		return false
	}
	closed := m.client.Disconnect()
	m.connected = false
	if closed {
		m.logger.Info("broker session closed", "server", m.identity.Host)
	}
	return closed
}
