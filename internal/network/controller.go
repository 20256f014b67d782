package network

// Logger is the logging surface used by this package.
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

// Controller owns the transition from unassociated to associated and runs
// the association-complete hooks in a fixed order: session, update gate,
// external.
//
// Re-association after an outage is left to the platform; the controller
// has no retry logic of its own.
//
// Thread Safety:
//   - Not safe for concurrent use; owned by the control goroutine.
type Controller struct {
	station Station
	state   State
	creds   Credentials

	associations uint64

	sessionHook  func()
	updateHook   func()
	externalHook func()

	logger Logger
}

// NewController creates a Controller over station.
func NewController(station Station) *Controller {
	c := &Controller{
		station: station,
		logger:  noopLogger{},
	}
	station.SetOnAssociated(c.handleAssociated)
	return c
}

// SetLogger sets the logger.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetSessionHook registers the broker session's first-connect hook.
func (c *Controller) SetSessionHook(fn func()) { c.sessionHook = fn }

// SetUpdateHook registers the update gate's arming hook.
func (c *Controller) SetUpdateHook(fn func()) { c.updateHook = fn }

// SetOnAssociated registers a caller-supplied hook that runs after the
// session and update hooks.
func (c *Controller) SetOnAssociated(fn func()) { c.externalHook = fn }

// Begin applies the static address bundle, if any, selects station mode
// and starts association. It returns without waiting for the outcome.
//
// A bundle that cannot be applied is logged and association proceeds with
// the transport's default addressing.
//
// Returns:
//   - error: ErrAlreadyStarted on a second call
func (c *Controller) Begin(creds Credentials) error {
	if c.state != StateUnassociated {
		return ErrAlreadyStarted
	}
	c.creds = creds

	if creds.Static != nil {
		if err := c.station.Configure(*creds.Static); err != nil {
			c.logger.Warn("static address not applied, using default addressing", "error", err)
		}
	}

	c.station.SetMode(ModeStation)
	c.state = StateAssociating

	if err := c.station.Begin(creds.SSID, creds.Passphrase); err != nil {
		c.logger.Error("association start failed", "ssid", creds.SSID, "error", err)
		return nil
	}

	c.logger.Info("association started", "ssid", creds.SSID)
	return nil
}

// Service performs the controller's per-step bookkeeping.
func (c *Controller) Service() {
	if c.state == StateUnassociated {
		return
	}
	c.station.Poll()
}

// handleAssociated is the platform completion callback.
func (c *Controller) handleAssociated() {
	c.state = StateAssociated
	c.associations++

	info := c.station.Info()
	c.logger.Info("network associated",
		"interface", info.Interface,
		"addresses", info.Addresses,
		"count", c.associations,
	)

	if c.sessionHook != nil {
		c.sessionHook()
	}
	if c.updateHook != nil {
		c.updateHook()
	}
	if c.externalHook != nil {
		c.externalHook()
	}
}

// State returns the association state.
func (c *Controller) State() State { return c.state }

// Associated reports whether association has completed.
func (c *Controller) Associated() bool { return c.state == StateAssociated }

// Associations returns how many times association has completed.
func (c *Controller) Associations() uint64 { return c.associations }

// Info describes the link for diagnostics.
func (c *Controller) Info() LinkInfo {
	info := c.station.Info()
	if info.SSID == "" {
		info.SSID = c.creds.SSID
	}
	return info
}
