package update

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS advertisement constants. The service type is the one firmware
// upload tools browse for.
const (
	ServiceType = "_arduino._tcp"
	Domain      = "local."

	// defaultRetryInterval bounds how often a failed registration is retried.
	defaultRetryInterval = 10 * time.Second
)

// ErrNotConfigured is returned by Begin before Configure.
var ErrNotConfigured = errors.New("update: listener not configured")

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// MDNSListener advertises the update endpoint over mDNS so upload tools
// can find the device. The responder runs on zeroconf's goroutines; Handle
// only retries a registration that failed.
type MDNSListener struct {
	cfg        ListenerConfig
	configured bool
	board      string

	register      registerFunc
	now           func() time.Time
	retryInterval time.Duration
	lastAttempt   time.Time

	server *zeroconf.Server
	active bool
	logger Logger
}

// NewMDNSListener creates a listener advertising the given board name.
func NewMDNSListener(board string) *MDNSListener {
	return &MDNSListener{
		board:         board,
		register:      zeroconf.Register,
		now:           time.Now,
		retryInterval: defaultRetryInterval,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger.
func (l *MDNSListener) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Configure records the endpoint to advertise.
func (l *MDNSListener) Configure(cfg ListenerConfig) {
	l.cfg = cfg
	l.configured = true
}

// Begin registers the mDNS service.
func (l *MDNSListener) Begin() error {
	if !l.configured {
		return ErrNotConfigured
	}
	return l.registerService()
}

// Handle retries a failed registration at most once per retry interval.
func (l *MDNSListener) Handle() {
	if !l.configured || l.active {
		return
	}
	if l.now().Sub(l.lastAttempt) < l.retryInterval {
		return
	}
	if err := l.registerService(); err != nil {
		l.logger.Warn("update advertisement retry failed", "error", err)
	}
}

func (l *MDNSListener) registerService() error {
	l.lastAttempt = l.now()

	server, err := l.register(l.cfg.Hostname, ServiceType, Domain, l.cfg.Port, l.txtRecords(), nil)
	if err != nil {
		return fmt.Errorf("registering %s: %w", ServiceType, err)
	}

	l.server = server
	l.active = true
	l.logger.Info("update endpoint advertised", "instance", l.cfg.Hostname, "port", l.cfg.Port)
	return nil
}

// txtRecords returns the TXT strings upload tools expect.
func (l *MDNSListener) txtRecords() []string {
	auth := "no"
	if l.cfg.PasswordHash != "" {
		auth = "yes"
	}
	return []string{
		"board=" + l.board,
		"tcp_check=no",
		"ssh_upload=no",
		"auth_upload=" + auth,
	}
}

// Active reports whether the advertisement is registered.
func (l *MDNSListener) Active() bool {
	return l.active
}

// Close withdraws the advertisement.
func (l *MDNSListener) Close() error {
	if l.server != nil {
		l.server.Shutdown()
		l.server = nil
	}
	l.active = false
	return nil
}
