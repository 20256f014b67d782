package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of the supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ExitCodeRestart is the exit status the agent uses to ask for a restart
// after an administrative reset.
const ExitCodeRestart = 3

// ErrMaxRestarts is returned by Run when the child keeps failing.
var ErrMaxRestarts = errors.New("process: max restart attempts reached")

// Config holds configuration for a supervised child process.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// Stdout and Stderr receive the child's output. Default: the
	// supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// RestartExitCode is the exit status that requests an immediate
	// restart. Default ExitCodeRestart.
	RestartExitCode int

	// RestartOnFailure enables restart after any other non-zero exit.
	RestartOnFailure bool

	// RestartDelay is the time to wait before restarting after a failure.
	RestartDelay time.Duration

	// MaxRestartAttempts limits consecutive failure restarts. 0 means
	// unlimited. Requested restarts do not count.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStart is called with the pid each time the child starts.
	OnStart func(pid int)

	// OnRestart is called before each restart.
	OnRestart func(attempt int, requested bool)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartExitCode:    ExitCodeRestart,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartAttempts: 10,
		GracefulTimeout:    10 * time.Second,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one child process and restarts it on request or failure.
//
// Thread Safety:
//   - Run must be called once. The accessors are safe for concurrent use.
type Supervisor struct {
	config Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	starts    int
	restarts  int
	resets    int
	lastError error
	startTime time.Time
}

// NewSupervisor creates a supervisor with the given configuration.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartExitCode == 0 {
		cfg.RestartExitCode = ExitCodeRestart
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	return &Supervisor{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Run starts the child and supervises it until it exits cleanly, ctx is
// cancelled, or restarts are exhausted. On cancellation the child's
// process group receives SIGTERM, then SIGKILL after GracefulTimeout.
//
// Returns:
//   - error: nil on clean exit or cancellation; the start error, the
//     child's exit error when restarts are disabled, or ErrMaxRestarts
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0

	for {
		cmd, err := s.startProcess()
		if err != nil {
			s.setFailed(err)
			return err
		}

		exitErr := s.wait(ctx, cmd)

		if ctx.Err() != nil {
			s.setStatus(StatusStopped)
			s.logger.Info("process stopped", "name", s.config.Name)
			return nil
		}

		code := exitCode(exitErr)
		switch {
		case exitErr == nil:
			s.setStatus(StatusStopped)
			s.logger.Info("process exited cleanly", "name", s.config.Name)
			return nil

		case code == s.config.RestartExitCode:
			failures = 0
			s.mu.Lock()
			s.resets++
			s.restarts++
			attempt := s.restarts
			s.mu.Unlock()

			s.logger.Info("restart requested by process", "name", s.config.Name, "exit_code", code)
			if s.config.OnRestart != nil {
				s.config.OnRestart(attempt, true)
			}
			continue
		}

		s.setFailed(exitErr)
		s.logger.Warn("process exited unexpectedly", "name", s.config.Name, "error", exitErr, "exit_code", code)

		if !s.config.RestartOnFailure {
			return fmt.Errorf("%s exited: %w", s.config.Name, exitErr)
		}

		failures++
		if s.config.MaxRestartAttempts > 0 && failures > s.config.MaxRestartAttempts {
			s.logger.Error("max restart attempts reached", "name", s.config.Name, "attempts", failures-1)
			return fmt.Errorf("%w: %s: %w", ErrMaxRestarts, s.config.Name, exitErr)
		}

		s.mu.Lock()
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()

		s.logger.Info("restarting process",
			"name", s.config.Name,
			"attempt", failures,
			"delay", s.config.RestartDelay,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt, false)
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return nil
		case <-time.After(s.config.RestartDelay):
		}
	}
}

// startProcess starts the child in its own process group.
func (s *Supervisor) startProcess() (*exec.Cmd, error) {
	s.setStatus(StatusStarting)
	s.logger.Info("starting process",
		"name", s.config.Name,
		"binary", s.config.Binary,
		"args", s.config.Args,
	)

	cmd := exec.Command(s.config.Binary, s.config.Args...) //nolint:gosec // Binary is the supervisor's own executable

	// Own process group so shutdown signals reach every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if s.config.Env != nil {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}
	if s.config.WorkDir != "" {
		cmd.Dir = s.config.WorkDir
	}
	cmd.Stdout = s.config.Stdout
	cmd.Stderr = s.config.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.config.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.starts++
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("process started", "name", s.config.Name, "pid", cmd.Process.Pid)
	if s.config.OnStart != nil {
		s.config.OnStart(cmd.Process.Pid)
	}

	return cmd, nil
}

// wait returns the child's exit error. If ctx ends first the process group
// is terminated and wait returns once the child has exited.
func (s *Supervisor) wait(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	select {
	case err := <-exitCh:
		return err
	case <-ctx.Done():
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping process", "name", s.config.Name, "pid", pid)

	// Negative pid signals the process group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM to process group", "name", s.config.Name, "error", err)
	}

	select {
	case err := <-exitCh:
		return err
	case <-time.After(s.config.GracefulTimeout):
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", s.config.Name,
			"timeout", s.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("failed to kill process group", "name", s.config.Name, "error", err)
	}
	return <-exitCh
}

// exitCode extracts the exit status from a Wait error: 0 for nil, -1 when
// the status is unknown or the child was killed by a signal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Supervisor) setFailed(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastError = err
	s.mu.Unlock()
}

// Status returns the current status of the supervised process.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the last error that caused the process to exit.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Stats is a snapshot of the supervisor counters.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Starts    int           `json:"starts"`
	Restarts  int           `json:"restarts"`
	Resets    int           `json:"resets"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:     s.config.Name,
		Status:   s.status,
		Starts:   s.starts,
		Restarts: s.restarts,
		Resets:   s.resets,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
	}
	if s.status == StatusRunning {
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
