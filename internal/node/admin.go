package node

import (
	"context"
	"time"
)

// ForceDisconnect closes the broker session and suppresses automatic
// reconnects until ForceReconnect. Idempotent.
// Must run on the control goroutine.
//
// Returns:
//   - bool: true if a live connection was closed
//   - error: ErrNoSession without a broker session
func (n *Node) ForceDisconnect() (bool, error) {
	if n.session == nil {
		return false, ErrNoSession
	}
	return n.session.ForceDisconnect(), nil
}

// ForceReconnect clears a forced disconnect and makes one connect attempt
// immediately. Must run on the control goroutine.
//
// Returns:
//   - bool: true if the session is connected afterwards
//   - error: ErrNoSession without a broker session
func (n *Node) ForceReconnect() (bool, error) {
	if n.session == nil {
		return false, ErrNoSession
	}
	return n.session.ForceReconnect(), nil
}

// Reset schedules a restart. Run returns ErrResetRequested once the grace
// period has elapsed. A second call does not extend the deadline.
// Must run on the control goroutine.
func (n *Node) Reset() time.Duration {
	if !n.resetPending {
		n.resetPending = true
		n.resetAt = time.Now().Add(n.cfg.ResetGrace)
		n.logger.Warn("reset requested", "grace", n.cfg.ResetGrace)
		n.record("node", "reset_requested", nil)
	}
	return n.cfg.ResetGrace
}

// Admin exposes the admin entry points to other goroutines.
type Admin struct {
	n *Node
}

// Admin returns the goroutine-safe admin surface of n.
func (n *Node) Admin() *Admin {
	return &Admin{n: n}
}

// Status returns the diagnostic snapshot.
func (a *Admin) Status(ctx context.Context) (Status, error) {
	var st Status
	err := a.n.Do(ctx, func() { st = a.n.Status(ctx) })
	return st, err
}

// ForceDisconnect runs Node.ForceDisconnect on the control goroutine.
func (a *Admin) ForceDisconnect(ctx context.Context) (bool, error) {
	var closed bool
	var opErr error
	if err := a.n.Do(ctx, func() { closed, opErr = a.n.ForceDisconnect() }); err != nil {
		return false, err
	}
	return closed, opErr
}

// ForceReconnect runs Node.ForceReconnect on the control goroutine.
func (a *Admin) ForceReconnect(ctx context.Context) (bool, error) {
	var connected bool
	var opErr error
	if err := a.n.Do(ctx, func() { connected, opErr = a.n.ForceReconnect() }); err != nil {
		return false, err
	}
	return connected, opErr
}

// Reset runs Node.Reset on the control goroutine.
func (a *Admin) Reset(ctx context.Context) (time.Duration, error) {
	var grace time.Duration
	err := a.n.Do(ctx, func() { grace = a.n.Reset() })
	return grace, err
}
