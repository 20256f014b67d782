package node

import "errors"

var (
	// ErrResetRequested is returned by Run after an administrative reset.
	ErrResetRequested = errors.New("node: reset requested")

	// ErrNotRunning is returned by Do when Run has exited.
	ErrNotRunning = errors.New("node: not running")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("node: already running")

	// ErrNoSession is returned by admin broker actions when no broker
	// session is configured.
	ErrNoSession = errors.New("node: no broker session configured")
)
