package session

import "errors"

// Domain-specific errors for the broker session.
var (
	// ErrInvalidTopic is returned when an empty topic is added.
	ErrInvalidTopic = errors.New("session: topic cannot be empty")

	// ErrSubscriptionsFrozen is returned when a topic is added after the
	// subscription set was frozen.
	ErrSubscriptionsFrozen = errors.New("session: subscription set is frozen")

	// ErrAlreadyStarted is returned when the identity is changed after the
	// broker endpoint was bound.
	ErrAlreadyStarted = errors.New("session: session already started")

	// ErrInvalidIdentity is returned when enabling a session without a host.
	ErrInvalidIdentity = errors.New("session: broker host is required")
)
