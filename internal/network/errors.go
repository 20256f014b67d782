package network

import "errors"

// Domain-specific errors for network association.
var (
	// ErrAlreadyStarted is returned when Begin is called more than once.
	ErrAlreadyStarted = errors.New("network: association already started")

	// ErrInvalidStaticAddress is returned when a static address bundle
	// cannot be applied.
	ErrInvalidStaticAddress = errors.New("network: invalid static address")

	// ErrInterfaceNotFound is returned when the watched interface is absent.
	ErrInterfaceNotFound = errors.New("network: interface not found")
)
