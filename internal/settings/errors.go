package settings

import "errors"

// Domain errors.
var (
	// ErrValueTooLong is returned when a value exceeds its field bound.
	ErrValueTooLong = errors.New("settings: value exceeds field bound")

	// ErrInvalidStaticAddress is returned when a static address bundle is
	// incomplete or not a valid IPv4 configuration.
	ErrInvalidStaticAddress = errors.New("settings: invalid static address")
)
