// internal/model/errors.go
package model

import "errors"

var (
	// ErrDeviceUnavailable is returned when the port cannot be opened or is already claimed
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrNegotiationFailed is returned when no candidate speed acknowledged
	ErrNegotiationFailed = errors.New("baud negotiation failed")
	// ErrInvalidConfiguration is returned before any hardware interaction
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrTransportClosed is returned when the device disappears or the handle is closed
	ErrTransportClosed = errors.New("transport closed")
	// ErrConfigurationFrozen is returned when the handle is reconfigured after capture began
	ErrConfigurationFrozen = errors.New("port configuration frozen")
	// ErrSessionTerminated is returned when a terminated session is reused
	ErrSessionTerminated = errors.New("session terminated")
)
