package relay

import "errors"

// Domain errors for the relay package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, relay.ErrUnknownDevice) {
//	    // handle unregistered device case
//	}
var (
	// ErrMalformedMessage is returned when an inbound payload cannot be
	// parsed into a known message type. The message is dropped; the
	// connection stays open.
	ErrMalformedMessage = errors.New("relay: malformed message")

	// ErrUnknownDevice is returned when telemetry or an event references a
	// device kind that has never registered. Registration is the only
	// state-creation path.
	ErrUnknownDevice = errors.New("relay: unknown device kind")

	// ErrInvalidTelemetry is returned when a telemetry value is not a
	// non-negative integer. Prior state is retained.
	ErrInvalidTelemetry = errors.New("relay: invalid telemetry value")

	// ErrRoleConflict is returned when a connection attempts to change an
	// already-assigned role. Protocol misuse, not fatal.
	ErrRoleConflict = errors.New("relay: connection role conflict")

	// ErrConnectionNotFound is returned for operations on an unknown or
	// already-closed connection.
	ErrConnectionNotFound = errors.New("relay: connection not found")
)
