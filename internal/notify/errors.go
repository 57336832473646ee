package notify

import "errors"

// Sentinel errors for notification delivery and token handling.
var (
	// ErrInvalidToken indicates a push token that is not a recognisable
	// Expo token and was rejected before storage.
	ErrInvalidToken = errors.New("notify: invalid push token")

	// ErrGatewayFailure indicates the push gateway rejected a delivery
	// request (non-2xx response).
	ErrGatewayFailure = errors.New("notify: push gateway failure")
)
