package domain

import "errors"

var (
	ErrPermissionDenied  = errors.New("device access denied")
	ErrDeviceUnavailable = errors.New("no matching capture device")
	ErrConnectionTimeout = errors.New("connection acknowledgment timeout")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConsentDeclined   = errors.New("consent declined")
	ErrSessionNotActive  = errors.New("session not active")
)
