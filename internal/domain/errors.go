package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoSession          = errors.New("no active session")
	ErrRequestInFlight    = errors.New("a conversation request is already in flight")
	ErrCaptureUnavailable = errors.New("speech capture unavailable")
	// ErrNoSignal marks a transient capture failure (no speech detected,
	// device hiccup). Capture auto-restarts on it; any other capture error
	// is fatal and leaves capture idle.
	ErrNoSignal = errors.New("no speech signal")
)
