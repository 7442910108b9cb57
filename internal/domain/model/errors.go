package model

import "errors"

// Error taxonomy shared by every layer. Adapters wrap these with %w.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDownstreamDegraded = errors.New("downstream degraded")
)
