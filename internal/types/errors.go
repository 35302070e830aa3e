package types

import "errors"

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrAgentExists       = errors.New("agent already registered")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidHandle     = errors.New("invalid agent handle")
)
