package transport

import "errors"

var (
	// ErrTimeout is returned when no reply arrives before the call deadline
	ErrTimeout = errors.New("transport timeout")
	// ErrUnreachable is returned when an agent has neither a channel nor a known process
	ErrUnreachable = errors.New("agent unreachable")
	// ErrTransportClosed is returned when the channel is closed or a write fails
	ErrTransportClosed = errors.New("transport closed")
	// ErrMalformedReply marks inbound frames that cannot be decoded
	ErrMalformedReply = errors.New("malformed reply")
)
