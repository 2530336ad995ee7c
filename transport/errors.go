package transport

import "errors"

var (
	// ErrNotConnected indicates a send on a channel that is not open.
	ErrNotConnected = errors.New("transport not connected")

	// ErrAlreadyConnected indicates Connect on an open channel.
	ErrAlreadyConnected = errors.New("transport already connected")

	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")
)
