package wavoice

import "errors"

// Sentinel errors for call handling and session setup. These enable
// reliable error classification using errors.Is().

var (
	// ErrBadAddressLength indicates a relay address blob that is neither
	// 6 (IPv4+port) nor 18 (IPv6+port) bytes.
	ErrBadAddressLength = errors.New("relay address must be 6 or 18 bytes")

	// ErrBadAddress indicates address bytes that do not form a valid IP.
	ErrBadAddress = errors.New("relay address bytes are not a valid IP")

	// ErrRelayParamsIncomplete indicates the relay token or address entry
	// was not found; relay setup is aborted for this call only.
	ErrRelayParamsIncomplete = errors.New("relay token or address not found")

	// ErrNoSessionKey indicates the relay key child was absent. The relay
	// parameters are meaningless without it.
	ErrNoSessionKey = errors.New("relay session key missing")

	// ErrSessionRunning indicates Start on an already started session.
	ErrSessionRunning = errors.New("call session already started")
)
