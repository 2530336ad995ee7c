// Package transport implements the two channels of a relay voice call.
//
// The media transport is a connectionless UDP channel to the relay
// server: one fire-and-forget send path and one continuous receive loop.
// The signaling transport is a persistent duplex websocket to the local
// bridging process, carrying the multiplexed binary packets.
//
// Both transports report failures through callbacks and never terminate
// the hosting process; reconnect policy belongs to the call session that
// owns them.
package transport
