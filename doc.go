// Package wavoice implements voice-call signaling and real-time media
// relay for a messaging protocol client.
//
// The package interprets inbound call-offer control messages, extracts
// the relay server address, auth token and session key from their nested
// binary attributes, and drives the acknowledgment handshake (receipt,
// pre-accept, relay-latency). When relay parameters are available it
// opens a per-call Session that bridges a duplex signaling channel to a
// local bridging process and a UDP media channel to the relay,
// multiplexing four packet kinds between them while the audio pipeline
// converts between raw PCM and compressed 60 ms frames.
//
// The outer client supplies the parsed control message trees (package
// node), the message send primitives (Sender), and the audio device
// handles; this package owns everything between those boundaries.
package wavoice
