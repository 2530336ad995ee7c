// Package audio implements the voice-call audio pipeline: fixed-duration
// frame accumulation and encoding on the capture side, decoding and packet
// loss concealment on the playback side, and the capture/playback loops
// that glue device I/O to the network.
//
// The audio format is a fixed external contract with the relay's media
// encoding expectations and is not configurable per call:
//
//	16000 Hz, mono, 16-bit signed little-endian PCM,
//	60 ms frames = 960 samples = 1920 bytes.
//
// The perceptual codec itself is opaque behind the Encoder and Decoder
// interfaces. A passthrough PCM pair is provided for bridges that accept
// raw frames and for tests; an Opus decoder backed by pion/opus is
// provided for the receive side.
package audio
