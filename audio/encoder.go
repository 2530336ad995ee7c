package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FrameCallback receives one encoded frame and its timestamp. The
// timestamp of frame n is n*60 ms, computed before the frame counter
// advances.
type FrameCallback func(encoded []byte, timestampMs uint64)

// ErrorCallback receives per-frame codec failures. A failure never stops
// the stream; the next chunk continues normally.
type ErrorCallback func(err error)

// FrameEncoder accumulates raw PCM bytes into fixed 60 ms frames and
// pushes each complete frame through the opaque encode primitive.
//
// The accumulator belongs to exactly one producer; Feed, Flush and Reset
// must not be called concurrently.
type FrameEncoder struct {
	enc     Encoder
	buf     []byte
	pos     int
	counter uint64

	onFrame FrameCallback
	onError ErrorCallback
}

// NewFrameEncoder creates a frame encoder over the given primitive.
func NewFrameEncoder(enc Encoder) *FrameEncoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewFrameEncoder",
		"frame_bytes": FrameBytes,
		"frame_ms":    FrameDurationMs,
	}).Debug("Creating frame encoder")

	return &FrameEncoder{
		enc: enc,
		buf: make([]byte, FrameBytes),
	}
}

// SetFrameCallback sets the callback invoked for every encoded frame.
func (e *FrameEncoder) SetFrameCallback(cb FrameCallback) {
	e.onFrame = cb
}

// SetErrorCallback sets the callback invoked for per-frame encode
// failures. When unset, failures are logged and dropped.
func (e *FrameEncoder) SetErrorCallback(cb ErrorCallback) {
	e.onError = cb
}

// Feed appends PCM bytes to the accumulator and emits every complete
// frame crossed by the chunk. A single call may emit zero, one or many
// frames depending on the chunk size relative to the frame boundary.
func (e *FrameEncoder) Feed(pcm []byte) {
	if e.onFrame == nil {
		return
	}

	offset := 0
	for offset < len(pcm) {
		n := copy(e.buf[e.pos:], pcm[offset:])
		e.pos += n
		offset += n

		if e.pos == FrameBytes {
			e.encodeFrame()
			e.pos = 0
		}
	}
}

// Flush zero-pads a nonzero remainder to a full frame and emits it, so
// trailing partial audio is not lost on shutdown.
func (e *FrameEncoder) Flush() {
	if e.pos == 0 {
		return
	}
	for i := e.pos; i < FrameBytes; i++ {
		e.buf[i] = 0
	}
	e.pos = FrameBytes
	e.encodeFrame()
	e.pos = 0
}

// Reset clears the accumulator, the frame counter and the primitive's
// prediction state. The next emitted frame is timestamped 0.
func (e *FrameEncoder) Reset() {
	e.pos = 0
	e.counter = 0
	e.enc.Reset()
}

// FrameCount returns the number of frames emitted since creation or the
// last Reset.
func (e *FrameEncoder) FrameCount() uint64 {
	return e.counter
}

func (e *FrameEncoder) encodeFrame() {
	encoded, err := e.enc.Encode(bytesToPCM(e.buf))
	if err != nil {
		e.reportError(fmt.Errorf("frame %d encode failed: %w", e.counter, err))
		return
	}
	if len(encoded) == 0 {
		return
	}

	timestamp := e.counter * FrameDurationMs
	e.counter++
	e.onFrame(encoded, timestamp)
}

func (e *FrameEncoder) reportError(err error) {
	if e.onError != nil {
		e.onError(err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "FrameEncoder.encodeFrame",
		"error":    err.Error(),
	}).Warn("Dropping frame after encode failure")
}
