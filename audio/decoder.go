package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PCMCallback receives one decoded (or concealed) frame as little-endian
// PCM bytes. The timestamp rule matches the encode side: frame n is
// stamped n*60 ms, counted per decoder instance and advanced only on a
// successfully produced frame.
type PCMCallback func(pcm []byte, sampleCount int, timestampMs uint64)

// FrameDecoder turns encoded frames back into PCM through the opaque
// decode primitive, with packet loss concealment for gaps. Decode
// failures are reported per frame; the decoder remains usable afterward.
type FrameDecoder struct {
	dec     Decoder
	counter uint64

	onPCM   PCMCallback
	onError ErrorCallback
}

// NewFrameDecoder creates a frame decoder over the given primitive. The
// primitive must be configured for the same fixed format as the encode
// side; mismatched frames fail loudly instead of corrupting audio.
func NewFrameDecoder(dec Decoder) *FrameDecoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewFrameDecoder",
		"sample_rate": SampleRate,
		"frame_ms":    FrameDurationMs,
	}).Debug("Creating frame decoder")

	return &FrameDecoder{dec: dec}
}

// SetPCMCallback sets the callback invoked for every produced frame.
func (d *FrameDecoder) SetPCMCallback(cb PCMCallback) {
	d.onPCM = cb
}

// SetErrorCallback sets the callback invoked for per-frame decode
// failures. When unset, failures are logged and dropped.
func (d *FrameDecoder) SetErrorCallback(cb ErrorCallback) {
	d.onError = cb
}

// Decode decompresses one encoded frame and emits it through the PCM
// callback. Empty input is rejected; lost frames are concealed through
// ConcealLoss instead.
func (d *FrameDecoder) Decode(encoded []byte) {
	if d.onPCM == nil {
		return
	}
	if len(encoded) == 0 {
		d.reportError(fmt.Errorf("frame %d: %w", d.counter, ErrEmptyFrame))
		return
	}
	d.produce(encoded)
}

// ConcealLoss asks the primitive to synthesize continuation audio for a
// missing frame and emits the result through the same PCM callback path,
// still advancing the frame counter.
func (d *FrameDecoder) ConcealLoss() {
	if d.onPCM == nil {
		return
	}
	d.produce(nil)
}

// Reset clears the frame counter and the primitive's prediction state.
// The next produced frame is timestamped 0.
func (d *FrameDecoder) Reset() {
	d.counter = 0
	d.dec.Reset()
}

// FrameCount returns the number of frames produced since creation or the
// last Reset.
func (d *FrameDecoder) FrameCount() uint64 {
	return d.counter
}

func (d *FrameDecoder) produce(encoded []byte) {
	pcm, err := d.dec.Decode(encoded)
	if err != nil {
		d.reportError(fmt.Errorf("frame %d decode failed: %w", d.counter, err))
		return
	}
	if len(pcm) == 0 {
		return
	}

	timestamp := d.counter * FrameDurationMs
	d.counter++
	d.onPCM(pcmToBytes(pcm), len(pcm), timestamp)
}

func (d *FrameDecoder) reportError(err error) {
	if d.onError != nil {
		d.onError(err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "FrameDecoder.produce",
		"error":    err.Error(),
	}).Warn("Dropping frame after decode failure")
}
