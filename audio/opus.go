package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// OpusDecoder adapts the pure Go pion/opus decoder to the Decoder
// interface. The pion decoder does not synthesize concealment audio, so
// an empty input falls back to one frame of silence rather than failing
// the stream.
type OpusDecoder struct {
	dec opus.Decoder
	out []byte
}

// NewOpusDecoder creates an Opus decoder for the fixed call format.
func NewOpusDecoder() *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewOpusDecoder",
		"sample_rate": SampleRate,
		"channels":    Channels,
		"frame_ms":    FrameDurationMs,
	}).Info("Creating Opus decoder")

	return &OpusDecoder{
		dec: opus.NewDecoder(),
		out: make([]byte, FrameBytes),
	}
}

// Decode decompresses one Opus frame to PCM samples. A frame encoded with
// a different channel count or sample rate than the fixed call format is
// rejected rather than silently resampled.
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return make([]int16, FrameSamples), nil
	}

	bandwidth, isStereo, err := d.dec.Decode(data, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	if isStereo {
		return nil, fmt.Errorf("%w: stereo frame on a mono call", ErrFormatMismatch)
	}
	if sr := bandwidth.SampleRate(); sr != 0 && sr != SampleRate {
		return nil, fmt.Errorf("%w: frame sample rate %d, call format %d", ErrFormatMismatch, sr, SampleRate)
	}

	return bytesToPCM(d.out), nil
}

// Reset restores the decoder prediction state.
func (d *OpusDecoder) Reset() {
	d.dec = opus.NewDecoder()
}
