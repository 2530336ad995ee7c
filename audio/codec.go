package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Fixed audio format shared by both codec directions. Decoding a frame
// produced with different parameters is undefined, so both sides of this
// package validate against these values and fail loudly on mismatch.
const (
	// SampleRate is the fixed sample rate in Hz.
	SampleRate = 16000
	// Channels is the fixed channel count (mono).
	Channels = 1
	// FrameDurationMs is the fixed frame duration in milliseconds.
	FrameDurationMs = 60
	// FrameSamples is the number of samples in one frame.
	FrameSamples = SampleRate * FrameDurationMs / 1000
	// FrameBytes is the size of one frame as 16-bit PCM bytes.
	FrameBytes = FrameSamples * Channels * 2
)

// Encoder is the opaque encode primitive. It receives exactly one frame
// of samples and returns the compressed representation.
type Encoder interface {
	// Encode compresses one frame of PCM samples.
	Encode(pcm []int16) ([]byte, error)
	// Reset restores the encoder's internal prediction state.
	Reset()
}

// Decoder is the opaque decode primitive. An empty input requests packet
// loss concealment: the decoder synthesizes plausible continuation audio
// instead of decoding.
type Decoder interface {
	// Decode decompresses one frame, or conceals a lost one when data is
	// empty.
	Decode(data []byte) ([]int16, error)
	// Reset restores the decoder's internal prediction state.
	Reset()
}

// PCMEncoder is a passthrough encoder: the "compressed" representation is
// the little-endian PCM bytes themselves. It forms a lossless pair with
// PCMDecoder, used when the local bridge consumes raw frames and in
// tests.
type PCMEncoder struct{}

// NewPCMEncoder creates a passthrough PCM encoder.
func NewPCMEncoder() *PCMEncoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewPCMEncoder",
		"sample_rate": SampleRate,
		"channels":    Channels,
	}).Debug("Creating passthrough PCM encoder")
	return &PCMEncoder{}
}

// Encode converts one frame of samples to little-endian bytes.
func (e *PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(pcm), FrameSamples)
	}
	return pcmToBytes(pcm), nil
}

// Reset is a no-op; the passthrough encoder carries no state.
func (e *PCMEncoder) Reset() {}

// PCMDecoder is the passthrough counterpart of PCMEncoder. Concealment
// yields one frame of silence.
type PCMDecoder struct{}

// NewPCMDecoder creates a passthrough PCM decoder.
func NewPCMDecoder() *PCMDecoder {
	return &PCMDecoder{}
}

// Decode converts little-endian bytes back to samples. Empty input
// requests concealment and returns silence.
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return make([]int16, FrameSamples), nil
	}
	if len(data) != FrameBytes {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), FrameBytes)
	}
	return bytesToPCM(data), nil
}

// Reset is a no-op; the passthrough decoder carries no state.
func (d *PCMDecoder) Reset() {}

// pcmToBytes converts samples to 16-bit little-endian bytes.
func pcmToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// bytesToPCM converts 16-bit little-endian bytes to samples. An odd
// trailing byte is ignored.
func bytesToPCM(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm
}
