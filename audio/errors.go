package audio

import "errors"

// Sentinel errors for audio pipeline operations. These enable reliable
// error classification using errors.Is().

var (
	// ErrFrameSize indicates a codec primitive received a block that is
	// not exactly one frame.
	ErrFrameSize = errors.New("pcm block is not one frame")

	// ErrEmptyFrame indicates Decode was called with no data; loss
	// concealment must be requested through ConcealLoss instead.
	ErrEmptyFrame = errors.New("empty encoded frame")

	// ErrFormatMismatch indicates a decoded frame was produced with a
	// different sample rate or channel count than the fixed call format.
	ErrFormatMismatch = errors.New("decoded frame format mismatch")

	// ErrRecorderRunning indicates recording is already in progress.
	ErrRecorderRunning = errors.New("recording already in progress")

	// ErrPlayerRunning indicates playback is already in progress.
	ErrPlayerRunning = errors.New("playback already in progress")

	// ErrNoDevice indicates the pipeline was started without a device.
	ErrNoDevice = errors.New("audio device not provided")
)
