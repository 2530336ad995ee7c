package audio

// CaptureDevice is a source of raw PCM sample bytes in the fixed call
// format. Implementations are expected to block on Read with a bounded
// internal timeout so a stop request is observable within one read cycle.
//
// The device is an explicitly owned handle: whichever pipeline it is
// handed to closes it on every exit path, including error paths.
type CaptureDevice interface {
	// Read fills buf with captured PCM bytes and returns the count.
	Read(buf []byte) (int, error)
	// Close releases the device.
	Close() error
}

// PlaybackDevice is a sink for raw PCM sample bytes in the fixed call
// format.
type PlaybackDevice interface {
	// Write queues PCM bytes for playback and returns the count consumed.
	Write(buf []byte) (int, error)
	// Drain blocks until previously written audio has been played out.
	Drain() error
	// Close releases the device.
	Close() error
}
