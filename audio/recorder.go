package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Recorder runs the capture loop: it blocks reading fixed-size chunks
// from the capture device and feeds them to the frame encoder, whose
// callback hands completed frames to the network side.
//
// The loop runs on its own goroutine and shares no mutable state with
// other pipelines; the frame accumulator is owned exclusively by it.
type Recorder struct {
	device  CaptureDevice
	encoder *FrameEncoder

	running   atomic.Bool
	done      chan struct{}
	closeDev  sync.Once
	stopOnce  sync.Once
	onStarted func()
	onStopped func()
	onError   ErrorCallback
}

// NewRecorder creates a capture pipeline over the given device and frame
// encoder. The recorder takes ownership of the device and closes it when
// the pipeline stops or fails.
func NewRecorder(device CaptureDevice, encoder *FrameEncoder) *Recorder {
	return &Recorder{
		device:  device,
		encoder: encoder,
		done:    make(chan struct{}),
	}
}

// SetStartedCallback sets the callback invoked when capture begins.
func (r *Recorder) SetStartedCallback(cb func()) { r.onStarted = cb }

// SetStoppedCallback sets the callback invoked after the loop has
// exited.
func (r *Recorder) SetStoppedCallback(cb func()) { r.onStopped = cb }

// SetErrorCallback sets the callback for fatal capture errors. A read
// failure terminates only the capture loop, never the process.
func (r *Recorder) SetErrorCallback(cb ErrorCallback) { r.onError = cb }

// Start begins the capture loop.
func (r *Recorder) Start() error {
	if r.device == nil {
		return ErrNoDevice
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrRecorderRunning
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Recorder.Start",
		"chunk_size": FrameBytes,
	}).Info("Starting audio capture loop")

	go r.captureLoop()

	if r.onStarted != nil {
		r.onStarted()
	}
	return nil
}

// Stop terminates the capture loop, flushes any buffered partial frame
// as a zero-padded final frame, and closes the device. Safe to call more
// than once.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		// Closing the device unblocks a pending Read immediately.
		r.closeDevice()
		<-r.done

		r.encoder.Flush()

		logrus.WithFields(logrus.Fields{
			"function": "Recorder.Stop",
			"frames":   r.encoder.FrameCount(),
		}).Info("Audio capture loop stopped")

		if r.onStopped != nil {
			r.onStopped()
		}
	})
}

// IsRunning reports whether the capture loop is active.
func (r *Recorder) IsRunning() bool {
	return r.running.Load()
}

func (r *Recorder) captureLoop() {
	defer close(r.done)

	buf := make([]byte, FrameBytes)
	for r.running.Load() {
		n, err := r.device.Read(buf)
		if err != nil {
			if r.running.Load() {
				r.reportError(fmt.Errorf("capture read failed: %w", err))
				r.running.Store(false)
				r.closeDevice()
			}
			return
		}
		if n > 0 {
			r.encoder.Feed(buf[:n])
		}
	}
}

func (r *Recorder) closeDevice() {
	r.closeDev.Do(func() {
		if err := r.device.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Recorder.closeDevice",
				"error":    err.Error(),
			}).Warn("Capture device close failed")
		}
	})
}

func (r *Recorder) reportError(err error) {
	if r.onError != nil {
		r.onError(err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Recorder.captureLoop",
		"error":    err.Error(),
	}).Error("Capture loop terminated")
}
