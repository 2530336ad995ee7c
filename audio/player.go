package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// playbackQueueDepth bounds the playback handoff queue. The original
// queue was unbounded; a bound keeps worst-case playback latency finite,
// and concealment already covers gaps, so overflow drops the newest
// frame.
const playbackQueueDepth = 512

// Player runs the playback loop: it blocks taking the next PCM block
// from the inbound queue and writes it to the playback device.
//
// The queue is the single concurrency-safe handoff point between the
// decode callback, invoked from whichever goroutine delivered the media
// packet, and the playback goroutine. Stopping pushes a distinguished
// nil sentinel so a blocked consumer wakes promptly instead of relying on
// a polled flag.
type Player struct {
	device PlaybackDevice
	queue  chan []byte

	running  atomic.Bool
	done     chan struct{}
	closeDev sync.Once
	stopOnce sync.Once
	onError  ErrorCallback
}

// NewPlayer creates a playback pipeline over the given device. The
// player takes ownership of the device and closes it when the pipeline
// stops or fails.
func NewPlayer(device PlaybackDevice) *Player {
	return &Player{
		device: device,
		queue:  make(chan []byte, playbackQueueDepth),
		done:   make(chan struct{}),
	}
}

// SetErrorCallback sets the callback for fatal playback errors. A write
// failure terminates only the playback loop.
func (p *Player) SetErrorCallback(cb ErrorCallback) { p.onError = cb }

// Start begins the playback loop.
func (p *Player) Start() error {
	if p.device == nil {
		return ErrNoDevice
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrPlayerRunning
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Player.Start",
		"queue_depth": playbackQueueDepth,
	}).Info("Starting audio playback loop")

	go p.playbackLoop()
	return nil
}

// Enqueue hands one decoded PCM block to the playback loop. Returns
// false when the player is not running or the queue is full; a full
// queue drops the block rather than blocking the delivering goroutine.
// Safe for concurrent producers.
func (p *Player) Enqueue(pcm []byte) bool {
	if !p.running.Load() || len(pcm) == 0 {
		return false
	}
	select {
	case p.queue <- pcm:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "Player.Enqueue",
			"queue_depth": playbackQueueDepth,
		}).Warn("Playback queue full, dropping frame")
		return false
	}
}

// Buffered returns the number of PCM blocks waiting for playback.
func (p *Player) Buffered() int {
	return len(p.queue)
}

// ClearBuffer discards all queued PCM blocks without stopping playback.
func (p *Player) ClearBuffer() {
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}

// Stop terminates playback: it wakes the loop with the sentinel, waits
// for it to exit, drains pending device output, and closes the device.
// Safe to call more than once.
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		wasRunning := p.running.Swap(false)
		if wasRunning {
			// The sentinel guarantees a blocked consumer wakes; once
			// running is false no producer adds ahead of it. The loop may
			// also exit on its own after a device failure, so never block
			// on the queue past loop exit.
			select {
			case p.queue <- nil:
			case <-p.done:
			}
			<-p.done

			if err := p.device.Drain(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Player.Stop",
					"error":    err.Error(),
				}).Warn("Playback drain failed")
			}
		}
		p.closeDevice()
		p.ClearBuffer()

		logrus.WithFields(logrus.Fields{
			"function": "Player.Stop",
		}).Info("Audio playback loop stopped")
	})
}

// IsRunning reports whether the playback loop is active.
func (p *Player) IsRunning() bool {
	return p.running.Load()
}

func (p *Player) playbackLoop() {
	defer close(p.done)

	for {
		data := <-p.queue
		if data == nil {
			return
		}
		if !p.running.Load() {
			return
		}

		if _, err := p.device.Write(data); err != nil {
			if p.running.Load() {
				p.reportError(fmt.Errorf("playback write failed: %w", err))
				p.running.Store(false)
				p.closeDevice()
			}
			return
		}
	}
}

func (p *Player) closeDevice() {
	p.closeDev.Do(func() {
		if err := p.device.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Player.closeDevice",
				"error":    err.Error(),
			}).Warn("Playback device close failed")
		}
	})
}

func (p *Player) reportError(err error) {
	if p.onError != nil {
		p.onError(err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Player.playbackLoop",
		"error":    err.Error(),
	}).Error("Playback loop terminated")
}
