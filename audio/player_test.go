package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlaybackDevice records written blocks. writeErr, when set, fails
// every write.
type fakePlaybackDevice struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error

	drainCount atomic.Int32
	closeCount atomic.Int32
}

func (d *fakePlaybackDevice) Write(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.written = append(d.written, append([]byte(nil), buf...))
	return len(buf), nil
}

func (d *fakePlaybackDevice) Drain() error {
	d.drainCount.Add(1)
	return nil
}

func (d *fakePlaybackDevice) Close() error {
	d.closeCount.Add(1)
	return nil
}

func (d *fakePlaybackDevice) writtenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.written)
}

func TestPlayer_PlaysQueuedBlocks(t *testing.T) {
	device := &fakePlaybackDevice{}
	p := NewPlayer(device)
	require.NoError(t, p.Start())

	for i := 0; i < 5; i++ {
		require.True(t, p.Enqueue([]byte{byte(i), byte(i)}))
	}
	waitFor(t, func() bool { return device.writtenCount() == 5 })

	p.Stop()
	assert.Equal(t, int32(1), device.drainCount.Load())
	assert.Equal(t, int32(1), device.closeCount.Load())
	assert.False(t, p.IsRunning())
}

func TestPlayer_EnqueueGuards(t *testing.T) {
	device := &fakePlaybackDevice{}
	p := NewPlayer(device)

	t.Run("not_running", func(t *testing.T) {
		assert.False(t, p.Enqueue([]byte{1}))
	})

	require.NoError(t, p.Start())
	defer p.Stop()

	t.Run("empty_block", func(t *testing.T) {
		assert.False(t, p.Enqueue(nil))
		assert.False(t, p.Enqueue([]byte{}))
	})
}

func TestPlayer_OverflowDropsNewest(t *testing.T) {
	// Device blocks forever so the queue can only fill.
	blocked := make(chan struct{})
	t.Cleanup(func() { close(blocked) })
	device := &blockingPlaybackDevice{unblock: blocked}

	p := NewPlayer(device)
	require.NoError(t, p.Start())

	// One block is consumed by the loop and parks in Write; fill the
	// queue behind it.
	require.True(t, p.Enqueue([]byte{0}))
	waitFor(t, func() bool { return device.writing.Load() })
	for i := 0; i < playbackQueueDepth; i++ {
		require.True(t, p.Enqueue([]byte{byte(i)}))
	}

	assert.False(t, p.Enqueue([]byte{0xFF}), "overflow block must be dropped")
	assert.Equal(t, playbackQueueDepth, p.Buffered())

	p.ClearBuffer()
	assert.Equal(t, 0, p.Buffered())
}

type blockingPlaybackDevice struct {
	unblock chan struct{}
	writing atomic.Bool
}

func (d *blockingPlaybackDevice) Write(buf []byte) (int, error) {
	d.writing.Store(true)
	<-d.unblock
	return 0, errors.New("closed")
}

func (d *blockingPlaybackDevice) Drain() error { return nil }
func (d *blockingPlaybackDevice) Close() error { return nil }

func TestPlayer_StartGuards(t *testing.T) {
	t.Run("nil_device", func(t *testing.T) {
		p := NewPlayer(nil)
		assert.ErrorIs(t, p.Start(), ErrNoDevice)
	})

	t.Run("double_start", func(t *testing.T) {
		p := NewPlayer(&fakePlaybackDevice{})
		require.NoError(t, p.Start())
		assert.ErrorIs(t, p.Start(), ErrPlayerRunning)
		p.Stop()
	})
}

func TestPlayer_StopIsIdempotent(t *testing.T) {
	device := &fakePlaybackDevice{}
	p := NewPlayer(device)
	require.NoError(t, p.Start())

	p.Stop()
	p.Stop()

	assert.Equal(t, int32(1), device.closeCount.Load())
	assert.Equal(t, int32(1), device.drainCount.Load())
}

func TestPlayer_WriteErrorStopsLoop(t *testing.T) {
	device := &fakePlaybackDevice{writeErr: errors.New("device gone")}
	p := NewPlayer(device)

	errCh := make(chan error, 1)
	p.SetErrorCallback(func(err error) { errCh <- err })

	require.NoError(t, p.Start())
	require.True(t, p.Enqueue([]byte{1, 2}))

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "playback write failed")
	case <-time.After(2 * time.Second):
		t.Fatal("playback error not reported")
	}

	waitFor(t, func() bool { return !p.IsRunning() })
	assert.Equal(t, int32(1), device.closeCount.Load())

	// Stop after a loop failure must not hang or double-close.
	p.Stop()
	assert.Equal(t, int32(1), device.closeCount.Load())
}
