package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEncoder fails every n-th frame so error isolation can be
// observed without a real codec failure mode.
type failingEncoder struct {
	calls   int
	failOn  int
	wrapped Encoder
}

func (f *failingEncoder) Encode(pcm []int16) ([]byte, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("synthetic encode failure")
	}
	return f.wrapped.Encode(pcm)
}

func (f *failingEncoder) Reset() { f.wrapped.Reset() }

type encodedFrame struct {
	data        []byte
	timestampMs uint64
}

func collectFrames(e *FrameEncoder) *[]encodedFrame {
	frames := &[]encodedFrame{}
	e.SetFrameCallback(func(encoded []byte, timestampMs uint64) {
		buf := append([]byte(nil), encoded...)
		*frames = append(*frames, encodedFrame{data: buf, timestampMs: timestampMs})
	})
	return frames
}

func TestFrameEncoder_FramingAcrossChunkSizes(t *testing.T) {
	tests := []struct {
		name       string
		chunkSize  int
		totalBytes int
		wantFrames int
	}{
		{
			name:       "exact_frame_chunks",
			chunkSize:  FrameBytes,
			totalBytes: FrameBytes * 3,
			wantFrames: 3,
		},
		{
			name:       "small_chunks",
			chunkSize:  100,
			totalBytes: FrameBytes * 2,
			wantFrames: 2,
		},
		{
			name:       "chunk_spanning_boundary",
			chunkSize:  FrameBytes + 500,
			totalBytes: (FrameBytes + 500) * 2,
			wantFrames: 2,
		},
		{
			name:       "one_chunk_many_frames",
			chunkSize:  FrameBytes * 4,
			totalBytes: FrameBytes * 4,
			wantFrames: 4,
		},
		{
			name:       "below_one_frame",
			chunkSize:  FrameBytes / 2,
			totalBytes: FrameBytes / 2,
			wantFrames: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewFrameEncoder(NewPCMEncoder())
			frames := collectFrames(enc)

			fed := 0
			for fed < tt.totalBytes {
				n := tt.chunkSize
				if fed+n > tt.totalBytes {
					n = tt.totalBytes - fed
				}
				enc.Feed(make([]byte, n))
				fed += n
			}

			require.Len(t, *frames, tt.wantFrames)
			for i, f := range *frames {
				assert.Equal(t, uint64(i)*FrameDurationMs, f.timestampMs)
				assert.Len(t, f.data, FrameBytes)
			}
			assert.Equal(t, uint64(tt.wantFrames), enc.FrameCount())
		})
	}
}

func TestFrameEncoder_FrameContentPreserved(t *testing.T) {
	enc := NewFrameEncoder(NewPCMEncoder())
	frames := collectFrames(enc)

	pcm := make([]byte, FrameBytes)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	// Split across two chunks at an odd boundary.
	enc.Feed(pcm[:777])
	enc.Feed(pcm[777:])

	require.Len(t, *frames, 1)
	assert.Equal(t, pcm, (*frames)[0].data)
}

func TestFrameEncoder_FlushPadsPartialFrame(t *testing.T) {
	enc := NewFrameEncoder(NewPCMEncoder())
	frames := collectFrames(enc)

	partial := make([]byte, 300)
	for i := range partial {
		partial[i] = 0xAB
	}
	enc.Feed(partial)
	require.Empty(t, *frames)

	enc.Flush()
	require.Len(t, *frames, 1)
	frame := (*frames)[0].data
	assert.Equal(t, partial, frame[:300])
	for _, b := range frame[300:] {
		require.Equal(t, byte(0), b)
	}

	// Flushing an empty accumulator emits nothing.
	enc.Flush()
	assert.Len(t, *frames, 1)
}

func TestFrameEncoder_TimestampAdvancesOnlyOnSuccess(t *testing.T) {
	enc := NewFrameEncoder(&failingEncoder{failOn: 2, wrapped: NewPCMEncoder()})
	frames := collectFrames(enc)

	var encodeErrs []error
	enc.SetErrorCallback(func(err error) { encodeErrs = append(encodeErrs, err) })

	for i := 0; i < 3; i++ {
		enc.Feed(make([]byte, FrameBytes))
	}

	require.Len(t, encodeErrs, 1)
	require.Len(t, *frames, 2)
	assert.Equal(t, uint64(0), (*frames)[0].timestampMs)
	// The failed frame did not consume a timestamp slot.
	assert.Equal(t, uint64(FrameDurationMs), (*frames)[1].timestampMs)
	assert.Equal(t, uint64(2), enc.FrameCount())
}

func TestFrameEncoder_ResetRestartsTimestamps(t *testing.T) {
	enc := NewFrameEncoder(NewPCMEncoder())
	frames := collectFrames(enc)

	enc.Feed(make([]byte, FrameBytes*2))
	enc.Feed(make([]byte, 100))
	enc.Reset()

	assert.Equal(t, uint64(0), enc.FrameCount())

	// The partial remainder was discarded by Reset.
	enc.Feed(make([]byte, FrameBytes))
	require.Len(t, *frames, 3)
	assert.Equal(t, uint64(0), (*frames)[2].timestampMs)
}

func TestFrameEncoder_NoCallbackNoWork(t *testing.T) {
	enc := NewFrameEncoder(NewPCMEncoder())
	enc.Feed(make([]byte, FrameBytes*2))
	assert.Equal(t, uint64(0), enc.FrameCount())
}
