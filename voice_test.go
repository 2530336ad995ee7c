package wavoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoice/wavoice/audio"
	"github.com/wavoice/wavoice/packet"
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Relay: RelayParams{
			Address: testRelayAddr,
			Token:   []byte("relay-token"),
			Key:     "session-key",
		},
		From:   "self@example",
		To:     "caller@example",
		CallID: "CALL-1",
	}
}

func TestNewSession_ValidatesRelayAddress(t *testing.T) {
	tests := []struct {
		name    string
		address []byte
		wantErr error
	}{
		{
			name:    "ipv4_address",
			address: testRelayAddr,
		},
		{
			name: "ipv6_address",
			address: []byte{
				0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0,
				0, 0, 0, 0, 0, 0, 0, 0x01,
				0x0D, 0x96,
			},
		},
		{
			name:    "empty_address",
			address: nil,
			wantErr: ErrBadAddressLength,
		},
		{
			name:    "wrong_length",
			address: []byte{1, 2, 3},
			wantErr: ErrBadAddressLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSessionConfig()
			cfg.Relay.Address = tt.address

			s, err := NewSession(cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3478, s.RelayAddr().Port)
			assert.Equal(t, "CALL-1", s.CallID())
		})
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s, err := NewSession(testSessionConfig())
	require.NoError(t, err)

	assert.Equal(t, DefaultSignalingURL, s.cfg.SignalingURL)
	assert.IsType(t, &audio.PCMEncoder{}, s.cfg.Encoder)
	assert.IsType(t, &audio.OpusDecoder{}, s.cfg.Decoder)
}

func TestNewSession_KeepsOverrides(t *testing.T) {
	cfg := testSessionConfig()
	cfg.SignalingURL = "ws://127.0.0.1:9999"
	cfg.Decoder = audio.NewPCMDecoder()

	s, err := NewSession(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9999", s.cfg.SignalingURL)
	assert.IsType(t, &audio.PCMDecoder{}, s.cfg.Decoder)
}

// sessionWithDecodePipe wires only the decode pipeline, collecting
// produced PCM frames without transports or devices.
func sessionWithDecodePipe(t *testing.T) (*Session, *int) {
	t.Helper()

	cfg := testSessionConfig()
	cfg.Decoder = audio.NewPCMDecoder()

	s, err := NewSession(cfg)
	require.NoError(t, err)
	s.wireAudio()

	produced := new(int)
	s.frameDecoder.SetPCMCallback(func(pcm []byte, sampleCount int, timestampMs uint64) {
		*produced++
	})
	return s, produced
}

func TestSession_MediaFeedsDecoder(t *testing.T) {
	s, produced := sessionWithDecodePipe(t)

	frame := make([]byte, audio.FrameBytes)
	s.handleMedia(&packet.MediaPacket{Data: frame, Seq: 1, Timestamp: 60})
	s.handleMedia(&packet.MediaPacket{Data: frame, Seq: 2, Timestamp: 120})

	assert.Equal(t, 2, *produced)
}

func TestSession_SequenceGapConceals(t *testing.T) {
	tests := []struct {
		name         string
		seqs         []uint32
		wantProduced int
	}{
		{
			name:         "contiguous",
			seqs:         []uint32{1, 2, 3},
			wantProduced: 3,
		},
		{
			name: "single_gap",
			seqs: []uint32{1, 3},
			// One concealed frame plus two decoded.
			wantProduced: 3,
		},
		{
			name: "large_gap_capped",
			seqs: []uint32{1, 50},
			// Concealment is capped, not one frame per missing packet.
			wantProduced: 2 + maxLossConceal,
		},
		{
			name: "out_of_order_not_concealed",
			seqs: []uint32{5, 3},
			// No resequencing: older frames decode as they arrive.
			wantProduced: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, produced := sessionWithDecodePipe(t)

			frame := make([]byte, audio.FrameBytes)
			for _, seq := range tt.seqs {
				s.handleMedia(&packet.MediaPacket{Data: frame, Seq: seq})
			}
			assert.Equal(t, tt.wantProduced, *produced)
		})
	}
}

func TestSession_MalformedSignalingDataDropped(t *testing.T) {
	s, produced := sessionWithDecodePipe(t)

	assert.NotPanics(t, func() {
		s.handleSignalingBinary([]byte{0xFF, 0xFF})
	})
	assert.Equal(t, 0, *produced)
}

func TestSession_MediaPacketOverSignalingDecodes(t *testing.T) {
	s, produced := sessionWithDecodePipe(t)

	data, err := packet.Marshal(&packet.MediaPacket{
		Data: make([]byte, audio.FrameBytes),
		Seq:  1,
	})
	require.NoError(t, err)

	s.handleSignalingBinary(data)
	assert.Equal(t, 1, *produced)
}

func TestSession_UnexpectedPacketTypesIgnored(t *testing.T) {
	s, produced := sessionWithDecodePipe(t)

	for _, p := range []packet.Payload{
		&packet.ConnectPacket{Server: "x", Port: 1},
		&packet.DecodePacket{Data: []byte{1}},
	} {
		data, err := packet.Marshal(p)
		require.NoError(t, err)
		assert.NotPanics(t, func() { s.handleSignalingBinary(data) })
	}
	assert.Equal(t, 0, *produced)
}

func TestSession_EncodePacketWithoutMediaTransport(t *testing.T) {
	s, _ := sessionWithDecodePipe(t)

	data, err := packet.Marshal(&packet.EncodePacket{Data: []byte{1, 2, 3}})
	require.NoError(t, err)

	// No media transport is open; the frame is dropped, not a crash.
	assert.NotPanics(t, func() { s.handleSignalingBinary(data) })
}

func TestSession_StopBeforeConnectCallbackWiresNothing(t *testing.T) {
	s, err := NewSession(testSessionConfig())
	require.NoError(t, err)
	s.wireAudio()

	// Teardown can land between signaling connect starting and the
	// connected callback firing; the callback must then wire nothing and
	// leave no media transport behind.
	s.Stop()
	assert.NotPanics(t, func() { s.handleSignalingConnected() })

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.media)
}

func TestSession_StopBeforeStartIsSafe(t *testing.T) {
	s, err := NewSession(testSessionConfig())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
