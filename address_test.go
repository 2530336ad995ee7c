package wavoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPPort(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantIP   string
		wantPort int
		wantErr  error
	}{
		{
			name:     "ipv4_with_port",
			data:     []byte{203, 0, 113, 10, 0x0D, 0x96},
			wantIP:   "203.0.113.10",
			wantPort: 3478,
		},
		{
			name:     "ipv4_high_port",
			data:     []byte{10, 0, 0, 1, 0xFF, 0xFF},
			wantIP:   "10.0.0.1",
			wantPort: 65535,
		},
		{
			name: "ipv6_with_port",
			data: []byte{
				0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0,
				0, 0, 0, 0, 0, 0, 0, 0x01,
				0x0D, 0x96,
			},
			wantIP:   "2001:db8::1",
			wantPort: 3478,
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: ErrBadAddressLength,
		},
		{
			name:    "five_bytes",
			data:    []byte{1, 2, 3, 4, 5},
			wantErr: ErrBadAddressLength,
		},
		{
			name:    "seven_bytes",
			data:    []byte{1, 2, 3, 4, 5, 6, 7},
			wantErr: ErrBadAddressLength,
		},
		{
			name:    "seventeen_bytes",
			data:    make([]byte, 17),
			wantErr: ErrBadAddressLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIPPort(tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIP, got.IP)
			assert.Equal(t, tt.wantPort, got.Port)
		})
	}
}

func TestIPPort_String(t *testing.T) {
	assert.Equal(t, "203.0.113.10:3478", IPPort{IP: "203.0.113.10", Port: 3478}.String())
	assert.Equal(t, "[2001:db8::1]:3478", IPPort{IP: "2001:db8::1", Port: 3478}.String())
}
