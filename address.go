package wavoice

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
)

// IPPort is a relay endpoint decoded from its fixed-width binary form.
type IPPort struct {
	IP   string
	Port int
}

// String formats the endpoint for dialing, bracketing IPv6 addresses.
func (a IPPort) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// ParseIPPort decodes a relay address blob. The layout is a bit-exact
// external contract with the relay server: 6 bytes are 4 IPv4 octets
// followed by a big-endian port, 18 bytes are 16 IPv6 octets followed by
// a big-endian port. Any other length fails, and callers must not
// proceed with relay setup.
func ParseIPPort(data []byte) (IPPort, error) {
	var ipLen int
	switch len(data) {
	case 6:
		ipLen = net.IPv4len
	case 18:
		ipLen = net.IPv6len
	default:
		return IPPort{}, fmt.Errorf("%w: got %d", ErrBadAddressLength, len(data))
	}

	ip := net.IP(data[:ipLen])
	if ip.To16() == nil {
		return IPPort{}, ErrBadAddress
	}

	return IPPort{
		IP:   ip.String(),
		Port: int(binary.BigEndian.Uint16(data[ipLen:])),
	}, nil
}
