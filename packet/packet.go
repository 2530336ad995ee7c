// Package packet defines the multiplexed media packets exchanged with the
// local bridging process over the signaling transport.
//
// Exactly four variants exist. A packet is a tagged union: one
// discriminant, one payload. The wire layout is protobuf and is a stable
// external contract; see codec.go for the field numbering.
package packet

// Type identifies the packet variant on the wire.
type Type uint8

const (
	// TypeConnect establishes the relay session. Outbound only.
	TypeConnect Type = 1
	// TypeEncode carries an encoded audio frame toward the media relay.
	TypeEncode Type = 2
	// TypeDecode carries raw relay bytes back toward the bridging process.
	TypeDecode Type = 3
	// TypeMedia carries decoded media arriving from the bridging process.
	TypeMedia Type = 4
)

// String returns the wire name of the packet type.
func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeEncode:
		return "ENCODE"
	case TypeDecode:
		return "DECODE"
	case TypeMedia:
		return "MEDIA"
	default:
		return "UNKNOWN"
	}
}

// Payload is the single active variant of a packet. The interface is
// sealed: only the four packet structs in this package implement it, so a
// decoded packet can never hold more than one populated variant.
type Payload interface {
	Type() Type
	sealed()
}

// ConnectPacket opens the relay session. Built once per call and sent
// exactly once after the signaling channel connects.
type ConnectPacket struct {
	Server   string
	Port     int32
	Sender   string
	Receiver string
	CallID   string
	// Token is the relay auth token, base64 text on the wire.
	Token    string
	Password string
	// MasterKey is the call master key, base64 text on the wire.
	MasterKey string
}

func (*ConnectPacket) Type() Type { return TypeConnect }
func (*ConnectPacket) sealed()    {}

// EncodePacket carries one encoded audio frame from the capture pipeline.
type EncodePacket struct {
	Data []byte
}

func (*EncodePacket) Type() Type { return TypeEncode }
func (*EncodePacket) sealed()    {}

// DecodePacket carries raw bytes received from the media relay.
type DecodePacket struct {
	Data []byte
}

func (*DecodePacket) Type() Type { return TypeDecode }
func (*DecodePacket) sealed()    {}

// Media type values for MediaPacket.MediaType.
const (
	MediaVoice uint8 = 0
	MediaVideo uint8 = 1
)

// MediaPacket carries decoded media from the bridging process toward
// playback. MediaType is optional on the wire; nil means unspecified.
type MediaPacket struct {
	Data      []byte
	IsRTP     bool
	Seq       uint32
	Timestamp uint32
	MediaType *uint8
}

func (*MediaPacket) Type() Type { return TypeMedia }
func (*MediaPacket) sealed()    {}

// Voice creates a MediaPacket tagged as voice media.
func Voice(data []byte, isRTP bool, seq, timestamp uint32) *MediaPacket {
	t := MediaVoice
	return &MediaPacket{Data: data, IsRTP: isRTP, Seq: seq, Timestamp: timestamp, MediaType: &t}
}

// Video creates a MediaPacket tagged as video media.
func Video(data []byte, isRTP bool, seq, timestamp uint32) *MediaPacket {
	t := MediaVideo
	return &MediaPacket{Data: data, IsRTP: isRTP, Seq: seq, Timestamp: timestamp, MediaType: &t}
}
