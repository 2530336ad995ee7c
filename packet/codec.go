package packet

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout (protobuf, external contract):
//
//	Packet        1=type(enum) 2=connect 3=encode 4=decode 5=media
//	ConnectPacket 1=server 2=port 3=sender 4=receiver 5=callId
//	              6=token 7=password 8=masterKey
//	EncodePacket  1=data
//	DecodePacket  1=data
//	MediaPacket   1=data 2=isRtp 3=seq 4=timestamp 5=type
//
// The discriminant and the single populated payload field must round-trip
// exactly; all other payload fields are absent on the wire.

var (
	// ErrNilPayload indicates Marshal was called with a nil payload.
	ErrNilPayload = errors.New("packet payload is nil")

	// ErrMalformedPacket indicates the bytes do not parse as a packet.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnknownType indicates a discriminant outside the four variants.
	ErrUnknownType = errors.New("unknown packet type")

	// ErrPayloadMismatch indicates the discriminant and the populated
	// payload field disagree.
	ErrPayloadMismatch = errors.New("packet type does not match payload")
)

// Marshal serializes a packet for transmission over the signaling
// transport.
func Marshal(p Payload) ([]byte, error) {
	if p == nil {
		return nil, ErrNilPayload
	}

	var body []byte
	var field protowire.Number
	switch v := p.(type) {
	case *ConnectPacket:
		body, field = marshalConnect(v), 2
	case *EncodePacket:
		body, field = marshalData(v.Data), 3
	case *DecodePacket:
		body, field = marshalData(v.Data), 4
	case *MediaPacket:
		body, field = marshalMedia(v), 5
	default:
		return nil, ErrUnknownType
	}

	buf := protowire.AppendTag(nil, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(p.Type()))
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	buf = protowire.AppendBytes(buf, body)
	return buf, nil
}

// Unmarshal parses a packet received from the signaling transport. The
// returned payload is the single active variant; a discriminant that does
// not match the populated field is rejected.
func Unmarshal(data []byte) (Payload, error) {
	var typ Type
	var payload Payload

	for len(data) > 0 {
		num, wtyp, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && wtyp == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			typ = Type(v)
			data = data[n:]
		case num >= 2 && num <= 5 && wtyp == protowire.BytesType:
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			data = data[n:]

			var err error
			switch num {
			case 2:
				payload, err = unmarshalConnect(body)
			case 3:
				var d []byte
				if d, err = unmarshalData(body); err == nil {
					payload = &EncodePacket{Data: d}
				}
			case 4:
				var d []byte
				if d, err = unmarshalData(body); err == nil {
					payload = &DecodePacket{Data: d}
				}
			case 5:
				payload, err = unmarshalMedia(body)
			}
			if err != nil {
				return nil, err
			}
		default:
			n := protowire.ConsumeFieldValue(num, wtyp, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if typ < TypeConnect || typ > TypeMedia {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: %s without payload", ErrPayloadMismatch, typ)
	}
	if payload.Type() != typ {
		return nil, fmt.Errorf("%w: declared %s, carried %s", ErrPayloadMismatch, typ, payload.Type())
	}
	return payload, nil
}

func marshalConnect(c *ConnectPacket) []byte {
	var b []byte
	b = appendStringField(b, 1, c.Server)
	if c.Port != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(c.Port)))
	}
	b = appendStringField(b, 3, c.Sender)
	b = appendStringField(b, 4, c.Receiver)
	b = appendStringField(b, 5, c.CallID)
	b = appendStringField(b, 6, c.Token)
	b = appendStringField(b, 7, c.Password)
	b = appendStringField(b, 8, c.MasterKey)
	return b
}

func unmarshalConnect(data []byte) (*ConnectPacket, error) {
	c := &ConnectPacket{}
	err := walkFields(data, func(num protowire.Number, s string, v uint64, isStr bool) {
		switch num {
		case 1:
			c.Server = s
		case 2:
			c.Port = int32(v)
		case 3:
			c.Sender = s
		case 4:
			c.Receiver = s
		case 5:
			c.CallID = s
		case 6:
			c.Token = s
		case 7:
			c.Password = s
		case 8:
			c.MasterKey = s
		}
		_ = isStr
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func marshalData(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func unmarshalData(body []byte) ([]byte, error) {
	var out []byte
	err := walkBytesFields(body, func(num protowire.Number, b []byte, v uint64) {
		if num == 1 {
			out = append([]byte(nil), b...)
		}
	})
	return out, err
}

func marshalMedia(m *MediaPacket) []byte {
	var b []byte
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	if m.IsRTP {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if m.Seq != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Seq))
	}
	if m.Timestamp != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Timestamp))
	}
	if m.MediaType != nil {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.MediaType))
	}
	return b
}

func unmarshalMedia(body []byte) (*MediaPacket, error) {
	m := &MediaPacket{}
	err := walkBytesFields(body, func(num protowire.Number, b []byte, v uint64) {
		switch num {
		case 1:
			m.Data = append([]byte(nil), b...)
		case 2:
			m.IsRTP = v != 0
		case 3:
			m.Seq = uint32(v)
		case 4:
			m.Timestamp = uint32(v)
		case 5:
			t := uint8(v)
			m.MediaType = &t
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// walkFields iterates a submessage delivering string fields (length
// delimited) and varint fields to the visitor.
func walkFields(data []byte, visit func(num protowire.Number, s string, v uint64, isStr bool)) error {
	return walkBytesFields(data, func(num protowire.Number, b []byte, v uint64) {
		visit(num, string(b), v, b != nil)
	})
}

func walkBytesFields(data []byte, visit func(num protowire.Number, b []byte, v uint64)) error {
	for len(data) > 0 {
		num, wtyp, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
		}
		data = data[n:]

		switch wtyp {
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			visit(num, b, 0)
			data = data[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			visit(num, nil, v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, wtyp, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
