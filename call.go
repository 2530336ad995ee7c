package wavoice

import (
	"github.com/wavoice/wavoice/node"
)

// CallStatus is the state a single call-control message implies. Each
// inbound message yields one status independently; the handler does not
// track transitions across messages.
type CallStatus uint8

const (
	// CallRinging is the status of an offer or any unrecognized subtype.
	CallRinging CallStatus = iota
	// CallAccepted means the call was accepted.
	CallAccepted
	// CallRejected means the call was rejected or terminated without a
	// timeout reason.
	CallRejected
	// CallTimedOut means the call terminated with a timeout reason.
	CallTimedOut
)

// String returns a readable status name.
func (s CallStatus) String() string {
	switch s {
	case CallRinging:
		return "RINGING"
	case CallAccepted:
		return "ACCEPTED"
	case CallRejected:
		return "REJECTED"
	case CallTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// DeriveCallStatus maps a call-control child node to a status purely by
// its subtype and optional reason attribute; no other state is involved.
func DeriveCallStatus(callNode *node.Node) CallStatus {
	switch callNode.Tag {
	case "terminate":
		if callNode.AttrEquals("reason", "timeout") {
			return CallTimedOut
		}
		return CallRejected
	case "reject":
		return CallRejected
	case "accept":
		return CallAccepted
	default:
		return CallRinging
	}
}

// Call is the record of one inbound call, produced per offer message and
// handed to listeners. Persistence of call records belongs to the outer
// client.
type Call struct {
	// ChatJID is the chat the call arrived in.
	ChatJID string
	// CallerJID is the call creator, defaulting to the sender.
	CallerJID string
	// ID is the call id from the offer.
	ID string
	// TimestampSec is the offer timestamp in Unix seconds, defaulting to
	// the local clock when absent.
	TimestampSec int64
	// Video reports whether the offer advertised video.
	Video bool
	// Offline reports whether the offer was delivered from offline
	// storage.
	Offline bool
	// Status is the derived status, CallRinging for an offer.
	Status CallStatus
}

// RelayParams are the transport-layer credentials extracted from one
// call offer: relay endpoint address bytes, auth token and session key.
// Immutable once extracted; consumed exactly once to initialize the
// media bridge.
type RelayParams struct {
	// Address is the 6- or 18-byte relay endpoint blob (see ParseIPPort).
	Address []byte
	// Token authenticates against the relay.
	Token []byte
	// Key is the relay session key.
	Key string
}
