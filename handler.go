package wavoice

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wavoice/wavoice/node"
)

// Sender is the outer client's message dispatch boundary. Both
// primitives hand a fully built control tree to the client's transport;
// acknowledgment of inbound messages also happens there.
type Sender interface {
	// SendNode sends a control message and awaits the response.
	SendNode(n *node.Node) error
	// SendNodeNoResponse sends a control message without expecting a
	// response.
	SendNodeNoResponse(n *node.Node) error
}

// CallListener is notified of every recorded call. Listeners run
// concurrently and independently; one listener's failure or latency
// never blocks another or the handler.
type CallListener func(call Call)

// capabilityBlob is the fixed audio capability payload advertised in the
// pre-accept message.
var capabilityBlob = []byte{0x01, 0x04, 0xf7, 0x09, 0xc4, 0xfa}

// latencyPrefix is the fixed numeric prefix of the synthetic relay
// latency tag.
const latencyPrefix = "33554"

// Handler interprets inbound call control messages. It is stateless per
// message: every message yields one derived status; only the offer
// subtype is driven end to end (receipt, pre-accept, relay latency,
// media bridge). Other subtypes are acknowledged by the outer transport
// and, for terminate, tear down a live session for that call id.
type Handler struct {
	sender Sender
	cfg    HandlerConfig

	mu        sync.RWMutex
	listeners []CallListener
	calls     []Call
	sessions  map[string]*Session

	// startRelay is replaced in tests to observe the RelayParams handoff
	// without opening real transports.
	startRelay func(params RelayParams, from, callID string)
}

// HandlerConfig carries the identity and wiring the handler needs to
// start media bridges.
type HandlerConfig struct {
	// SelfJID is the local identity, the CONNECT packet sender.
	SelfJID string
	// Session templates every media bridge the handler starts. Its
	// relay, identity and call fields are filled per call.
	Session SessionConfig
}

// NewHandler creates a call handler over the given sender.
func NewHandler(sender Sender, cfg HandlerConfig) *Handler {
	h := &Handler{
		sender:   sender,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	h.startRelay = h.startVoiceRelay
	return h
}

// RegisterCallListener adds a listener for recorded calls.
func (h *Handler) RegisterCallListener(l CallListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Calls returns a copy of the calls recorded so far.
func (h *Handler) Calls() []Call {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// ActiveSession returns the live media bridge for a call id, if any.
func (h *Handler) ActiveSession(callID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[callID]
	return s, ok
}

// Handle processes one inbound call control message. A malformed message
// (missing required attribute) aborts only that message's handling.
func (h *Handler) Handle(infoNode *node.Node) error {
	callNode, ok := infoNode.FirstChild()
	if !ok {
		return nil
	}

	status := DeriveCallStatus(callNode)
	logrus.WithFields(logrus.Fields{
		"function": "Handler.Handle",
		"subtype":  callNode.Tag,
		"status":   status.String(),
	}).Debug("Handling call control message")

	switch callNode.Tag {
	case "offer":
		return h.handleOffer(infoNode, callNode, status)
	case "terminate":
		h.teardownSession(callNode)
		return nil
	default:
		// Other subtypes only yield a status; they are acknowledged at
		// the outer transport layer.
		return nil
	}
}

func (h *Handler) handleOffer(infoNode, callNode *node.Node, status CallStatus) error {
	from, err := infoNode.RequiredAttr("from")
	if err != nil {
		return fmt.Errorf("call offer: %w", err)
	}
	callID, err := callNode.RequiredAttr("call-id")
	if err != nil {
		return fmt.Errorf("call offer: %w", err)
	}

	call := Call{
		ChatJID:      from,
		CallerJID:    callNode.GetAttr("call-creator", from),
		ID:           callID,
		TimestampSec: callNode.GetAttrInt64("t", time.Now().Unix()),
		Video:        callNode.HasChild("video"),
		Offline:      callNode.HasAttr("offline"),
		Status:       status,
	}
	h.recordCall(call)

	logrus.WithFields(logrus.Fields{
		"function": "Handler.handleOffer",
		"call_id":  callID,
		"caller":   call.CallerJID,
		"video":    call.Video,
		"offline":  call.Offline,
	}).Info("Inbound call offer")

	if err := h.sendReceipt(infoNode, callNode, from, callID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.handleOffer",
			"call_id":  callID,
			"error":    err.Error(),
		}).Warn("Offer receipt send failed")
	}
	if err := h.sendPreAccept(from, callID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.handleOffer",
			"call_id":  callID,
			"error":    err.Error(),
		}).Warn("Pre-accept send failed")
	}

	params, err := h.sendRelayLatency(from, callID, callNode)
	if err != nil {
		// Relay setup aborts for this call only; the call proceeds
		// without a media bridge.
		logrus.WithFields(logrus.Fields{
			"function": "Handler.handleOffer",
			"call_id":  callID,
			"error":    err.Error(),
		}).Warn("Relay setup aborted")
		return nil
	}
	if params != nil {
		h.startRelay(*params, from, callID)
	}
	return nil
}

// recordCall stores the call and notifies every listener on its own
// goroutine. A panicking listener is isolated and logged.
func (h *Handler) recordCall(call Call) {
	h.mu.Lock()
	h.calls = append(h.calls, call)
	listeners := make([]CallListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, l := range listeners {
		go func(l CallListener) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{
						"function": "Handler.recordCall",
						"call_id":  call.ID,
						"panic":    r,
					}).Error("Call listener panicked")
				}
			}()
			l(call)
		}(l)
	}
}

// sendReceipt acknowledges the offer, echoing the call id and caller
// identity back to the sender.
func (h *Handler) sendReceipt(infoNode, callNode *node.Node, from, callID string) error {
	id, err := infoNode.RequiredAttr("id")
	if err != nil {
		return err
	}

	offer := node.New("offer").
		Attr("call-id", callID).
		Attr("call-creator", callNode.GetAttr("call-creator", from))

	receipt := node.New("receipt").
		Attr("id", id).
		Attr("to", from).
		Child(offer)

	return h.sender.SendNodeNoResponse(receipt)
}

// sendPreAccept advertises the fixed audio capability parameters. This
// is a transport capability announcement, not a user decision, so it is
// sent before the call is locally accepted.
func (h *Handler) sendPreAccept(from, callID string) error {
	audioNode := node.New("audio").
		Attr("rate", "16000").
		Attr("enc", "opus")

	encopt := node.New("encopt").
		Attr("keygen", "2")

	capability := node.New("capability").
		Attr("ver", "1").
		Bytes(capabilityBlob)

	preaccept := node.New("preaccept").
		Attr("call-creator", from).
		Attr("call-id", callID).
		Child(audioNode, encopt, capability)

	call := node.New("call").
		Attr("id", randomHex(10)).
		Attr("to", from).
		Child(preaccept)

	return h.sender.SendNodeNoResponse(call)
}

// sendRelayLatency extracts the relay parameters from the offer and
// reports a synthetic latency measurement for the relay endpoint back to
// the caller. A nil, nil return means no relay was offered, an expected
// case when a direct peer path is available.
func (h *Handler) sendRelayLatency(from, callID string, callNode *node.Node) (*RelayParams, error) {
	relay, ok := callNode.GetChild("relay")
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.sendRelayLatency",
			"call_id":  callID,
		}).Info("Offer carries no relay, skipping relay setup")
		return nil, nil
	}

	var token []byte
	for _, t := range relay.GetChildren("token") {
		if t.AttrEquals("id", "0") {
			token, _ = t.ContentBytes()
			break
		}
	}

	var address []byte
	for _, te2 := range relay.GetChildren("te2") {
		content, ok := te2.ContentBytes()
		if ok && len(content) == 6 && te2.AttrEquals("token_id", "0") {
			address = content
			break
		}
	}

	if token == nil || address == nil {
		return nil, ErrRelayParamsIncomplete
	}

	key, ok := relayKey(relay)
	if !ok {
		return nil, ErrNoSessionKey
	}

	te := node.New("te").
		Attr("latency", latencyTag()).
		Bytes(address)

	relayLatency := node.New("relaylatency").
		Attr("call-creator", from).
		Attr("call-id", callID).
		Child(te)

	call := node.New("call").
		Attr("to", from).
		Attr("id", randomHex(10)).
		Child(relayLatency)

	if err := h.sender.SendNode(call); err != nil {
		return nil, fmt.Errorf("relaylatency send failed: %w", err)
	}

	return &RelayParams{Address: address, Token: token, Key: key}, nil
}

func relayKey(relay *node.Node) (string, bool) {
	keyNode, ok := relay.GetChild("key")
	if !ok {
		return "", false
	}
	return keyNode.ContentString()
}

// startVoiceRelay hands the relay parameters to a new call session and
// starts the media bridge.
func (h *Handler) startVoiceRelay(params RelayParams, from, callID string) {
	cfg := h.cfg.Session
	cfg.Relay = params
	cfg.From = h.cfg.SelfJID
	cfg.To = from
	cfg.CallID = callID

	session, err := NewSession(cfg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.startVoiceRelay",
			"call_id":  callID,
			"error":    err.Error(),
		}).Error("Media bridge setup failed")
		return
	}
	if err := session.Start(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.startVoiceRelay",
			"call_id":  callID,
			"error":    err.Error(),
		}).Error("Media bridge start failed")
		return
	}

	h.mu.Lock()
	h.sessions[callID] = session
	h.mu.Unlock()
}

// teardownSession stops a live media bridge when its call terminates.
func (h *Handler) teardownSession(callNode *node.Node) {
	callID := callNode.GetAttr("call-id", "")
	if callID == "" {
		return
	}

	h.mu.Lock()
	session, ok := h.sessions[callID]
	delete(h.sessions, callID)
	h.mu.Unlock()

	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Handler.teardownSession",
		"call_id":  callID,
	}).Info("Call terminated, stopping media bridge")
	session.Stop()
}

// latencyTag builds the synthetic latency value: the fixed prefix
// concatenated with a cryptographically random integer in [500, 699].
func latencyTag() string {
	n, err := rand.Int(rand.Reader, big.NewInt(200))
	if err != nil {
		// crypto/rand failing means the platform RNG is broken; a fixed
		// floor value keeps the handshake moving.
		return latencyPrefix + "500"
	}
	return fmt.Sprintf("%s%d", latencyPrefix, 500+n.Int64())
}

// randomHex returns n random bytes hex encoded, used for stanza ids.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString(make([]byte, n))
	}
	return hex.EncodeToString(buf)
}
