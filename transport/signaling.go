package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// signalingHandshakeTimeout bounds the websocket dial so a dead bridge
// endpoint fails the connect callback instead of hanging forever. No
// wider call-setup deadline exists.
const signalingHandshakeTimeout = 10 * time.Second

// SignalingCallbacks is the explicit capability set of a signaling
// client. Any nil member defaults to a no-op, so callers implement only
// what they need.
type SignalingCallbacks struct {
	// OnConnected fires once the websocket handshake completes.
	OnConnected func()
	// OnBinary receives every binary message.
	OnBinary func(data []byte)
	// OnText receives text messages, which the core accepts but does not
	// interpret.
	OnText func(message string)
	// OnDisconnected reports channel closure with a close code, a reason,
	// and whether the remote side initiated it.
	OnDisconnected func(code int, reason string, remote bool)
	// OnError receives connect and send failures.
	OnError func(err error)
}

func (c *SignalingCallbacks) normalize() {
	if c.OnConnected == nil {
		c.OnConnected = func() {}
	}
	if c.OnBinary == nil {
		c.OnBinary = func([]byte) {}
	}
	if c.OnText == nil {
		c.OnText = func(string) {}
	}
	if c.OnDisconnected == nil {
		c.OnDisconnected = func(int, string, bool) {}
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
}

// SignalingClient is the persistent duplex channel to the local bridging
// process. Connect is asynchronous: success or failure arrives through
// the callbacks, never by blocking the caller. The client does not
// auto-reconnect; that policy belongs to the session orchestrator.
type SignalingClient struct {
	url       string
	callbacks SignalingCallbacks

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	closing    bool
}

// NewSignalingClient creates a client for the given websocket URL.
func NewSignalingClient(url string, callbacks SignalingCallbacks) *SignalingClient {
	callbacks.normalize()
	return &SignalingClient{
		url:       url,
		callbacks: callbacks,
	}
}

// Connect starts the websocket handshake on its own goroutine. The
// result is delivered through OnConnected or OnError.
func (c *SignalingClient) Connect() error {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SignalingClient.Connect",
		"url":      c.url,
	}).Info("Connecting signaling channel")

	go c.dial()
	return nil
}

func (c *SignalingClient) dial() {
	dialer := websocket.Dialer{HandshakeTimeout: signalingHandshakeTimeout}
	conn, _, err := dialer.Dial(c.url, nil)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.callbacks.OnError(fmt.Errorf("signaling connect failed: %w", err))
		return
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.callbacks.OnConnected()
	c.readLoop(conn)
}

// SendBinary sends one binary message. Returns whether the send was
// attempted; callers must check connection state before assuming
// delivery.
func (c *SignalingClient) SendBinary(data []byte) bool {
	return c.send(websocket.BinaryMessage, data)
}

// SendText sends one text message.
func (c *SignalingClient) SendText(message string) bool {
	return c.send(websocket.TextMessage, []byte(message))
}

func (c *SignalingClient) send(messageType int, data []byte) bool {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return false
	}
	err := c.conn.WriteMessage(messageType, data)
	c.mu.Unlock()

	// The callback runs unlocked so it may re-enter the client.
	if err != nil {
		c.callbacks.OnError(fmt.Errorf("signaling send failed: %w", err))
		return false
	}
	return true
}

// IsConnected reports whether the channel is open.
func (c *SignalingClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns a human-readable connection state.
func (c *SignalingClient) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.connected:
		return "CONNECTED"
	case c.connecting:
		return "CONNECTING"
	default:
		return "DISCONNECTED"
	}
}

// Close shuts the channel down from the local side. A best-effort close
// frame precedes the hard close so the bridge sees a normal closure.
func (c *SignalingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.closing = true
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
	err := c.conn.Close()
	c.connected = false
	return err
}

func (c *SignalingClient) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.callbacks.OnBinary(data)
		case websocket.TextMessage:
			c.callbacks.OnText(string(data))
		}
	}
}

func (c *SignalingClient) handleDisconnect(err error) {
	c.mu.Lock()
	wasClosing := c.closing
	c.connected = false
	c.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	remote := !wasClosing
	if closeErr, ok := err.(*websocket.CloseError); ok {
		code = closeErr.Code
		reason = closeErr.Text
	}

	logrus.WithFields(logrus.Fields{
		"function": "SignalingClient.readLoop",
		"code":     code,
		"reason":   reason,
		"remote":   remote,
	}).Info("Signaling channel disconnected")

	c.callbacks.OnDisconnected(code, reason, remote)
}
