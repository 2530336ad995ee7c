package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// udpBufferSize is the socket and read buffer size. 64 KiB covers any
	// datagram the relay can legally send.
	udpBufferSize = 65536

	// udpReadTimeout bounds each blocking read purely so shutdown is
	// observable; a timeout is not an error.
	udpReadTimeout = 100 * time.Millisecond
)

// MediaTransport is the connectionless data-plane channel carrying
// real-time encoded audio to and from the relay server. The remote
// address is resolved once at connect time; Send is fire-and-forget.
type MediaTransport struct {
	server    string
	port      int
	localPort int

	conn    *net.UDPConn
	remote  *net.UDPAddr
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	onData  func(data []byte)
	onError func(err error)
}

// NewMediaTransport creates a media transport targeting the given relay
// server and port. localPort 0 binds an ephemeral local port. Callbacks
// must be set before Connect.
func NewMediaTransport(server string, port, localPort int) (*MediaTransport, error) {
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return &MediaTransport{
		server:    server,
		port:      port,
		localPort: localPort,
		done:      make(chan struct{}),
	}, nil
}

// SetDataCallback sets the callback receiving the payload bytes of every
// datagram, already stripped of buffer padding.
func (t *MediaTransport) SetDataCallback(cb func(data []byte)) { t.onData = cb }

// SetErrorCallback sets the callback for fatal receive errors.
func (t *MediaTransport) SetErrorCallback(cb func(err error)) { t.onError = cb }

// Connect resolves the remote address, binds the local socket and starts
// the receive loop.
func (t *MediaTransport) Connect() error {
	if t.running.Load() {
		return ErrAlreadyConnected
	}

	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(t.server, strconv.Itoa(t.port)))
	if err != nil {
		return fmt.Errorf("resolve relay address: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: t.localPort})
	if err != nil {
		return fmt.Errorf("bind local port %d: %w", t.localPort, err)
	}

	// Best effort; kernels may clamp these.
	_ = conn.SetReadBuffer(udpBufferSize)
	_ = conn.SetWriteBuffer(udpBufferSize)

	t.conn = conn
	t.remote = remote
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.running.Store(true)

	go t.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function":   "MediaTransport.Connect",
		"remote":     remote.String(),
		"local_port": t.LocalPort(),
	}).Info("Media transport connected")

	return nil
}

// Send transmits one datagram to the relay. Fails when the channel is
// not connected; delivery is not acknowledged.
func (t *MediaTransport) Send(data []byte) error {
	if !t.running.Load() {
		return ErrNotConnected
	}
	_, err := t.conn.WriteToUDP(data, t.remote)
	return err
}

// IsRunning reports whether the transport is connected.
func (t *MediaTransport) IsRunning() bool {
	return t.running.Load()
}

// LocalPort returns the bound local port, or -1 when not connected.
func (t *MediaTransport) LocalPort() int {
	if t.conn == nil {
		return -1
	}
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// RemoteAddr returns the resolved relay address, or "" when not
// connected.
func (t *MediaTransport) RemoteAddr() string {
	if t.remote == nil {
		return ""
	}
	return t.remote.String()
}

// Close cancels the pending receive, closes the socket and waits for the
// receive loop to exit. Safe to call on an unconnected transport.
func (t *MediaTransport) Close() error {
	if !t.running.Swap(false) {
		return nil
	}
	t.cancel()
	err := t.conn.Close()
	<-t.done

	logrus.WithFields(logrus.Fields{
		"function": "MediaTransport.Close",
	}).Info("Media transport closed")
	return err
}

// receiveLoop blocks on reads until the transport closes. Transient
// timeouts continue the loop; a fatal error is reported only while the
// channel is still marked active, then the loop exits.
func (t *MediaTransport) receiveLoop() {
	defer close(t.done)

	buf := make([]byte, udpBufferSize)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if t.running.Load() {
				if t.onError != nil {
					t.onError(fmt.Errorf("media receive failed: %w", err))
				}
				logrus.WithFields(logrus.Fields{
					"function": "MediaTransport.receiveLoop",
					"error":    err.Error(),
				}).Error("Media receive loop terminated")
			}
			return
		}
		if n == 0 || t.onData == nil {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		t.onData(payload)
	}
}
