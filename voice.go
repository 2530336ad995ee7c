package wavoice

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wavoice/wavoice/audio"
	"github.com/wavoice/wavoice/packet"
	"github.com/wavoice/wavoice/transport"
)

// DefaultSignalingURL is the fixed local control endpoint of the
// bridging process.
const DefaultSignalingURL = "ws://127.0.0.1:8182"

// maxLossConceal caps how many consecutive missing frames are concealed
// from one sequence gap. Larger gaps sound worse synthesized than
// skipped.
const maxLossConceal = 3

// SessionConfig assembles everything one call session needs. Relay,
// From, To and CallID are filled per call by the handler; the remaining
// fields template the audio and transport wiring.
type SessionConfig struct {
	// Relay carries the extracted relay credentials.
	Relay RelayParams
	// From is the local identity, To the remote caller.
	From, To string
	// CallID identifies the call.
	CallID string
	// CallKey is the optional call master key, base64 text on the wire.
	CallKey []byte
	// SignalingURL overrides DefaultSignalingURL when set.
	SignalingURL string
	// LocalUDPPort pins the media transport's local port; 0 is
	// ephemeral.
	LocalUDPPort int
	// Encoder and Decoder override the default codec primitives
	// (passthrough PCM encode, Opus decode).
	Encoder audio.Encoder
	Decoder audio.Decoder
	// Capture and Playback are the device handles. A nil device skips
	// that direction of the audio pipeline.
	Capture  audio.CaptureDevice
	Playback audio.PlaybackDevice
}

// Session owns the full component graph of one relay call: the signaling
// channel to the local bridge, the UDP channel to the relay, and both
// audio pipelines. Nothing is shared across concurrent calls.
//
// Data flow: captured audio → frame encoder → ENCODE packet → signaling;
// signaling ENCODE → relay UDP; relay UDP → DECODE packet → signaling;
// signaling MEDIA → frame decoder → playback queue.
type Session struct {
	cfg       SessionConfig
	relayAddr IPPort

	signaling *transport.SignalingClient
	media     *transport.MediaTransport

	frameEncoder *audio.FrameEncoder
	frameDecoder *audio.FrameDecoder
	recorder     *audio.Recorder
	player       *audio.Player

	mu      sync.Mutex
	started bool
	stopped bool
	lastSeq uint32
	haveSeq bool

	stopOnce sync.Once
}

// NewSession validates the relay parameters and builds an unstarted
// session. A relay address that does not decode is a hard failure: the
// caller must not proceed with relay setup.
func NewSession(cfg SessionConfig) (*Session, error) {
	addr, err := ParseIPPort(cfg.Relay.Address)
	if err != nil {
		return nil, fmt.Errorf("relay address: %w", err)
	}

	if cfg.SignalingURL == "" {
		cfg.SignalingURL = DefaultSignalingURL
	}
	if cfg.Encoder == nil {
		cfg.Encoder = audio.NewPCMEncoder()
	}
	if cfg.Decoder == nil {
		cfg.Decoder = audio.NewOpusDecoder()
	}

	return &Session{
		cfg:       cfg,
		relayAddr: addr,
	}, nil
}

// RelayAddr returns the decoded relay endpoint.
func (s *Session) RelayAddr() IPPort {
	return s.relayAddr
}

// CallID returns the call this session belongs to.
func (s *Session) CallID() string {
	return s.cfg.CallID
}

// Start connects the signaling channel. Once it reports connected, the
// session opens the media transport, starts the audio pipelines and
// sends the CONNECT packet.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionRunning
	}
	s.started = true
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Session.Start",
		"call_id":  s.cfg.CallID,
		"relay":    s.relayAddr.String(),
	}).Info("Starting call session")

	s.wireAudio()

	s.signaling = transport.NewSignalingClient(s.cfg.SignalingURL, transport.SignalingCallbacks{
		OnConnected: s.handleSignalingConnected,
		OnBinary:    s.handleSignalingBinary,
		OnText: func(message string) {
			logrus.WithFields(logrus.Fields{
				"function": "Session.OnText",
				"call_id":  s.cfg.CallID,
				"message":  message,
			}).Debug("Signaling text message")
		},
		OnDisconnected: func(code int, reason string, remote bool) {
			logrus.WithFields(logrus.Fields{
				"function": "Session.OnDisconnected",
				"call_id":  s.cfg.CallID,
				"code":     code,
				"reason":   reason,
				"remote":   remote,
			}).Info("Signaling channel closed")
			if remote {
				s.Stop()
			}
		},
		OnError: func(err error) {
			logrus.WithFields(logrus.Fields{
				"function": "Session.OnError",
				"call_id":  s.cfg.CallID,
				"error":    err.Error(),
			}).Error("Signaling channel error")
		},
	})

	return s.signaling.Connect()
}

// Stop tears the session down: audio loops first, then the media
// transport, then the signaling transport — never the reverse, so
// nothing writes to a half-closed channel. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Stop",
			"call_id":  s.cfg.CallID,
		}).Info("Stopping call session")

		// The stopped flag closes the window where a terminate races the
		// connect callback: once set, the callback wires nothing further.
		s.mu.Lock()
		s.stopped = true
		recorder, player, media, signaling := s.recorder, s.player, s.media, s.signaling
		s.mu.Unlock()

		if recorder != nil {
			recorder.Stop()
		}
		if player != nil {
			player.Stop()
		}
		if media != nil {
			_ = media.Close()
		}
		if signaling != nil {
			_ = signaling.Close()
		}
	})
}

// wireAudio builds the frame codecs and, where devices were provided,
// the capture and playback pipelines.
func (s *Session) wireAudio() {
	s.frameEncoder = audio.NewFrameEncoder(s.cfg.Encoder)
	s.frameEncoder.SetFrameCallback(s.sendEncodedFrame)
	s.frameEncoder.SetErrorCallback(func(err error) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.wireAudio",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("Encode failure, frame dropped")
	})

	s.frameDecoder = audio.NewFrameDecoder(s.cfg.Decoder)
	s.frameDecoder.SetErrorCallback(func(err error) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.wireAudio",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("Decode failure, frame dropped")
	})

	if s.cfg.Playback != nil {
		s.player = audio.NewPlayer(s.cfg.Playback)
		s.frameDecoder.SetPCMCallback(func(pcm []byte, sampleCount int, timestampMs uint64) {
			s.player.Enqueue(pcm)
		})
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Session.wireAudio",
			"call_id":  s.cfg.CallID,
		}).Warn("No playback device, inbound audio will be discarded")
	}

	if s.cfg.Capture != nil {
		s.recorder = audio.NewRecorder(s.cfg.Capture, s.frameEncoder)
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Session.wireAudio",
			"call_id":  s.cfg.CallID,
		}).Warn("No capture device, no outbound audio will be sent")
	}
}

// handleSignalingConnected runs once the duplex channel is up: open the
// media transport, start the audio loops, then announce the call with a
// CONNECT packet.
func (s *Session) handleSignalingConnected() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	media, err := transport.NewMediaTransport(s.relayAddr.IP, s.relayAddr.Port, s.cfg.LocalUDPPort)
	if err == nil {
		media.SetDataCallback(s.forwardRelayData)
		media.SetErrorCallback(func(err error) {
			logrus.WithFields(logrus.Fields{
				"function": "Session.handleSignalingConnected",
				"call_id":  s.cfg.CallID,
				"error":    err.Error(),
			}).Error("Media transport failure")
		})
		err = media.Connect()
	}
	if err != nil {
		// The call stays up for signaling; only the media path is lost.
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleSignalingConnected",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Error("Media transport setup failed")
	} else {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = media.Close()
			return
		}
		s.media = media
		s.mu.Unlock()
	}

	if s.player != nil {
		if err := s.player.Start(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.handleSignalingConnected",
				"call_id":  s.cfg.CallID,
				"error":    err.Error(),
			}).Error("Playback start failed")
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Start(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.handleSignalingConnected",
				"call_id":  s.cfg.CallID,
				"error":    err.Error(),
			}).Error("Capture start failed")
		}
	}

	s.sendConnect()
}

// sendConnect builds and sends the one CONNECT packet establishing the
// relay session with the bridge.
func (s *Session) sendConnect() {
	connect := &packet.ConnectPacket{
		Server:    s.relayAddr.IP,
		Port:      int32(s.relayAddr.Port),
		Sender:    s.cfg.From,
		Receiver:  s.cfg.To,
		CallID:    s.cfg.CallID,
		Token:     base64.StdEncoding.EncodeToString(s.cfg.Relay.Token),
		Password:  s.cfg.Relay.Key,
		MasterKey: base64.StdEncoding.EncodeToString(s.cfg.CallKey),
	}

	data, err := packet.Marshal(connect)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.sendConnect",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Error("CONNECT packet marshal failed")
		return
	}
	if !s.signaling.SendBinary(data) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.sendConnect",
			"call_id":  s.cfg.CallID,
		}).Error("CONNECT packet send failed, channel not open")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Session.sendConnect",
		"call_id":  s.cfg.CallID,
		"server":   s.relayAddr.String(),
	}).Info("CONNECT packet sent")
}

// handleSignalingBinary is the receive side of the packet multiplexer:
// decode the packet and route by discriminant. Malformed bytes drop the
// message, never the loop.
func (s *Session) handleSignalingBinary(data []byte) {
	p, err := packet.Unmarshal(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleSignalingBinary",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("Dropping malformed packet")
		return
	}

	switch v := p.(type) {
	case *packet.EncodePacket:
		s.forwardToRelay(v.Data)
	case *packet.MediaPacket:
		s.handleMedia(v)
	default:
		// CONNECT and DECODE are outbound-only on this path.
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleSignalingBinary",
			"call_id":  s.cfg.CallID,
			"type":     p.Type().String(),
		}).Debug("Unexpected packet type on receive path")
	}
}

// forwardToRelay sends an encoded frame's payload to the relay verbatim.
func (s *Session) forwardToRelay(data []byte) {
	s.mu.Lock()
	media := s.media
	s.mu.Unlock()
	if media == nil {
		return
	}
	if err := media.Send(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.forwardToRelay",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("Relay send failed")
	}
}

// handleMedia feeds an inbound media payload to the decode pipeline. A
// jump in the sequence number conceals up to maxLossConceal missing
// frames first; nothing is reordered or deduplicated.
func (s *Session) handleMedia(m *packet.MediaPacket) {
	s.mu.Lock()
	if s.haveSeq && m.Seq > s.lastSeq+1 {
		gap := m.Seq - s.lastSeq - 1
		if gap > maxLossConceal {
			gap = maxLossConceal
		}
		for i := uint32(0); i < gap; i++ {
			s.frameDecoder.ConcealLoss()
		}
	}
	if m.Seq != 0 || !s.haveSeq {
		s.lastSeq = m.Seq
		s.haveSeq = true
	}
	s.mu.Unlock()

	s.frameDecoder.Decode(m.Data)
}

// forwardRelayData wraps bytes arriving from the relay into a DECODE
// packet for the bridge.
func (s *Session) forwardRelayData(data []byte) {
	buf, err := packet.Marshal(&packet.DecodePacket{Data: data})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.forwardRelayData",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("DECODE packet marshal failed")
		return
	}
	if !s.signaling.SendBinary(buf) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.forwardRelayData",
			"call_id":  s.cfg.CallID,
		}).Debug("Signaling channel not open, relay data dropped")
	}
}

// sendEncodedFrame wraps one locally encoded frame into an ENCODE packet
// for the bridge.
func (s *Session) sendEncodedFrame(encoded []byte, timestampMs uint64) {
	buf, err := packet.Marshal(&packet.EncodePacket{Data: encoded})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.sendEncodedFrame",
			"call_id":  s.cfg.CallID,
			"error":    err.Error(),
		}).Warn("ENCODE packet marshal failed")
		return
	}
	if !s.signaling.SendBinary(buf) {
		logrus.WithFields(logrus.Fields{
			"function":     "Session.sendEncodedFrame",
			"call_id":      s.cfg.CallID,
			"timestamp_ms": timestampMs,
		}).Debug("Signaling channel not open, frame dropped")
	}
}
