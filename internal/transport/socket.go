// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/frame"
	"github.com/yollayah/conductor/internal/log"
	"github.com/yollayah/conductor/internal/protocol"
)

// HeartbeatInterval is how often a StreamSocket sends a Ping, per §4.2.
const HeartbeatInterval = 10 * time.Second

// MissedPongsBeforeDead is how many consecutive missed Pongs before the
// connection is declared dead and closed, per §4.2 ("missing 3 pongs").
const MissedPongsBeforeDead = 3

type envelopeKind string

const (
	envelopeEvent     envelopeKind = "event"
	envelopeMessage   envelopeKind = "message"
)

// envelope is the canonical textual encoding wrapping a single SurfaceEvent
// or ConductorMessage on the wire (§4.1: "stable field names, deterministic
// ordering"). JSON gives both for free over a Go struct: field order is
// fixed by declaration order and names never change between encode calls.
type envelope struct {
	Kind    envelopeKind                `json:"kind"`
	Event   *protocol.SurfaceEvent      `json:"event,omitempty"`
	Message *protocol.ConductorMessage  `json:"message,omitempty"`
}

// StreamSocket is the stream-socket Transport driver of §4.2: a dedicated
// read task and write task around one bidirectional byte stream (a Unix
// domain socket in the reference deployment; the same logic works for any
// net.Conn, including TCP/TLS).
type StreamSocket struct {
	conn  net.Conn
	codec frame.Codec
	log   *zap.Logger

	events   chan protocol.SurfaceEvent
	messages chan protocol.ConductorMessage
	writeCh  chan []byte

	missedPongs int
	pongMu      sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewStreamSocket wraps an already-connected net.Conn (accepted by the
// daemon's listener, or dialed by a client) and starts its read/write
// tasks and heartbeat.
func NewStreamSocket(conn net.Conn, maxFrame int) *StreamSocket {
	s := &StreamSocket{
		conn:     conn,
		codec:    frame.New(maxFrame),
		log:      log.With(zap.String("component", "transport.socket")),
		events:   make(chan protocol.SurfaceEvent, EventQueueCapacity),
		messages: make(chan protocol.ConductorMessage, MessageQueueCapacity),
		writeCh:  make(chan []byte, MessageQueueCapacity),
		closed:   make(chan struct{}),
	}
	s.wg.Add(3)
	go s.readLoop()
	go s.writeLoop()
	go s.heartbeatLoop()
	return s
}

func (s *StreamSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Send enqueues a SurfaceEvent for transmission over the wire.
func (s *StreamSocket) Send(evt protocol.SurfaceEvent) error {
	return s.enqueue(envelope{Kind: envelopeEvent, Event: &evt})
}

// Deliver enqueues a ConductorMessage for transmission over the wire.
func (s *StreamSocket) Deliver(msg protocol.ConductorMessage) error {
	return s.enqueue(envelope{Kind: envelopeMessage, Message: &msg})
}

func (s *StreamSocket) enqueue(env envelope) error {
	if s.isClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encoding envelope: %w", err)
	}
	select {
	case s.writeCh <- payload:
		return nil
	default:
		return ErrBackpressure
	}
}

// Events returns decoded inbound SurfaceEvents.
func (s *StreamSocket) Events() <-chan protocol.SurfaceEvent { return s.events }

// Recv returns decoded inbound ConductorMessages.
func (s *StreamSocket) Recv() <-chan protocol.ConductorMessage { return s.messages }

// Done returns a channel that is closed once this connection has shut down,
// used by DialReconnecting to know when to attempt a fresh connection.
func (s *StreamSocket) Done() <-chan struct{} { return s.closed }

// Close shuts the connection down and stops all tasks. Idempotent.
func (s *StreamSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}

func (s *StreamSocket) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.writeCh:
			if err := s.codec.Encode(s.conn, payload); err != nil {
				s.log.Warn("write failed, closing connection", zap.Error(err))
				s.Close()
				return
			}
		}
	}
}

func (s *StreamSocket) readLoop() {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.messages)
	for {
		payload, err := s.codec.Decode(s.conn)
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrTooLarge):
				// Potentially adversarial: close the connection outright.
				s.log.Warn("oversize frame, closing connection", zap.Error(err))
				s.Close()
				return
			case errors.Is(err, frame.ErrChecksumMismatch):
				if s.isClosed() {
					return
				}
				s.log.Warn("dropping malformed frame", zap.Error(err))
				continue
			case errors.Is(err, frame.ErrTruncated):
				// A short/EOF read is a connection-level event, not a single
				// bad payload (frame.Decode's own doc comment draws this
				// line): a cleanly closed net.Conn keeps returning EOF on
				// every call, so treating this as "drop frame, continue"
				// busy-spins until the heartbeat incidentally notices. Close
				// now so DialReconnecting's <-sock.Done() fires immediately.
				if !s.isClosed() {
					s.log.Warn("truncated read, closing connection", zap.Error(err))
				}
				s.Close()
				return
			default:
				// Transient I/O error or the connection was closed locally.
				s.Close()
				return
			}
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.log.Warn("dropping undecodable payload", zap.Error(err))
			continue
		}

		switch env.Kind {
		case envelopeEvent:
			if env.Event == nil {
				continue
			}
			if env.Event.Kind == protocol.EventHeartbeatPong {
				s.pongMu.Lock()
				s.missedPongs = 0
				s.pongMu.Unlock()
				continue
			}
			if env.Event.Kind == protocol.EventHeartbeatPing {
				_ = s.Send(protocol.SurfaceEvent{Kind: protocol.EventHeartbeatPong})
				continue
			}
			select {
			case s.events <- *env.Event:
			default:
				s.log.Warn("events queue full, dropping inbound event")
			}
		case envelopeMessage:
			if env.Message == nil {
				continue
			}
			select {
			case s.messages <- *env.Message:
			default:
				s.log.Warn("messages queue full, dropping inbound message")
			}
		}
	}
}

func (s *StreamSocket) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.pongMu.Lock()
			s.missedPongs++
			dead := s.missedPongs > MissedPongsBeforeDead
			s.pongMu.Unlock()
			if dead {
				s.log.Warn("peer missed heartbeats, declaring dead", zap.Int("missed", MissedPongsBeforeDead))
				s.Close()
				return
			}
			if err := s.Send(protocol.SurfaceEvent{Kind: protocol.EventHeartbeatPing}); err != nil {
				s.log.Warn("heartbeat send failed", zap.Error(err))
			}
		}
	}
}

var _ Transport = (*StreamSocket)(nil)
