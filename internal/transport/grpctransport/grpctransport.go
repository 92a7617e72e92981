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

// Package grpctransport implements the gRPC bidi-stream Transport driver of
// §4.2: the same send/recv/close contract internal/transport's StreamSocket
// gives a Unix domain socket, but network-transparent for a Surface and
// Conductor running on separate hosts. The wire payload is the identical
// JSON envelope StreamSocket uses, carried inside a well-known
// wrapperspb.BytesValue so the service needs no project-specific .proto or
// generated code: one stable protobuf message is enough to get gRPC's
// framing, HTTP/2 multiplexing, and TLS/auth machinery for free.
package grpctransport

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/transport"
)

// StreamMethod is the fully-qualified RPC method name this package's
// ServiceDesc registers and the client dials.
const StreamMethod = "/yollayah.transport.v1.ConductorStream/Stream"

var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	Handler:       streamHandler,
	ServerStreams: true,
	ClientStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "yollayah.transport.v1.ConductorStream",
	HandlerType: (*any)(nil),
	Streams:     []grpc.StreamDesc{streamDesc},
}

// Accepter receives one Transport per accepted RPC call, mirroring how the
// daemon's net.Listener.Accept loop hands a fresh StreamSocket to the
// Conductor for each Unix-socket connection.
type Accepter func(*Transport)

type server struct{ accept Accepter }

func streamHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*server)
	tr := newTransport(stream)
	s.accept(tr)
	<-tr.closed
	return nil
}

// Register attaches the ConductorStream service to an existing grpc.Server.
func Register(s *grpc.Server, accept Accepter) {
	s.RegisterService(&serviceDesc, &server{accept: accept})
}

// Dial opens one ConductorStream RPC over an already-established
// grpc.ClientConn and returns its Transport. The caller owns cc's lifecycle
// (including reconnection); closing the returned Transport only ends this
// one stream.
func Dial(ctx context.Context, cc *grpc.ClientConn) (*Transport, error) {
	cs, err := cc.NewStream(ctx, &streamDesc, StreamMethod)
	if err != nil {
		return nil, err
	}
	return newTransport(cs), nil
}

// wireStream is satisfied by both grpc.ServerStream and grpc.ClientStream,
// letting Transport treat the accept and dial sides identically.
type wireStream interface {
	Context() context.Context
	SendMsg(m any) error
	RecvMsg(m any) error
}

type envelopeKind string

const (
	envelopeEvent   envelopeKind = "event"
	envelopeMessage envelopeKind = "message"
)

// envelope mirrors internal/transport's StreamSocket wire format exactly,
// field for field, so the two drivers are interchangeable for anything that
// only cares about the logical SurfaceEvent/ConductorMessage stream.
type envelope struct {
	Kind    envelopeKind               `json:"kind"`
	Event   *protocol.SurfaceEvent     `json:"event,omitempty"`
	Message *protocol.ConductorMessage `json:"message,omitempty"`
}

// Transport adapts a gRPC bidi stream to the Transport contract of §4.2.
type Transport struct {
	stream wireStream

	events   chan protocol.SurfaceEvent
	messages chan protocol.ConductorMessage
	writeCh  chan envelope

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

func newTransport(s wireStream) *Transport {
	t := &Transport{
		stream:   s,
		events:   make(chan protocol.SurfaceEvent, transport.EventQueueCapacity),
		messages: make(chan protocol.ConductorMessage, transport.MessageQueueCapacity),
		writeCh:  make(chan envelope, transport.MessageQueueCapacity),
		closed:   make(chan struct{}),
	}
	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	return t
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Send enqueues a SurfaceEvent for transmission over the stream.
func (t *Transport) Send(evt protocol.SurfaceEvent) error {
	return t.enqueue(envelope{Kind: envelopeEvent, Event: &evt})
}

// Deliver enqueues a ConductorMessage for transmission over the stream.
func (t *Transport) Deliver(msg protocol.ConductorMessage) error {
	return t.enqueue(envelope{Kind: envelopeMessage, Message: &msg})
}

func (t *Transport) enqueue(env envelope) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	select {
	case t.writeCh <- env:
		return nil
	default:
		return transport.ErrBackpressure
	}
}

// Events returns decoded inbound SurfaceEvents.
func (t *Transport) Events() <-chan protocol.SurfaceEvent { return t.events }

// Recv returns decoded inbound ConductorMessages.
func (t *Transport) Recv() <-chan protocol.ConductorMessage { return t.messages }

// Close ends the stream. Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		if cs, ok := t.stream.(grpc.ClientStream); ok {
			_ = cs.CloseSend()
		}
	})
	return nil
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.closed:
			return
		case env := <-t.writeCh:
			payload, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := t.stream.SendMsg(wrapperspb.Bytes(payload)); err != nil {
				t.Close()
				return
			}
		}
	}
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.events)
	defer close(t.messages)
	for {
		var msg wrapperspb.BytesValue
		if err := t.stream.RecvMsg(&msg); err != nil {
			t.Close()
			return
		}

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			continue
		}

		switch env.Kind {
		case envelopeEvent:
			if env.Event == nil {
				continue
			}
			select {
			case t.events <- *env.Event:
			default:
			}
		case envelopeMessage:
			if env.Message == nil {
				continue
			}
			select {
			case t.messages <- *env.Message:
			default:
			}
		}
	}
}

var _ transport.Transport = (*Transport)(nil)
