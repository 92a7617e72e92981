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

// Package transport implements the Transport of spec §4.2: a uniform
// send(SurfaceEvent)/recv()->ConductorMessage/close() contract with two
// drivers — an in-process driver (typed channels, zero-copy) and a
// stream-socket driver (framed bytes, see internal/frame). Both drivers
// satisfy the same Transport interface so the Conductor and Surfaces never
// distinguish them.
package transport

import (
	"errors"

	"github.com/yollayah/conductor/internal/protocol"
)

// ErrBackpressure is returned by Send when the outbound queue is full. Per
// §4.2, enqueue is try-send: the producer reports Backpressure rather than
// blocking.
var ErrBackpressure = errors.New("transport: backpressure")

// ErrClosed is returned by Send/Deliver after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is the uniform contract implemented by the in-process and
// stream-socket drivers.
type Transport interface {
	// Send enqueues a SurfaceEvent for the Conductor. Never blocks; returns
	// ErrBackpressure if the event queue is full.
	Send(evt protocol.SurfaceEvent) error
	// Recv returns a channel of ConductorMessages delivered to this
	// connection, in enqueue order. The channel is closed on Close.
	Recv() <-chan protocol.ConductorMessage
	// Deliver enqueues a ConductorMessage for delivery to this connection's
	// Recv channel. Never blocks; returns ErrBackpressure if the outbound
	// queue is full.
	Deliver(msg protocol.ConductorMessage) error
	// Events returns a channel of SurfaceEvents sent by this connection, for
	// the Conductor side to consume.
	Events() <-chan protocol.SurfaceEvent
	// Close releases both queues. Idempotent.
	Close() error
}

// Default queue capacities, per §4.2 and §5's resource policy.
const (
	EventQueueCapacity    = 100
	MessageQueueCapacity  = 256
)
