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
	"sync"

	"github.com/yollayah/conductor/internal/protocol"
)

// InProcess is the in-process Transport driver of §4.2: two bounded FIFO
// queues, one per direction, with try-send enqueue. Values flow by move;
// there is never serialization or checksumming.
type InProcess struct {
	events   chan protocol.SurfaceEvent
	messages chan protocol.ConductorMessage

	closeOnce sync.Once
	closed    chan struct{}
}

// NewInProcess constructs an InProcess transport with the default queue
// capacities (event queue 100, outbound message queue 256).
func NewInProcess() *InProcess {
	return &InProcess{
		events:   make(chan protocol.SurfaceEvent, EventQueueCapacity),
		messages: make(chan protocol.ConductorMessage, MessageQueueCapacity),
		closed:   make(chan struct{}),
	}
}

// Send enqueues a SurfaceEvent, the Surface-to-Conductor direction.
func (t *InProcess) Send(evt protocol.SurfaceEvent) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	select {
	case t.events <- evt:
		return nil
	default:
		return ErrBackpressure
	}
}

// Events exposes the Surface-to-Conductor queue for the Conductor side.
func (t *InProcess) Events() <-chan protocol.SurfaceEvent {
	return t.events
}

// Deliver enqueues a ConductorMessage, the Conductor-to-Surface direction.
func (t *InProcess) Deliver(msg protocol.ConductorMessage) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	select {
	case t.messages <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Recv exposes the Conductor-to-Surface queue for the Surface side.
func (t *InProcess) Recv() <-chan protocol.ConductorMessage {
	return t.messages
}

// Close releases both queues and unblocks any Recv/Events range loops.
func (t *InProcess) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		close(t.events)
		close(t.messages)
	})
	return nil
}

var _ Transport = (*InProcess)(nil)
