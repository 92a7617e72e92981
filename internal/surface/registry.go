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

// Package surface implements the Surface Registry of spec §4.3: a
// ConnectionId → SurfaceHandle map supporting O(1) register/unregister,
// capability-filtered broadcast, and directed send. Handles live in one
// csync.Map guarded by a single RWMutex; a broadcast holds its read lock
// for the whole iteration, and each delivery is a non-blocking try-send.
package surface

import (
	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/csync"
	"github.com/yollayah/conductor/internal/log"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/yid"
)

// SlowSurfaceThreshold is the number of consecutive full-send failures
// before a handle is evicted, per §4.3 ("default 64").
const SlowSurfaceThreshold = 64

// Sender is the minimal outbound capability a Transport driver must expose
// for the registry to deliver to it. Both transport.InProcess and
// transport.StreamSocket satisfy this via their Deliver method.
type Sender interface {
	Deliver(msg protocol.ConductorMessage) error
}

// Handle is one registered Surface connection.
type Handle struct {
	ID           yid.ConnectionID
	Kind         protocol.SurfaceKind
	Capabilities protocol.Capability
	sender       Sender

	consecutiveFullSends int
}

// Registry maintains the ConnectionId → Handle map and broadcast/send_to
// operations.
type Registry struct {
	handles *csync.Map[yid.ConnectionID, *Handle]
	log     *zap.Logger

	evicted *csync.Slice[yid.ConnectionID] // bookkeeping for Stats()
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		handles: csync.NewMap[yid.ConnectionID, *Handle](),
		log:     log.With(zap.String("component", "surface.registry")),
		evicted: csync.NewSlice[yid.ConnectionID](),
	}
}

// Register assigns a fresh, unpredictable ConnectionID to sender and
// returns the resulting Handle. O(1).
func (r *Registry) Register(kind protocol.SurfaceKind, caps protocol.Capability, sender Sender) *Handle {
	h := &Handle{
		ID:           yid.NewConnectionID(),
		Kind:         kind,
		Capabilities: caps,
		sender:       sender,
	}
	r.handles.Set(h.ID, h)
	return h
}

// Unregister removes a Handle. O(1). The caller's Transport.Close (which
// drops the outbound queue) is a separate, caller-driven step; Unregister
// only removes the registry entry.
func (r *Registry) Unregister(id yid.ConnectionID) {
	r.handles.Delete(id)
}

// SendTo delivers msg to exactly one connection.
func (r *Registry) SendTo(id yid.ConnectionID, msg protocol.ConductorMessage) error {
	h, ok := r.handles.Get(id)
	if !ok {
		return nil
	}
	return r.deliverOne(h, msg)
}

// Broadcast delivers msg to every registered Handle whose Capabilities
// satisfy msg's required capability, attempting a non-blocking send on each
// outbound queue. Broadcast never blocks the caller on any slow surface:
// a full queue only increments that handle's counter.
func (r *Registry) Broadcast(msg protocol.ConductorMessage) {
	required := protocol.RequiredCapability(msg.Kind)
	var toEvict []yid.ConnectionID

	r.handles.Seq(func(id yid.ConnectionID, h *Handle) bool {
		if !h.Capabilities.Has(required) {
			return true
		}
		if err := r.deliverOne(h, msg); err != nil {
			if h.consecutiveFullSends >= SlowSurfaceThreshold {
				toEvict = append(toEvict, id)
			}
		}
		return true
	})

	for _, id := range toEvict {
		r.log.Warn("evicting slow surface", zap.String("connection_id", string(id)))
		r.handles.Delete(id)
		r.evicted.Append(id)
	}
}

func (r *Registry) deliverOne(h *Handle, msg protocol.ConductorMessage) error {
	if err := h.sender.Deliver(msg); err != nil {
		h.consecutiveFullSends++
		return err
	}
	h.consecutiveFullSends = 0
	return nil
}

// Stats summarizes the registry for diagnostics/export.
type Stats struct {
	Connected int
	Evicted   int
}

// Stats returns a snapshot of registry health.
func (r *Registry) Stats() Stats {
	count := 0
	r.handles.Seq(func(yid.ConnectionID, *Handle) bool { count++; return true })
	return Stats{Connected: count, Evicted: r.evicted.Len()}
}
