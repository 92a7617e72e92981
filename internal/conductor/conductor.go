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

// Package conductor implements the Conductor Core of spec §4.9: the single
// event-driven dispatcher that owns the Session, the AvatarState, and every
// in-flight backend/task stream, gluing together the Surface Registry (C3),
// Backend Client (C4), Stream Manager (C5), Command Parser (C6), Task
// System (C7), and Router (C8). Everything it does from its dispatch loop
// is either a constant-time state mutation or a message send; LLM and task
// work happen on their own goroutines and report back through channels the
// loop polls.
package conductor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/avatar"
	"github.com/yollayah/conductor/internal/directive"
	"github.com/yollayah/conductor/internal/log"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/router"
	"github.com/yollayah/conductor/internal/session"
	"github.com/yollayah/conductor/internal/stream"
	"github.com/yollayah/conductor/internal/surface"
	"github.com/yollayah/conductor/internal/task"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/internal/yerrors"
	"github.com/yollayah/conductor/internal/yid"
	"github.com/yollayah/conductor/pkg/backend/ollama"
)

// PollInterval is how often the dispatch loop polls the active Stream
// Manager for new tokens. Terminal input and the render tick are driven by
// the Surface itself; this is the Conductor's own half of the biased
// priority described in §4.10. The Task Manager needs no poll of its own:
// it pushes lifecycle Updates onto its own channel as they happen.
const PollInterval = 15 * time.Millisecond

// DefaultMaxInputLength bounds a single UserMessage's length (§4.9
// "InputTooLarge").
const DefaultMaxInputLength = 16 * 1024

// Backend is the subset of the Backend Client (C4) the Conductor depends
// on; *ollama.Client satisfies it. Declaring it as an interface here, at
// the point of use, keeps the dispatch loop testable without a live Ollama
// server.
type Backend interface {
	Stream(ctx context.Context, model, prompt string, keepAlive time.Duration) (<-chan ollama.StreamingToken, error)
}

// Config configures a Core.
type Config struct {
	Backend            Backend
	Router             *router.Router
	Tasks              *task.Manager
	MaxContextMessages int
	MaxInputLength     int
	KeepAlive          time.Duration
}

type inboundEvent struct {
	connID yid.ConnectionID
	event  protocol.SurfaceEvent
}

// Core is the Conductor's single dispatch loop and the exclusive owner of
// the Session and AvatarState.
type Core struct {
	log *zap.Logger
	cfg Config

	registry *surface.Registry
	sess     *session.Session

	mu    sync.Mutex // guards conns; only Connect/Disconnect write concurrently with Run
	conns map[yid.ConnectionID]transport.Transport

	inbound chan inboundEvent

	// Single-writer turn state; touched only from the Run goroutine.
	avatarState  avatar.State
	activeStream *stream.Manager
	activeCancel context.CancelFunc
	activeModel  yid.ModelID
	parser       *directive.Parser

	trackedTasks   map[yid.TaskID]task.Status
	turnHadTasks   bool
	maxInputLength int
}

// New constructs a Core ready to Run.
func New(cfg Config) *Core {
	maxInput := cfg.MaxInputLength
	if maxInput <= 0 {
		maxInput = DefaultMaxInputLength
	}
	return &Core{
		log:            log.With(zap.String("component", "conductor.core")),
		cfg:            cfg,
		registry:       surface.New(),
		sess:           session.New(cfg.MaxContextMessages),
		conns:          make(map[yid.ConnectionID]transport.Transport),
		inbound:        make(chan inboundEvent, transport.EventQueueCapacity),
		avatarState:    avatar.Default(),
		trackedTasks:   make(map[yid.TaskID]task.Status),
		maxInputLength: maxInput,
	}
}

// Connect registers a new Surface connection and starts forwarding its
// outbound SurfaceEvents into the Core's dispatch loop. It sends an initial
// StateSnapshot directly to the new connection before returning.
func (c *Core) Connect(kind protocol.SurfaceKind, caps protocol.Capability, t transport.Transport) yid.ConnectionID {
	handle := c.registry.Register(kind, caps, t)

	c.mu.Lock()
	c.conns[handle.ID] = t
	c.mu.Unlock()

	go func() {
		for evt := range t.Events() {
			c.inbound <- inboundEvent{connID: handle.ID, event: evt}
		}
	}()

	_ = t.Deliver(protocol.ConductorMessage{
		Kind:           protocol.MsgStateSnapshot,
		SessionID:      c.sess.ID(),
		HistorySummary: fmt.Sprintf("%d messages", len(c.sess.Messages())),
		Avatar:         c.avatarState,
	})

	return handle.ID
}

// Disconnect unregisters a connection. Any in-flight backend stream or task
// continues: both are Session-bound, not surface-bound (§4.9).
func (c *Core) Disconnect(id yid.ConnectionID) {
	c.registry.Unregister(id)
	c.mu.Lock()
	delete(c.conns, id)
	c.mu.Unlock()
}

// Run executes the single dispatch loop until ctx is cancelled.
func (c *Core) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.inbound:
			c.handleEvent(ev.connID, ev.event)
		case evt := <-c.cfg.Tasks.Events():
			c.handleTaskEvent(evt)
		case <-ticker.C:
			c.pollActiveStream()
		}
	}
}

// broadcast is a thin wrapper kept so handler code reads like the spec's
// prose ("broadcast X") rather than routing through the registry directly.
func (c *Core) broadcast(msg protocol.ConductorMessage) {
	c.registry.Broadcast(msg)
}

func (c *Core) notify(level protocol.NotifyLevel, errText string) {
	c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgNotify, Level: level, Message: errText})
}

func (c *Core) notifyTo(id yid.ConnectionID, level protocol.NotifyLevel, errText string) {
	_ = c.registry.SendTo(id, protocol.ConductorMessage{Kind: protocol.MsgNotify, Level: level, Message: errText})
}

// classifyAndNotify turns an error into the appropriate Notify and logs it,
// per §4.9's "Errors:" policy of classifying before surfacing.
func (c *Core) classifyAndNotify(origin yid.ConnectionID, err error) {
	level := protocol.NotifyError
	text := err.Error()
	if cl, ok := yerrors.As(err); ok {
		switch cl.Kind {
		case yerrors.Input, yerrors.Resource:
			level = protocol.NotifyWarn
		}
		text = cl.Error()
	}
	c.log.Warn("surfacing error to origin", zap.String("connection_id", string(origin)), zap.Error(err))
	if origin != "" {
		c.notifyTo(origin, level, text)
		return
	}
	c.notify(level, text)
}

// buildSynthesisPrompt renders a turn's completed task outputs into the
// prompt for the final LLM synthesis turn that aggregation performs per
// §4.7 ("Aggregation itself is one final LLM turn"). The conflict hint
// detected across specialist outputs is folded into the prompt itself,
// rather than discarded, so the model is told when outputs disagree
// instead of being left to notice on its own.
func buildSynthesisPrompt(results []task.Result, hasConflictHint bool) string {
	var b strings.Builder
	b.WriteString("Synthesize one reply from the following specialist task outputs")
	if hasConflictHint {
		b.WriteString(", which disagree with each other in places and should be reconciled or the disagreement flagged")
	}
	b.WriteString(":\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s: %s] ", r.Agent, r.Status)
		if r.Status == task.StatusFailed {
			fmt.Fprintf(&b, "failed: %v", r.Error)
			continue
		}
		b.WriteString(r.Output)
	}
	return b.String()
}

// joinTaskResults joins completed task outputs into a single message with
// no LLM involved, prefixing each with its originating agent and status so
// a conflict between two specialists stays visible rather than being
// silently merged away. It is the explicit degradation path used only when
// the synthesis turn itself (buildSynthesisPrompt + Backend.Stream) cannot
// be started — the spec's "one final LLM turn" can't be honored, but the
// task outputs still shouldn't be lost.
func joinTaskResults(results []task.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s: %s] ", r.Agent, r.Status)
		if r.Status == task.StatusFailed {
			fmt.Fprintf(&b, "failed: %v", r.Error)
			continue
		}
		b.WriteString(r.Output)
	}
	return b.String()
}
