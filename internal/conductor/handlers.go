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

package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/avatar"
	"github.com/yollayah/conductor/internal/directive"
	"github.com/yollayah/conductor/internal/message"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/pubsub"
	"github.com/yollayah/conductor/internal/stream"
	"github.com/yollayah/conductor/internal/task"
	"github.com/yollayah/conductor/internal/yerrors"
	"github.com/yollayah/conductor/internal/yid"
)

func (c *Core) handleEvent(origin yid.ConnectionID, evt protocol.SurfaceEvent) {
	switch evt.Kind {
	case protocol.EventUserMessage:
		c.handleUserMessage(origin, evt.Content)
	case protocol.EventUserCancelled:
		c.handleCancel()
	case protocol.EventClearHistory:
		c.sess.Clear()
		c.notify(protocol.NotifyInfo, "history cleared")
	case protocol.EventChangeModel:
		c.activeModel = evt.Model
		c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgModelChanged, Model: evt.Model})
	case protocol.EventExportConversation:
		c.handleExport(origin, evt.Format)
	case protocol.EventDisconnected:
		c.Disconnect(origin)
	case protocol.EventHandshake, protocol.EventConnected,
		protocol.EventHeartbeatPing, protocol.EventHeartbeatPong,
		protocol.EventUserTyping, protocol.EventUserScrolled, protocol.EventResized:
		// Handled at the transport layer, or carry no server-side state.
	default:
		c.log.Debug("unhandled surface event", zap.Int("kind", int(evt.Kind)))
	}
}

// handleUserMessage implements §4.9's UserMessage handler.
func (c *Core) handleUserMessage(origin yid.ConnectionID, text string) {
	if len(text) == 0 {
		return
	}
	if len(text) > c.maxInputLength {
		c.classifyAndNotify(origin, yerrors.InputErr("message of %d bytes exceeds the %d byte limit", len(text), c.maxInputLength))
		return
	}
	if c.activeStream != nil {
		c.classifyAndNotify(origin, yerrors.ResourceErr("already generating a response"))
		return
	}

	c.sess.Append(message.NewComplete(c.sess.ID(), message.User, text))

	requested := c.activeModel
	decision := c.cfg.Router.Route(text, requested)

	ctx, cancel := context.WithCancel(context.Background())
	tokens, err := c.cfg.Backend.Stream(ctx, string(decision.Model), text, c.cfg.KeepAlive)
	if err != nil {
		cancel()
		c.cfg.Router.RecordOutcome(decision.Model, false)
		c.classifyAndNotify(origin, yerrors.BackendErr("backend unavailable: %w", err))
		return
	}

	active, err := c.sess.BeginAssistantMessage()
	if err != nil {
		cancel()
		c.classifyAndNotify(origin, err)
		return
	}

	c.activeStream = stream.New(tokens)
	c.activeCancel = cancel
	c.activeModel = decision.Model
	c.parser = directive.New()
	c.turnHadTasks = false

	c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgStreamStart, MessageID: active.ID()})
}

// handleCancel implements §4.9's UserCancelled handler.
func (c *Core) handleCancel() {
	if c.activeStream == nil {
		return
	}
	if c.activeCancel != nil {
		c.activeCancel()
	}
	active := c.sess.ActiveMessage()
	var messageID yid.MessageID
	if active != nil {
		messageID = active.ID()
	}
	c.sess.FinishActive(message.ResponseMetadata{FinishReason: message.FinishReasonCanceled})
	c.clearActiveStream()
	c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgStreamEnd, MessageID: messageID})
}

func (c *Core) clearActiveStream() {
	c.activeStream = nil
	c.activeCancel = nil
	c.parser = nil
}

// pollActiveStream implements the internal Token/StreamEnd handlers of
// §4.9, driven by the Run loop's poll tick rather than a dedicated channel
// case, since stream.Manager.Poll is itself non-blocking.
func (c *Core) pollActiveStream() {
	if c.activeStream == nil {
		return
	}
	active := c.sess.ActiveMessage()
	if active == nil {
		c.clearActiveStream()
		return
	}

	for _, ev := range c.activeStream.Poll() {
		switch ev.Kind {
		case stream.EvToken:
			c.handleStreamToken(active, ev.Text)
		case stream.EvComplete:
			c.finishStream(active, message.FinishReasonComplete, "", ev)
			return
		case stream.EvError:
			errText := "stream truncated"
			if ev.Err != nil {
				errText = ev.Err.Error()
			}
			c.finishStream(active, message.FinishReasonError, errText, ev)
			return
		}
	}
}

func (c *Core) handleStreamToken(active *message.Message, text string) {
	for _, item := range c.parser.Feed(text) {
		switch item.Kind {
		case directive.ItemText:
			if item.Text == "" {
				continue
			}
			active.AppendToken(item.Text)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgToken, MessageID: active.ID(), Text: item.Text})
		case directive.ItemDirective:
			c.applyDirective(item.Directive)
		}
	}
}

func (c *Core) finishStream(active *message.Message, reason message.FinishReason, errText string, ev stream.Event) {
	for _, item := range c.parser.Flush() {
		if item.Kind == directive.ItemText && item.Text != "" {
			active.AppendToken(item.Text)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgToken, MessageID: active.ID(), Text: item.Text})
		}
	}

	c.cfg.Router.RecordOutcome(c.activeModel, reason == message.FinishReasonComplete)

	meta := message.ResponseMetadata{
		ModelID:           c.activeModel,
		TokenCount:        ev.Stats.EvalCount,
		FinishReason:      reason,
		AgentTasksSpawned: len(c.trackedTasks),
	}
	c.sess.FinishActive(meta)
	c.clearActiveStream()

	if reason == message.FinishReasonError {
		c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgStreamError, MessageID: active.ID(), Error: errText})
		return
	}
	c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgStreamEnd, MessageID: active.ID(), Metadata: meta})
}

// applyDirective implements the avatar/task side-effects of a parsed
// Command Parser directive (§4.6, §4.9's Token handler: "applies parsed
// avatar commands to AvatarState ... and dispatches parsed task directives
// to C7").
func (c *Core) applyDirective(d directive.Directive) {
	switch d.Verb {
	case "mood":
		if len(d.Args) == 0 {
			return
		}
		if m, ok := avatar.ParseMood(d.Args[0]); ok {
			c.avatarState = c.avatarState.WithMood(m)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarMood, Mood: m})
		}
	case "gesture":
		if len(d.Args) == 0 {
			return
		}
		if g, ok := avatar.ParseGesture(d.Args[0]); ok {
			c.avatarState = c.avatarState.WithGesture(g)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarGesture, Gesture: g})
		}
	case "reaction":
		if len(d.Args) == 0 {
			return
		}
		if rx, ok := avatar.ParseReaction(d.Args[0]); ok {
			c.avatarState = c.avatarState.WithReaction(rx)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarReaction, Reaction: rx})
		}
	case "celebrate":
		c.avatarState = c.avatarState.WithReaction(avatar.ReactionCelebrate)
		c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarReaction, Reaction: avatar.ReactionCelebrate})
	case "point":
		c.avatarState = c.avatarState.WithGesture(avatar.GesturePoint)
		c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarGesture, Gesture: avatar.GesturePoint})
	case "move":
		if len(d.Args) == 0 {
			return
		}
		if p, ok := avatar.ParsePosition(d.Args[0]); ok {
			c.avatarState = c.avatarState.WithPosition(p)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarMoveTo, Position: p})
		}
	case "peek", "swim", "wander", "bounce", "dance", "wiggle":
		if a, ok := avatar.ParseActivity(d.Verb); ok {
			c.avatarState = c.avatarState.WithActivity(a)
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgAvatarActivity, Activity: a})
		}
	case "task":
		c.handleTaskDirective(d.Args)
	}
}

// handleTaskDirective implements "task start <agent> \"<description>\""
// (§4.7's lifecycle entry point).
func (c *Core) handleTaskDirective(args []string) {
	if len(args) < 3 || args[0] != "start" {
		return
	}
	agent := yid.AgentID(args[1])
	description := strings.Join(args[2:], " ")

	t := c.cfg.Tasks.Start(context.Background(), agent, description, c.specialistWorker(agent, description))
	c.trackedTasks[t.ID()] = task.StatusPending
	c.turnHadTasks = true

	c.broadcast(protocol.ConductorMessage{
		Kind:        protocol.MsgTaskStarted,
		TaskID:      t.ID(),
		Agent:       agent,
		Description: description,
	})
}

// specialistWorker opens a backend stream scoped to the task's own
// description and feeds every token into the Task's append-only output
// buffer, per §4.7 "opens a streaming request through C4 ... streams output
// into the Task's append-only buffer."
func (c *Core) specialistWorker(agent yid.AgentID, description string) task.Worker {
	return func(ctx context.Context, report func(text string, progress int)) error {
		decision := c.cfg.Router.Route(description, "")
		tokens, err := c.cfg.Backend.Stream(ctx, string(decision.Model), description, c.cfg.KeepAlive)
		if err != nil {
			c.cfg.Router.RecordOutcome(decision.Model, false)
			return yerrors.TaskErr("agent %s: %w", agent, err)
		}

		mgr := stream.New(tokens)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
			for _, ev := range mgr.Poll() {
				switch ev.Kind {
				case stream.EvToken:
					report(ev.Text, 50)
				case stream.EvComplete:
					c.cfg.Router.RecordOutcome(decision.Model, true)
					report("", 100)
					return nil
				case stream.EvError:
					c.cfg.Router.RecordOutcome(decision.Model, false)
					if ev.Err != nil {
						return ev.Err
					}
					return yerrors.TaskErr("agent %s: stream truncated", agent)
				}
			}
		}
	}
}

// handleTaskEvent implements the progress/completion half of §4.7 and the
// "synthesize" aggregation policy of §4.9's StreamEnd handler, reacting to
// the Task Manager's own pubsub.Event stream instead of polling it: a
// CreatedEvent marks a Task Pending, and each UpdatedEvent after it carries
// the Task's latest status/progress. Once every tracked Task has reached a
// terminal state and at least one succeeded, their outputs are merged into
// a follow-up assistant Message.
func (c *Core) handleTaskEvent(evt pubsub.Event[task.Update]) {
	u := evt.Payload
	lastStatus, tracked := c.trackedTasks[u.ID]
	if !tracked {
		return // a Task from a turn we've already synthesized and forgotten
	}

	if u.Status != lastStatus {
		c.trackedTasks[u.ID] = u.Status
		switch u.Status {
		case task.StatusRunning:
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgTaskProgress, TaskID: u.ID, Percent: u.Progress})
		case task.StatusDone:
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgTaskCompleted, TaskID: u.ID})
		case task.StatusFailed:
			reason := ""
			if u.Err != nil {
				reason = u.Err.Error()
			}
			c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgTaskFailed, TaskID: u.ID, Reason: reason})
		}
	} else if u.Status == task.StatusRunning {
		c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgTaskProgress, TaskID: u.ID, Percent: u.Progress})
	}

	allTerminal := true
	for _, status := range c.trackedTasks {
		if status != task.StatusDone && status != task.StatusFailed {
			allTerminal = false
			break
		}
	}
	if !allTerminal || !c.turnHadTasks || c.activeStream != nil {
		return
	}

	results, hasConflictHint := c.cfg.Tasks.Aggregate()
	anySucceeded := false
	for _, r := range results {
		if r.Status == task.StatusDone {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded {
		c.trackedTasks = make(map[yid.TaskID]task.Status)
		c.turnHadTasks = false
		return
	}
	c.startSynthesisTurn(results, hasConflictHint)
	c.trackedTasks = make(map[yid.TaskID]task.Status)
	c.turnHadTasks = false
}

// startSynthesisTurn implements §4.7's "Aggregation itself is one final LLM
// turn": it opens a real Backend.Stream over the prompt buildSynthesisPrompt
// renders from the turn's task outputs and conflict hint, and drives it
// through the same activeStream/pollActiveStream/finishStream machinery as
// a normal user turn, so the synthesized reply streams to every Surface
// token by token like any other assistant Message. If the stream can't
// even be opened, it falls back to joining the task outputs locally
// (appendLocalSynthesis) rather than losing them.
func (c *Core) startSynthesisTurn(results []task.Result, hasConflictHint bool) {
	prompt := buildSynthesisPrompt(results, hasConflictHint)
	decision := c.cfg.Router.Route(prompt, c.activeModel)

	ctx, cancel := context.WithCancel(context.Background())
	tokens, err := c.cfg.Backend.Stream(ctx, string(decision.Model), prompt, c.cfg.KeepAlive)
	if err != nil {
		cancel()
		c.cfg.Router.RecordOutcome(decision.Model, false)
		c.log.Warn("synthesis turn could not reach the backend, falling back to a local join", zap.Error(err))
		c.appendLocalSynthesis(results)
		return
	}

	active, err := c.sess.BeginAssistantMessage()
	if err != nil {
		cancel()
		c.log.Warn("synthesis turn could not begin an assistant message, falling back to a local join", zap.Error(err))
		c.appendLocalSynthesis(results)
		return
	}

	c.activeStream = stream.New(tokens)
	c.activeCancel = cancel
	c.activeModel = decision.Model
	c.parser = directive.New()
	c.broadcast(protocol.ConductorMessage{Kind: protocol.MsgStreamStart, MessageID: active.ID()})
}

// appendLocalSynthesis is startSynthesisTurn's explicit degradation path:
// used only when the synthesis turn's own backend call can't be started at
// all, it concatenates the turn's task outputs with no LLM involved so they
// reach the session and every connected Surface instead of being dropped.
func (c *Core) appendLocalSynthesis(results []task.Result) {
	synthesis := message.NewComplete(c.sess.ID(), message.Assistant, joinTaskResults(results))
	c.sess.Append(synthesis)
	c.broadcast(protocol.ConductorMessage{
		Kind:      protocol.MsgMessage,
		MessageID: synthesis.ID(),
		Role:      message.Assistant,
		Text:      synthesis.Content(),
	})
}

// handleExport implements §4.9's ExportConversation handler: streamed to
// the requesting surface only.
func (c *Core) handleExport(origin yid.ConnectionID, format protocol.ExportFormat) {
	msgs := c.sess.Messages()
	var text string
	switch format {
	case protocol.ExportJSON:
		type exported struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		out := make([]exported, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, exported{Role: string(m.Role()), Content: m.Content()})
		}
		b, err := json.Marshal(out)
		if err != nil {
			c.classifyAndNotify(origin, fmt.Errorf("export: %w", err))
			return
		}
		text = string(b)
	default:
		var b strings.Builder
		for _, m := range msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Role(), m.Content())
		}
		text = b.String()
	}

	_ = c.registry.SendTo(origin, protocol.ConductorMessage{
		Kind: protocol.MsgMessage,
		Role: message.System,
		Text: text,
	})
}
