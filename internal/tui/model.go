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

// Package tui implements the Terminal Surface's Render Engine (C10) and
// Event Loop (C12): a Bubble Tea program whose Update is the Event Loop
// (biased by Bubble Tea's own message queue toward terminal input first)
// and whose View is a dirty-tracked layered compositor over conversation,
// input, status, tasks and avatar layers.
package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/yollayah/conductor/internal/avatar"
	"github.com/yollayah/conductor/internal/message"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/internal/yid"
)

// RenderTickInterval and AnimationTickInterval implement §4.10's "20 FPS
// render tick" / "10 FPS animation tick" split: the render tick exists to
// repaint time-sensitive chrome (e.g. a future elapsed-turn indicator)
// even with no inbound ConductorMessage; the animation tick exists solely
// to advance the avatar's frame index.
const (
	RenderTickInterval    = 50 * time.Millisecond
	AnimationTickInterval = AnimationFrameInterval
)

type conductorMsg protocol.ConductorMessage
type renderTickMsg struct{}
type animTickMsg struct{}
type transportClosedMsg struct{}

// chatLine is one rendered line of the conversation layer.
type chatLine struct {
	role role
	text string
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
)

// taskRow is the Tasks layer's view of one in-flight or completed
// specialist Task.
type taskRow struct {
	agent    yid.AgentID
	status   string
	percent  int
}

// Model is the Terminal Surface's Bubble Tea model.
type Model struct {
	tr    transport.Transport
	keys  KeyMap
	sty   styles
	comp  *compositor
	cache *SpriteCache

	width, height int
	input         textinput.Model

	lines       []chatLine
	streamingAt int // index into lines of the in-progress assistant line, or -1

	avatarState avatar.State
	animStart   time.Time

	tasks     map[yid.TaskID]*taskRow
	taskOrder []yid.TaskID

	status   string
	quitting bool
}

// New constructs a Model bound to an already-connected Transport (either an
// in-process transport sharing a process with the Conductor, or a dialed
// stream-socket transport against a running yollayahd).
func New(tr transport.Transport) *Model {
	ti := textinput.New()
	ti.Placeholder = "Say something to Yollayah..."
	ti.Focus()
	ti.CharLimit = 16 * 1024

	cache := NewSpriteCache(DefaultSpriteCacheCapacity, DefaultSpriteTTL)
	WarmSpriteCache(cache)

	return &Model{
		tr:          tr,
		keys:        DefaultKeyMap(),
		sty:         defaultStyles(),
		comp:        newCompositor(),
		cache:       cache,
		input:       ti,
		streamingAt: -1,
		avatarState: avatar.Default(),
		animStart:   time.Now(),
		tasks:       make(map[yid.TaskID]*taskRow),
		status:      "connecting...",
	}
}

// Init starts the cursor blink and the three background listeners: the
// Transport's inbound ConductorMessage channel, the render tick, and the
// animation tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForMessage(m.tr), renderTick(), animTick())
}

func waitForMessage(tr transport.Transport) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-tr.Recv()
		if !ok {
			return transportClosedMsg{}
		}
		return conductorMsg(msg)
	}
}

func renderTick() tea.Cmd {
	return tea.Tick(RenderTickInterval, func(time.Time) tea.Msg { return renderTickMsg{} })
}

func animTick() tea.Cmd {
	return tea.Tick(AnimationTickInterval, func(time.Time) tea.Msg { return animTickMsg{} })
}

// Update is the Event Loop (C12). Bubble Tea's own select over the terminal
// input reader and program message queue already gives terminal events
// priority over program-internal Cmds; the inbound ConductorMessage channel
// is itself drained by a dedicated waitForMessage Cmd that immediately
// re-arms, keeping exactly one outstanding read at a time.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(10, m.width-4))
		for k := layerKind(0); k < layerCount; k++ {
			m.comp.markDirty(k)
		}
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case conductorMsg:
		cmd := m.applyConductorMessage(protocol.ConductorMessage(msg))
		return m, tea.Batch(cmd, waitForMessage(m.tr))

	case transportClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case renderTickMsg:
		return m, renderTick()

	case animTickMsg:
		m.comp.markDirty(layerAvatar)
		return m, animTick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Clear):
		_ = m.tr.Send(protocol.SurfaceEvent{Kind: protocol.EventClearHistory})
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		_ = m.tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserCancelled})
		return m, nil
	case key.Matches(msg, m.keys.Export):
		_ = m.tr.Send(protocol.SurfaceEvent{Kind: protocol.EventExportConversation, Format: protocol.ExportText})
		return m, nil
	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.appendLine(roleUser, text)
		_ = m.tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: text})
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) appendLine(r role, text string) {
	m.lines = append(m.lines, chatLine{role: r, text: text})
	m.comp.markDirty(layerConversation)
}

// applyConductorMessage folds one ConductorMessage into display state,
// marking exactly the layers it affects dirty.
func (m *Model) applyConductorMessage(msg protocol.ConductorMessage) tea.Cmd {
	switch msg.Kind {
	case protocol.MsgStateSnapshot:
		m.avatarState = msg.Avatar
		m.status = msg.HistorySummary
		m.comp.markDirty(layerAvatar)
		m.comp.markDirty(layerStatus)

	case protocol.MsgStreamStart:
		m.lines = append(m.lines, chatLine{role: roleAssistant})
		m.streamingAt = len(m.lines) - 1
		m.status = "thinking..."
		m.comp.markDirty(layerConversation)
		m.comp.markDirty(layerStatus)

	case protocol.MsgToken:
		if m.streamingAt >= 0 && m.streamingAt < len(m.lines) {
			m.lines[m.streamingAt].text += msg.Text
			m.comp.markDirty(layerConversation)
		}

	case protocol.MsgStreamEnd:
		m.streamingAt = -1
		m.status = fmt.Sprintf("idle (%d tokens)", msg.Metadata.TokenCount)
		m.comp.markDirty(layerStatus)

	case protocol.MsgStreamError:
		m.streamingAt = -1
		m.appendLine(roleSystem, "error: "+msg.Error)
		m.status = "error"
		m.comp.markDirty(layerStatus)

	case protocol.MsgAvatarMood:
		m.avatarState = m.avatarState.WithMood(msg.Mood)
		m.comp.markDirty(layerAvatar)
	case protocol.MsgAvatarGesture:
		m.avatarState = m.avatarState.WithGesture(msg.Gesture)
		m.comp.markDirty(layerAvatar)
	case protocol.MsgAvatarReaction:
		m.avatarState = m.avatarState.WithReaction(msg.Reaction)
		m.comp.markDirty(layerAvatar)
	case protocol.MsgAvatarMoveTo:
		m.avatarState = m.avatarState.WithPosition(msg.Position)
		m.comp.markDirty(layerAvatar)
	case protocol.MsgAvatarSize:
		m.avatarState = m.avatarState.WithSize(msg.Size)
		m.comp.markDirty(layerAvatar)
	case protocol.MsgAvatarActivity:
		m.avatarState = m.avatarState.WithActivity(msg.Activity)
		m.animStart = time.Now()
		m.comp.markDirty(layerAvatar)

	case protocol.MsgTaskStarted:
		m.tasks[msg.TaskID] = &taskRow{agent: msg.Agent, status: "running"}
		m.taskOrder = append(m.taskOrder, msg.TaskID)
		m.comp.markDirty(layerTasks)
	case protocol.MsgTaskProgress:
		if t, ok := m.tasks[msg.TaskID]; ok {
			t.percent = msg.Percent
			m.comp.markDirty(layerTasks)
		}
	case protocol.MsgTaskCompleted:
		if t, ok := m.tasks[msg.TaskID]; ok {
			t.status = "done"
			t.percent = 100
			m.comp.markDirty(layerTasks)
		}
	case protocol.MsgTaskFailed:
		if t, ok := m.tasks[msg.TaskID]; ok {
			t.status = "failed: " + msg.Reason
			m.comp.markDirty(layerTasks)
		}

	case protocol.MsgMessage:
		m.appendLine(roleFromMessage(msg.Role), msg.Text)

	case protocol.MsgModelChanged:
		m.status = "model: " + string(msg.Model)
		m.comp.markDirty(layerStatus)

	case protocol.MsgNotify:
		m.status = string(msg.Level) + ": " + msg.Message
		m.comp.markDirty(layerStatus)

	case protocol.MsgQuit:
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func roleFromMessage(r message.Role) role {
	switch r {
	case message.User:
		return roleUser
	case message.Assistant:
		return roleAssistant
	default:
		return roleSystem
	}
}

// View renders the composite of every layer, recomputing only the ones the
// preceding Update marked dirty.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	conv := m.comp.render(layerConversation, m.renderConversation)
	in := m.comp.render(layerInput, m.renderInput)
	status := m.comp.render(layerStatus, m.renderStatus)
	tasks := m.comp.render(layerTasks, m.renderTasks)
	av := m.comp.render(layerAvatar, m.renderAvatar)
	return composite(conv, in, status, tasks, av)
}

func (m *Model) renderConversation() string {
	var b strings.Builder
	for _, l := range m.lines {
		switch l.role {
		case roleUser:
			b.WriteString(m.sty.user.Render("you: "))
			b.WriteString(l.text)
		case roleAssistant:
			b.WriteString(m.sty.assistant.Render("yollayah: "))
			b.WriteString(l.text)
		case roleSystem:
			b.WriteString(m.sty.system.Render(l.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderInput() string {
	return m.input.View()
}

func (m *Model) renderStatus() string {
	return m.sty.status.Render(m.status)
}

func (m *Model) renderTasks() string {
	if len(m.taskOrder) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range m.taskOrder {
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		line := fmt.Sprintf("[%s] %s (%d%%)", t.agent, t.status, t.percent)
		if strings.HasPrefix(t.status, "failed") {
			b.WriteString(m.sty.taskFail.Render(line))
		} else if t.status == "done" {
			b.WriteString(m.sty.taskDone.Render(line))
		} else {
			b.WriteString(m.sty.muted.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderAvatar() string {
	fp := fingerprint(m.avatarState.Mood, m.avatarState.Gesture, m.avatarState.Reaction, 0)
	matrix, ok := m.cache.Get(fp)
	if !ok {
		if m.avatarState.Activity != avatar.ActivityIdle {
			frames := activityFrames(m.avatarState.Mood, m.avatarState.Activity)
			matrix = FrameForElapsed(frames, time.Since(m.animStart))
		} else {
			matrix = renderMoodFace(m.avatarState.Mood)
		}
		m.cache.Put(fp, matrix)
	} else if m.avatarState.Activity != avatar.ActivityIdle {
		frames := activityFrames(m.avatarState.Mood, m.avatarState.Activity)
		matrix = FrameForElapsed(frames, time.Since(m.animStart))
	}

	rows := make([]string, len(matrix))
	for i, row := range matrix {
		rows[i] = m.sty.avatar.Render(row)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
