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
package tui

import (
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/avatar"
	"github.com/yollayah/conductor/internal/message"
	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/internal/yid"
)

func TestSendKeySubmitsNonEmptyInput(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)
	m.input.SetValue("hello there")

	updated, _ := m.handleKey(tea.KeyPressMsg{Code: tea.KeyEnter})
	mm := updated.(*Model)

	require.Len(t, mm.lines, 1)
	assert.Equal(t, roleUser, mm.lines[0].role)
	assert.Equal(t, "hello there", mm.lines[0].text)
	assert.Empty(t, mm.input.Value())

	select {
	case evt := <-tr.Events():
		assert.Equal(t, protocol.EventUserMessage, evt.Kind)
		assert.Equal(t, "hello there", evt.Content)
	default:
		t.Fatal("expected a SurfaceEvent to have been sent")
	}
}

func TestSendKeyIgnoresBlankInput(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)
	m.input.SetValue("   ")

	updated, _ := m.handleKey(tea.KeyPressMsg{Code: tea.KeyEnter})
	mm := updated.(*Model)

	assert.Empty(t, mm.lines)
	select {
	case <-tr.Events():
		t.Fatal("no event should have been sent for blank input")
	default:
	}
}

func TestTransportClosedSetsQuitting(t *testing.T) {
	tr := transport.NewInProcess()
	m := New(tr)
	tr.Close()

	updated, cmd := m.Update(transportClosedMsg{})
	mm := updated.(*Model)

	require.NotNil(t, cmd)
	assert.True(t, mm.quitting)
}

func TestApplyConductorMessageStreamLifecycle(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgStreamStart})
	require.Len(t, m.lines, 1)
	assert.Equal(t, roleAssistant, m.lines[0].role)
	assert.Equal(t, 0, m.streamingAt)

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgToken, Text: "hel"})
	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgToken, Text: "lo"})
	assert.Equal(t, "hello", m.lines[0].text)

	m.applyConductorMessage(protocol.ConductorMessage{
		Kind:     protocol.MsgStreamEnd,
		Metadata: message.ResponseMetadata{TokenCount: 2},
	})
	assert.Equal(t, -1, m.streamingAt)
	assert.Contains(t, m.status, "2 tokens")
}

func TestApplyConductorMessageAvatarActivityResetsAnimStart(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)
	before := m.animStart

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgAvatarActivity, Activity: avatar.ActivityBounce})

	assert.Equal(t, avatar.ActivityBounce, m.avatarState.Activity)
	assert.True(t, !m.animStart.Before(before))
}

func TestApplyConductorMessageTaskLifecycle(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)
	taskID := yid.NewTaskID()

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgTaskStarted, TaskID: taskID, Agent: "coder"})
	require.Contains(t, m.tasks, taskID)
	assert.Equal(t, "running", m.tasks[taskID].status)

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgTaskProgress, TaskID: taskID, Percent: 50})
	assert.Equal(t, 50, m.tasks[taskID].percent)

	m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgTaskCompleted, TaskID: taskID})
	assert.Equal(t, "done", m.tasks[taskID].status)
	assert.Equal(t, 100, m.tasks[taskID].percent)
}

func TestApplyConductorMessageQuitReturnsQuitCmd(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)

	cmd := m.applyConductorMessage(protocol.ConductorMessage{Kind: protocol.MsgQuit})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
}

func TestViewRendersWithoutPanicBeforeWindowSize(t *testing.T) {
	tr := transport.NewInProcess()
	defer tr.Close()
	m := New(tr)
	assert.NotPanics(t, func() { m.View() })
}
