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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/protocol"
	"github.com/yollayah/conductor/internal/router"
	"github.com/yollayah/conductor/internal/task"
	"github.com/yollayah/conductor/internal/transport"
	"github.com/yollayah/conductor/pkg/backend/ollama"
)

type fakeBackend struct {
	tokens   []ollama.StreamingToken
	keepOpen bool // leave the channel open so the turn stays active
}

func (f *fakeBackend) Stream(ctx context.Context, model, prompt string, keepAlive time.Duration) (<-chan ollama.StreamingToken, error) {
	ch := make(chan ollama.StreamingToken, len(f.tokens))
	for _, tok := range f.tokens {
		ch <- tok
	}
	if !f.keepOpen {
		close(ch)
	}
	return ch, nil
}

func testRouter() *router.Router {
	return router.New(router.Config{
		DefaultModel:      "default-model",
		QuickWordCeiling:  5,
		DeepWordFloor:     40,
		HealthWindow:      time.Minute,
		UnhealthyFraction: 0.5,
		MinHealthSamples:  2,
	})
}

func recvUntil(t *testing.T, ch <-chan protocol.ConductorMessage, want protocol.MessageKind, timeout time.Duration) []protocol.ConductorMessage {
	t.Helper()
	var collected []protocol.ConductorMessage
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-ch:
			collected = append(collected, msg)
			if msg.Kind == want {
				return collected
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message kind %d; got %d messages", want, len(collected))
			return nil
		}
	}
}

func TestUserMessageStreamsAndAppliesDirective(t *testing.T) {
	backend := &fakeBackend{tokens: []ollama.StreamingToken{
		{Kind: ollama.KindToken, Text: "Sure "},
		{Kind: ollama.KindToken, Text: "[yolla:mood happy] "},
		{Kind: ollama.KindToken, Text: "done."},
		{Kind: ollama.KindComplete, Stats: ollama.Stats{EvalCount: 3}},
	}}

	c := New(Config{
		Backend: backend,
		Router:  testRouter(),
		Tasks:   task.New(4, time.Second),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	tr := transport.NewInProcess()
	c.Connect(protocol.SurfaceKindTerminal, protocol.CapPlainText|protocol.CapSprite, tr)

	require.NoError(t, tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: "hello there"}))

	msgs := recvUntil(t, tr.Recv(), protocol.MsgStreamEnd, 2*time.Second)

	var sawMood, sawStart bool
	var tokenText string
	for _, m := range msgs {
		switch m.Kind {
		case protocol.MsgAvatarMood:
			sawMood = true
			assert.Equal(t, "happy", string(m.Mood))
		case protocol.MsgStreamStart:
			sawStart = true
		case protocol.MsgToken:
			tokenText += m.Text
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawMood)
	assert.Equal(t, "Sure  done.", tokenText)
}

func TestUserMessageRejectedWhileStreaming(t *testing.T) {
	backend := &fakeBackend{keepOpen: true, tokens: []ollama.StreamingToken{
		{Kind: ollama.KindToken, Text: "still going"},
	}}
	c := New(Config{Backend: backend, Router: testRouter(), Tasks: task.New(4, time.Second)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	tr := transport.NewInProcess()
	c.Connect(protocol.SurfaceKindTerminal, protocol.CapPlainText, tr)

	require.NoError(t, tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: "first"}))
	// Give the loop time to register the first turn as active before the second arrives.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: "second"}))

	msgs := recvUntil(t, tr.Recv(), protocol.MsgNotify, 2*time.Second)
	found := false
	for _, m := range msgs {
		if m.Kind == protocol.MsgNotify {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTaskDirectiveSpawnsAndCompletesTask(t *testing.T) {
	backend := &fakeBackend{tokens: []ollama.StreamingToken{
		{Kind: ollama.KindToken, Text: `[yolla:task start coder "write tests"]`},
		{Kind: ollama.KindComplete},
	}}
	c := New(Config{Backend: backend, Router: testRouter(), Tasks: task.New(4, time.Second)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	tr := transport.NewInProcess()
	c.Connect(protocol.SurfaceKindTerminal, protocol.CapPlainText|protocol.CapTasks, tr)

	require.NoError(t, tr.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: "delegate this"}))

	msgs := recvUntil(t, tr.Recv(), protocol.MsgTaskCompleted, 3*time.Second)
	var sawStart bool
	for _, m := range msgs {
		if m.Kind == protocol.MsgTaskStarted {
			sawStart = true
			assert.Equal(t, "coder", string(m.Agent))
		}
	}
	assert.True(t, sawStart)
}
