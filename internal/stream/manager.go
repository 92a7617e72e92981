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

// Package stream implements the Stream Manager of spec §4.5: owns one
// backend turn's cumulative content and completion state, and exposes a
// non-blocking poll() that drains the backend's token channel into a list
// of derived stream events.
package stream

import (
	"strings"

	"github.com/yollayah/conductor/pkg/backend/ollama"
)

// EventKind discriminates the derived events returned by poll().
type EventKind int

const (
	EvToken EventKind = iota
	EvComplete
	EvError
)

// Event is one item derived from a single poll() call.
type Event struct {
	Kind  EventKind
	Text  string
	Stats ollama.Stats
	Err   error
}

// Manager owns one backend turn's accumulated text and completion state.
// It is not safe for concurrent use by more than one goroutine; the
// Conductor polls it from its single dispatch loop.
type Manager struct {
	tokens    <-chan ollama.StreamingToken
	content   strings.Builder
	completed bool
}

// New wraps a backend token channel (as returned by ollama.Client.Stream).
func New(tokens <-chan ollama.StreamingToken) *Manager {
	return &Manager{tokens: tokens}
}

// Poll drains every currently-available item from the backend channel
// without blocking and returns the derived Events. After Complete or Error
// has been emitted, further polls return nil: the stream is closed (§4.5
// invariant).
func (m *Manager) Poll() []Event {
	if m.completed {
		return nil
	}
	var events []Event
	for {
		select {
		case tok, ok := <-m.tokens:
			if !ok {
				// Channel closed without an explicit Complete/Error: treat
				// as a truncated backend connection.
				m.completed = true
				events = append(events, Event{Kind: EvError})
				return events
			}
			switch tok.Kind {
			case ollama.KindToken:
				m.content.WriteString(tok.Text)
				events = append(events, Event{Kind: EvToken, Text: tok.Text})
			case ollama.KindComplete:
				m.completed = true
				events = append(events, Event{Kind: EvComplete, Stats: tok.Stats})
				return events
			case ollama.KindError:
				m.completed = true
				events = append(events, Event{Kind: EvError, Err: tok.Err})
				return events
			}
		default:
			return events
		}
	}
}

// Content returns a snapshot of the accumulated text so far.
func (m *Manager) Content() string {
	return m.content.String()
}

// IntoFinal consumes the Manager and returns its final accumulated text.
func (m *Manager) IntoFinal() string {
	return m.content.String()
}
