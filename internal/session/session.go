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

// Package session implements the Session entity of spec §3: an append-only
// ordered sequence of Messages owned exclusively by the Conductor Core.
// Session enforces invariant 1 of §8 globally — at most one Message may be
// streaming at a time — and applies the context cap of §5
// ("max_context_messages; older messages are summarised or dropped").
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/yollayah/conductor/internal/message"
	"github.com/yollayah/conductor/internal/yid"
)

// DefaultMaxContextMessages is the default cap on retained messages before
// the oldest non-active entries are dropped. See applyContextCapLocked.
const DefaultMaxContextMessages = 200

// Session is an append-only ordered history of Messages under a SessionID.
// All mutating methods are safe for concurrent use, though spec §4.9
// requires the Conductor to be the only writer in practice.
type Session struct {
	mu sync.RWMutex

	id        yid.SessionID
	createdAt time.Time

	messages []*message.Message
	active   *message.Message // the current streaming assistant Message, if any

	maxContext int
	dropped    int // count of messages summarised/dropped for ExportConversation bookkeeping
}

// New creates an empty Session.
func New(maxContextMessages int) *Session {
	if maxContextMessages <= 0 {
		maxContextMessages = DefaultMaxContextMessages
	}
	return &Session{
		id:         yid.NewSessionID(),
		createdAt:  time.Now(),
		maxContext: maxContextMessages,
	}
}

// ID returns the Session's identifier.
func (s *Session) ID() yid.SessionID { return s.id }

// CreatedAt returns when the Session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Append adds a completed Message (e.g. a User turn) to the history.
func (s *Session) Append(m *message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.applyContextCapLocked()
}

// BeginAssistantMessage creates and appends a new streaming assistant
// Message, enforcing invariant 1: it is an error to begin a second active
// message while one is already streaming.
func (s *Session) BeginAssistantMessage() (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, fmt.Errorf("session %s already has an active streaming message %s", s.id, s.active.ID())
	}
	m := message.New(s.id, message.Assistant, true)
	s.messages = append(s.messages, m)
	s.active = m
	return m, nil
}

// ActiveMessage returns the current streaming assistant Message, or nil.
func (s *Session) ActiveMessage() *message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// FinishActive finishes the active streaming Message and clears it,
// restoring the zero-or-one-streaming invariant.
func (s *Session) FinishActive(meta message.ResponseMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	s.active.Finish(meta)
	s.active = nil
	s.applyContextCapLocked()
}

// Messages returns a snapshot slice of the Session's history in order.
func (s *Session) Messages() []*message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Clear empties the Session's history (ClearHistory, §4.9). An active
// streaming message, if any, is left alone: clearing mid-stream would
// violate "content is immutable once streaming=false" by orphaning it, so
// ClearHistory on a streaming session only clears completed messages.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.messages = []*message.Message{s.active}
		return
	}
	s.messages = nil
}

// DroppedCount returns how many messages have been summarised/dropped under
// the context cap since the Session began.
func (s *Session) DroppedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// applyContextCapLocked implements the drop-oldest overflow policy described
// in SPEC_FULL.md §C: the oldest non-active messages are dropped once the cap
// is exceeded. A full summarizer model is out of scope (no summarizer
// model is specified by the backend contract in §6), so this is a
// deliberate drop-oldest policy rather than an abstractive summary.
func (s *Session) applyContextCapLocked() {
	overflow := len(s.messages) - s.maxContext
	if overflow <= 0 {
		return
	}
	// Never drop the active streaming message.
	drop := overflow
	if drop > len(s.messages) {
		drop = len(s.messages)
	}
	for _, m := range s.messages[:drop] {
		if m == s.active {
			drop--
		}
	}
	if drop <= 0 {
		return
	}
	s.messages = s.messages[drop:]
	s.dropped += drop
}
