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

// Package yid defines the opaque identifier types of §3's data model.
// ConnectionId and TaskId must be unpredictable to unprivileged observers;
// every generated identifier here is backed by github.com/google/uuid's v4
// generator rather than a sequential counter, per §9's "Open questions"
// resolution: a sequential allocator is a defense-in-depth weakness, not
// merely a style choice. AgentID and ModelID are operator-chosen names and
// are not generated.
package yid

import "github.com/google/uuid"

// SessionID identifies a conversation Session.
type SessionID string

// MessageID identifies a Message within a Session.
type MessageID string

// ConnectionID identifies a connected Surface. Unpredictable by construction.
type ConnectionID string

// TaskID identifies a specialist Task. Unpredictable by construction.
type TaskID string

// AgentID identifies a specialist agent profile (stable, operator-chosen,
// not a generated identifier — e.g. "ethical-hacker").
type AgentID string

// ModelID identifies a backend model (operator-chosen, e.g. "llama3.1").
type ModelID string

// NewSessionID generates a fresh SessionID.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewMessageID generates a fresh MessageID.
func NewMessageID() MessageID { return MessageID(uuid.NewString()) }

// NewConnectionID generates a fresh, unpredictable ConnectionID.
func NewConnectionID() ConnectionID { return ConnectionID(uuid.NewString()) }

// NewTaskID generates a fresh, unpredictable TaskID.
func NewTaskID() TaskID { return TaskID(uuid.NewString()) }
