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

// Package protocol defines the Surface ↔ Conductor message protocol of
// spec §6: SurfaceEvent flows Surface → Conductor, ConductorMessage flows
// Conductor → Surface. Both are canonical structured records; Go expresses
// the "tagged union" shape as a Kind enum plus a struct holding every
// variant's fields; the Transport drivers encode it with encoding/json
// (§4.1's canonical textual encoding).
package protocol

import (
	"time"

	"github.com/yollayah/conductor/internal/avatar"
	"github.com/yollayah/conductor/internal/message"
	"github.com/yollayah/conductor/internal/yid"
)

// Capability is a bit in a Surface's capability set, declared at Handshake
// and used by the Surface Registry to filter broadcasts (§4.3).
type Capability uint32

const (
	CapPlainText Capability = 1 << iota
	CapRichText
	CapSprite
	CapTasks
)

// Has reports whether caps contains every bit in required.
func (caps Capability) Has(required Capability) bool {
	return caps&required == required
}

// SurfaceKind identifies the kind of Surface connecting (terminal, future
// web/voice surfaces, etc.).
type SurfaceKind string

const (
	SurfaceKindTerminal SurfaceKind = "terminal"
)

// EventKind discriminates SurfaceEvent variants.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventHandshake
	EventHeartbeatPing
	EventHeartbeatPong
	EventUserMessage
	EventUserTyping
	EventUserScrolled
	EventUserCancelled
	EventResized
	EventClearHistory
	EventChangeModel
	EventExportConversation
)

// ExportFormat selects ExportConversation's output encoding.
type ExportFormat string

const (
	ExportText ExportFormat = "text"
	ExportJSON ExportFormat = "json"
)

// SurfaceEvent is one message flowing Surface → Conductor.
type SurfaceEvent struct {
	Kind EventKind

	// Connected / Handshake
	SurfaceKind  SurfaceKind
	Capabilities Capability
	Version      string

	// UserMessage
	Content string

	// UserTyping
	Partial string

	// UserScrolled
	Offset int

	// Resized
	Width, Height int

	// ChangeModel
	Model yid.ModelID

	// ExportConversation
	Format ExportFormat
}

// MessageKind discriminates ConductorMessage variants.
type MessageKind int

const (
	MsgStateSnapshot MessageKind = iota
	MsgMessage
	MsgStreamStart
	MsgToken
	MsgStreamEnd
	MsgStreamError
	MsgAvatarMood
	MsgAvatarGesture
	MsgAvatarReaction
	MsgAvatarMoveTo
	MsgAvatarSize
	MsgAvatarActivity
	MsgTaskStarted
	MsgTaskProgress
	MsgTaskCompleted
	MsgTaskFailed
	MsgModelChanged
	MsgNotify
	MsgSessionInfo
	MsgQuit
)

// RequiredCapability returns the Capability a surface must have to receive
// a ConductorMessage of the given kind, per §4.3's broadcast filtering.
func RequiredCapability(kind MessageKind) Capability {
	switch kind {
	case MsgAvatarMood, MsgAvatarGesture, MsgAvatarReaction, MsgAvatarMoveTo, MsgAvatarSize, MsgAvatarActivity:
		return CapSprite
	case MsgTaskStarted, MsgTaskProgress, MsgTaskCompleted, MsgTaskFailed:
		return CapTasks
	default:
		return CapPlainText
	}
}

// NotifyLevel severity-tags a Notify ConductorMessage.
type NotifyLevel string

const (
	NotifyInfo  NotifyLevel = "info"
	NotifyWarn  NotifyLevel = "warn"
	NotifyError NotifyLevel = "error"
)

// ConductorMessage is one message flowing Conductor → Surface.
type ConductorMessage struct {
	Kind MessageKind

	// StateSnapshot
	SessionID      yid.SessionID
	HistorySummary string
	Avatar         avatar.State

	// Message / StreamStart / Token / StreamEnd
	MessageID yid.MessageID
	Role      message.Role
	Text      string
	Metadata  message.ResponseMetadata

	// StreamError
	Error string

	// Avatar* (each Kind sets only the sub-field relevant to it; the
	// Avatar field above is not used by these messages)
	Mood     avatar.Mood
	Gesture  avatar.Gesture
	Reaction avatar.Reaction
	Size     avatar.Size
	Position avatar.Position
	Activity avatar.Activity

	// Task*
	TaskID      yid.TaskID
	Agent       yid.AgentID
	Description string
	Percent     int
	Reason      string

	// ModelChanged
	Model yid.ModelID

	// Notify
	Level   NotifyLevel
	Message string

	// SessionInfo
	CreatedAt time.Time

	// Quit
	QuitMessage string
}
