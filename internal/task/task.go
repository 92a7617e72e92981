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

// Package task implements the Task System of spec §4.7: specialist-agent
// delegation with a semaphore-bounded concurrency limit, a monotone status
// state machine, append-only output, and a final aggregation pass over all
// tasks tied to a turn.
package task

import (
	"strings"
	"sync"
	"time"

	"github.com/yollayah/conductor/internal/yid"
)

// Status is a Task's lifecycle state. Per §8's invariants, a Task's status
// transitions only Pending→Running→{Done,Failed}.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one specialist delegation spawned from a `task start` directive.
type Task struct {
	mu sync.RWMutex

	id          yid.TaskID
	agent       yid.AgentID
	description string

	status      Status
	progress    int // 0-100, non-decreasing (§8 invariant)
	output      strings.Builder
	err         error
	createdAt   time.Time
	completedAt *time.Time
}

func newTask(agent yid.AgentID, description string) *Task {
	return &Task{
		id:          yid.NewTaskID(),
		agent:       agent,
		description: description,
		status:      StatusPending,
		createdAt:   time.Now(),
	}
}

// ID returns the Task's identifier.
func (t *Task) ID() yid.TaskID { return t.id }

// Agent returns the specialist agent profile this Task runs under.
func (t *Task) Agent() yid.AgentID { return t.agent }

// Description returns the Task's original description.
func (t *Task) Description() string { return t.description }

// Status returns the Task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Progress returns the Task's current progress (0-100).
func (t *Task) Progress() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Output returns a snapshot of the Task's append-only output buffer.
func (t *Task) Output() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output.String()
}

// Err returns the Task's failure reason, or nil.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// CompletedAt returns when the Task reached Done/Failed, or nil if still
// in flight.
func (t *Task) CompletedAt() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completedAt
}

func (t *Task) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusRunning
}

// appendOutput appends text to the Task's output and advances progress; new
// progress is clamped to never decrease.
func (t *Task) appendOutput(text string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.output.WriteString(text)
	if progress > t.progress {
		t.progress = progress
	}
}

func (t *Task) finish(status Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusDone || t.status == StatusFailed {
		return // terminal state already reached
	}
	t.status = status
	t.err = err
	t.progress = 100
	now := time.Now()
	t.completedAt = &now
}
