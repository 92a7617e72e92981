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

package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yollayah/conductor/internal/csync"
	"github.com/yollayah/conductor/internal/log"
	"github.com/yollayah/conductor/internal/pubsub"
	"github.com/yollayah/conductor/internal/yerrors"
	"github.com/yollayah/conductor/internal/yid"
)

// Update is the payload a Manager publishes on its event stream each time a
// Task changes status or reports progress, letting a subscriber (the
// Conductor's dispatch loop) react to task lifecycle transitions as they
// happen instead of polling the Manager for them.
type Update struct {
	ID       yid.TaskID
	Agent    yid.AgentID
	Status   Status
	Progress int
	Err      error
}

// eventBuffer bounds the Manager's lifecycle event channel. A slow or absent
// subscriber drops events rather than blocking task execution; pubsub.Event
// carries enough (Type, Payload) that a missed intermediate progress update
// is harmless once a later one, or the terminal one, lands.
const eventBuffer = 256

// DefaultMaxConcurrent is the default cap on simultaneously running tasks
// across the whole Manager (§4.7 "Capacity").
const DefaultMaxConcurrent = 10

// DefaultTimeout is the default per-task deadline (§4.7 "Timeouts").
const DefaultTimeout = 5 * time.Minute

// ErrTimeout marks a Task that expired before its Worker returned.
var ErrTimeout = yerrors.TaskErr("task exceeded its deadline")

// conflictMarkers are textual hints that two or more task outputs disagree,
// surfaced to the aggregation caller so it can flag the turn for a
// synthesis pass rather than a naive concatenation (§4.7 "Conflict hints").
var conflictMarkers = []string{"however", "alternatively", "on the other hand", "in contrast"}

// Worker produces a Task's output. It must write through the given Task's
// appendOutput callback (wrapped as the report func) as it makes progress
// and return the final error, if any.
type Worker func(ctx context.Context, report func(text string, progress int)) error

// Manager runs specialist Tasks under a concurrency limit and per-task
// deadline, and aggregates completed Tasks tied to a turn into a result set.
type Manager struct {
	log *zap.Logger

	sem         *semaphore.Weighted
	timeout     time.Duration
	tasks       *csync.Map[yid.TaskID, *Task]
	order       *csync.Slice[yid.TaskID]
	wg          sync.WaitGroup
	events      chan pubsub.Event[Update]
}

// New constructs a Manager with the given concurrency limit and per-task
// timeout; zero values fall back to the §4.7 defaults.
func New(maxConcurrent int, timeout time.Duration) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log.With(zap.String("component", "task.manager")),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		tasks:   csync.NewMap[yid.TaskID, *Task](),
		order:   csync.NewSlice[yid.TaskID](),
		events:  make(chan pubsub.Event[Update], eventBuffer),
	}
}

// Events returns the Manager's task lifecycle stream: one pubsub.Event per
// Start (CreatedEvent) and per status or progress change thereafter
// (UpdatedEvent). Never closed; safe to range over for the Manager's whole
// lifetime.
func (m *Manager) Events() <-chan pubsub.Event[Update] { return m.events }

func (m *Manager) publish(evt pubsub.Event[Update]) {
	select {
	case m.events <- evt:
	default:
		m.log.Debug("task event dropped, subscriber too slow", zap.String("task_id", string(evt.Payload.ID)))
	}
}

func (m *Manager) snapshot(t *Task) Update {
	return Update{ID: t.ID(), Agent: t.Agent(), Status: t.Status(), Progress: t.Progress(), Err: t.Err()}
}

// Start allocates a Task and spawns its worker. The Task is returned
// immediately in StatusPending; additional starts beyond the concurrency
// limit queue behind the Manager's semaphore before transitioning to
// StatusRunning.
func (m *Manager) Start(ctx context.Context, agent yid.AgentID, description string, work Worker) *Task {
	t := newTask(agent, description)
	m.tasks.Set(t.id, t)
	m.order.Append(t.id)
	m.publish(pubsub.NewCreatedEvent(m.snapshot(t)))

	m.wg.Add(1)
	go m.run(ctx, t, work)
	return t
}

func (m *Manager) run(ctx context.Context, t *Task, work Worker) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		t.finish(StatusFailed, yerrors.TaskErr("acquire slot: %w", err))
		m.publish(pubsub.NewUpdatedEvent(m.snapshot(t)))
		return
	}
	defer m.sem.Release(1)

	t.start()
	m.publish(pubsub.NewUpdatedEvent(m.snapshot(t)))

	taskCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report := func(text string, progress int) {
		t.appendOutput(text, progress)
		m.publish(pubsub.NewUpdatedEvent(m.snapshot(t)))
	}

	done := make(chan error, 1)
	go func() {
		done <- work(taskCtx, report)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.finish(StatusFailed, err)
			m.log.Warn("task failed", zap.String("task_id", string(t.id)), zap.Error(err))
		} else {
			t.finish(StatusDone, nil)
		}
	case <-taskCtx.Done():
		t.finish(StatusFailed, ErrTimeout)
		m.log.Warn("task timed out", zap.String("task_id", string(t.id)), zap.Duration("timeout", m.timeout))
	}
	m.publish(pubsub.NewUpdatedEvent(m.snapshot(t)))
}

// Get returns a Task by ID.
func (m *Manager) Get(id yid.TaskID) (*Task, bool) {
	return m.tasks.Get(id)
}

// Wait blocks until every Task started on this Manager has reached a
// terminal state. Intended for tests and graceful shutdown, not the
// Conductor's steady-state dispatch loop.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Result is one Task's outcome for the aggregated result set of §4.7
// "Aggregation".
type Result struct {
	Agent  yid.AgentID
	Status Status
	Output string
	Error  error
}

// Aggregate builds the structured result set for every Task this Manager
// has ever started that has reached Done or Failed, in start order, and
// reports whether any Done output contains a conflict-hint marker.
func (m *Manager) Aggregate() (results []Result, hasConflictHint bool) {
	var succeeded int
	for _, id := range m.order.Items() {
		t, ok := m.tasks.Get(id)
		if !ok {
			continue
		}
		if t.Status() != StatusDone && t.Status() != StatusFailed {
			continue // still in flight; not part of this aggregation pass
		}
		results = append(results, Result{
			Agent:  t.Agent(),
			Status: t.Status(),
			Output: t.Output(),
			Error:  t.Err(),
		})
		if t.Status() == StatusDone {
			succeeded++
		}
	}

	if succeeded == 0 {
		return results, false
	}
	return results, detectConflict(results)
}

func detectConflict(results []Result) bool {
	for _, r := range results {
		if r.Status != StatusDone {
			continue
		}
		lower := strings.ToLower(r.Output)
		for _, marker := range conflictMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
