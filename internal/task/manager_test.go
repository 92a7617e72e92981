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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/pubsub"
)

func TestStartTransitionsPendingToDone(t *testing.T) {
	m := New(4, time.Second)
	tk := m.Start(context.Background(), "coder", "write tests", func(ctx context.Context, report func(string, int)) error {
		report("working", 50)
		return nil
	})
	m.Wait()

	assert.Equal(t, StatusDone, tk.Status())
	assert.Equal(t, 100, tk.Progress())
	assert.Equal(t, "working", tk.Output())
	assert.NotNil(t, tk.CompletedAt())
	assert.NoError(t, tk.Err())
}

func TestStartMarksFailedOnWorkerError(t *testing.T) {
	m := New(4, time.Second)
	boom := errors.New("boom")
	tk := m.Start(context.Background(), "coder", "break things", func(ctx context.Context, report func(string, int)) error {
		return boom
	})
	m.Wait()

	assert.Equal(t, StatusFailed, tk.Status())
	assert.ErrorIs(t, tk.Err(), boom)
	assert.Equal(t, 100, tk.Progress())
}

func TestStartMarksFailedOnTimeout(t *testing.T) {
	m := New(4, 10*time.Millisecond)
	tk := m.Start(context.Background(), "coder", "hang forever", func(ctx context.Context, report func(string, int)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Wait()

	assert.Equal(t, StatusFailed, tk.Status())
	assert.ErrorIs(t, tk.Err(), ErrTimeout)
}

func TestProgressNeverDecreases(t *testing.T) {
	tk := newTask("coder", "x")
	tk.start()
	tk.appendOutput("a", 40)
	tk.appendOutput("b", 10) // lower progress must not regress
	require.Equal(t, 40, tk.Progress())
	tk.finish(StatusDone, nil)
	assert.Equal(t, 100, tk.Progress())
}

func TestConcurrencyLimitQueuesExtraStarts(t *testing.T) {
	m := New(1, time.Second)
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	first := m.Start(context.Background(), "a", "first", func(ctx context.Context, report func(string, int)) error {
		started <- struct{}{}
		<-release
		return nil
	})
	second := m.Start(context.Background(), "b", "second", func(ctx context.Context, report func(string, int)) error {
		started <- struct{}{}
		return nil
	})

	<-started
	assert.Equal(t, StatusRunning, first.Status())
	assert.Equal(t, StatusPending, second.Status())

	close(release)
	m.Wait()
	assert.Equal(t, StatusDone, first.Status())
	assert.Equal(t, StatusDone, second.Status())
}

func TestAggregateSkipsInFlightTasks(t *testing.T) {
	m := New(4, time.Second)
	block := make(chan struct{})
	m.Start(context.Background(), "a", "done one", func(ctx context.Context, report func(string, int)) error {
		return nil
	})
	m.Start(context.Background(), "b", "stuck one", func(ctx context.Context, report func(string, int)) error {
		<-block
		return nil
	})

	// Give the first task a moment to reach a terminal state without
	// relying on Wait(), which would block on the still-running second.
	for i := 0; i < 100; i++ {
		results, _ := m.Aggregate()
		if len(results) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	results, conflict := m.Aggregate()
	assert.Len(t, results, 1)
	assert.False(t, conflict)
	close(block)
}

func TestEventsPublishesCreatedThenUpdatedUntilTerminal(t *testing.T) {
	m := New(4, time.Second)
	tk := m.Start(context.Background(), "coder", "write tests", func(ctx context.Context, report func(string, int)) error {
		report("working", 50)
		return nil
	})

	var kinds []pubsub.EventType
	var statuses []Status
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-m.Events():
			if evt.Payload.ID != tk.ID() {
				continue
			}
			kinds = append(kinds, evt.Type)
			statuses = append(statuses, evt.Payload.Status)
			if evt.Payload.Status == StatusDone {
				require.Equal(t, pubsub.CreatedEvent, kinds[0])
				assert.Contains(t, statuses, StatusRunning)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a terminal task event")
		}
	}
}

func TestAggregateDetectsConflictMarker(t *testing.T) {
	m := New(4, time.Second)
	m.Start(context.Background(), "a", "opinion one", func(ctx context.Context, report func(string, int)) error {
		report("use approach A", 100)
		return nil
	})
	m.Start(context.Background(), "b", "opinion two", func(ctx context.Context, report func(string, int)) error {
		report("however, approach B is better", 100)
		return nil
	})
	m.Wait()

	_, conflict := m.Aggregate()
	assert.True(t, conflict)
}
