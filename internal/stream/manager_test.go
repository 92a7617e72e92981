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
package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yollayah/conductor/pkg/backend/ollama"
)

func TestPollDrainsUntilComplete(t *testing.T) {
	ch := make(chan ollama.StreamingToken, 4)
	ch <- ollama.StreamingToken{Kind: ollama.KindToken, Text: "a"}
	ch <- ollama.StreamingToken{Kind: ollama.KindToken, Text: "b"}
	ch <- ollama.StreamingToken{Kind: ollama.KindComplete, Stats: ollama.Stats{EvalCount: 2}}

	m := New(ch)
	events := m.Poll()

	assert.Len(t, events, 3)
	assert.Equal(t, "ab", m.Content())
	assert.Equal(t, EvComplete, events[2].Kind)
}

func TestPollReturnsNothingAfterComplete(t *testing.T) {
	ch := make(chan ollama.StreamingToken, 1)
	ch <- ollama.StreamingToken{Kind: ollama.KindComplete}
	m := New(ch)
	m.Poll()

	assert.Nil(t, m.Poll())
}

func TestPollNonBlockingWhenEmpty(t *testing.T) {
	ch := make(chan ollama.StreamingToken)
	m := New(ch)
	events := m.Poll()
	assert.Empty(t, events)
}

func TestPollSurfacesError(t *testing.T) {
	ch := make(chan ollama.StreamingToken, 1)
	ch <- ollama.StreamingToken{Kind: ollama.KindError}
	m := New(ch)
	events := m.Poll()
	assert.Equal(t, EvError, events[len(events)-1].Kind)
	assert.Nil(t, m.Poll())
}
