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
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/message"
)

func TestAtMostOneActiveMessage(t *testing.T) {
	s := New(0)
	_, err := s.BeginAssistantMessage()
	require.NoError(t, err)

	_, err = s.BeginAssistantMessage()
	assert.Error(t, err, "a second concurrent active message must be rejected")
}

func TestFinishActiveClearsSlot(t *testing.T) {
	s := New(0)
	m, err := s.BeginAssistantMessage()
	require.NoError(t, err)
	m.AppendToken("hello")

	s.FinishActive(message.ResponseMetadata{TokenCount: 1})

	assert.Nil(t, s.ActiveMessage())
	assert.False(t, m.IsStreaming())
	assert.Equal(t, "hello", m.Content())

	// A new streaming message can now begin.
	_, err = s.BeginAssistantMessage()
	assert.NoError(t, err)
}

func TestContextCapDropsOldest(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Append(message.NewComplete(s.ID(), message.User, "msg"))
	}
	assert.Len(t, s.Messages(), 3)
	assert.Equal(t, 2, s.DroppedCount())
}

func TestClearPreservesActiveMessage(t *testing.T) {
	s := New(0)
	s.Append(message.NewComplete(s.ID(), message.User, "hi"))
	active, err := s.BeginAssistantMessage()
	require.NoError(t, err)

	s.Clear()

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, active.ID(), msgs[0].ID())
}
