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
package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/protocol"
)

func TestInProcessSendRecvRoundTrip(t *testing.T) {
	tp := NewInProcess()
	defer tp.Close()

	require.NoError(t, tp.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage, Content: "hi"}))
	evt := <-tp.Events()
	assert.Equal(t, "hi", evt.Content)

	require.NoError(t, tp.Deliver(protocol.ConductorMessage{Kind: protocol.MsgToken, Text: "tok"}))
	msg := <-tp.Recv()
	assert.Equal(t, "tok", msg.Text)
}

func TestInProcessEventQueueBackpressure(t *testing.T) {
	tp := NewInProcess()
	defer tp.Close()

	for i := 0; i < EventQueueCapacity; i++ {
		require.NoError(t, tp.Send(protocol.SurfaceEvent{Kind: protocol.EventUserTyping}))
	}
	err := tp.Send(protocol.SurfaceEvent{Kind: protocol.EventUserTyping})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestInProcessSendAfterCloseErrors(t *testing.T) {
	tp := NewInProcess()
	require.NoError(t, tp.Close())

	err := tp.Send(protocol.SurfaceEvent{Kind: protocol.EventUserMessage})
	assert.ErrorIs(t, err, ErrClosed)
}
