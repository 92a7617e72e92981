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
	"context"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/log"
)

// Backoff parameters for stream-socket reconnection, per §4.2: "bounded
// exponential backoff starting at 100 ms, doubling to a cap of 30 s; jitter
// ≤ 20 %."
const (
	BackoffInitial = 100 * time.Millisecond
	BackoffCap     = 30 * time.Second
	BackoffJitter  = 0.20
)

// nextBackoff doubles cur, clamps it to BackoffCap, and applies up to
// BackoffJitter of random jitter.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > BackoffCap {
		next = BackoffCap
	}
	jitter := time.Duration(float64(next) * BackoffJitter * (rand.Float64()*2 - 1))
	result := next + jitter
	if result < 0 {
		result = next
	}
	return result
}

// DialReconnecting dials network/addr (e.g. "unix", socketPath), retrying
// with bounded exponential backoff until ctx is cancelled or a connection
// succeeds. onConnect is called with a fresh StreamSocket each time a
// connection (re)establishes; the caller is responsible for detecting the
// prior socket's closure (e.g. via a closed Events()/Recv() channel) and
// waiting for the next onConnect call to resume.
func DialReconnecting(ctx context.Context, network, addr string, maxFrame int, onConnect func(*StreamSocket)) {
	logger := log.With(zap.String("component", "transport.dial"))
	backoff := BackoffInitial

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialer := net.Dialer{}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			logger.Warn("dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = BackoffInitial
		sock := NewStreamSocket(conn, maxFrame)
		onConnect(sock)

		// Block until this connection dies, then loop to reconnect.
		<-sock.Done()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
