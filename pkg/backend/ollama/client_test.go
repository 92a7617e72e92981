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
package ollama

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEmitsTokensThenComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"model":"llama3.1","response":"Hel","done":false}`,
			`{"model":"llama3.1","response":"lo","done":false}`,
			`{"model":"llama3.1","response":"","done":true,"prompt_eval_count":5,"eval_count":2}`,
		}
		for _, l := range lines {
			io.WriteString(w, l+"\n")
		}
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	ch, err := c.Stream(context.Background(), "llama3.1", "hi", 0)
	require.NoError(t, err)

	var texts []string
	var gotComplete bool
	for item := range ch {
		switch item.Kind {
		case KindToken:
			texts = append(texts, item.Text)
		case KindComplete:
			gotComplete = true
			assert.Equal(t, 5, item.Stats.PromptEvalCount)
		case KindError:
			t.Fatalf("unexpected error: %v", item.Err)
		}
	}
	assert.Equal(t, []string{"Hel", "lo"}, texts)
	assert.True(t, gotComplete)
}

func TestStreamHTTPErrorIsBackendKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Stream(context.Background(), "llama3.1", "hi", 0)
	require.Error(t, err)
}

func TestStreamTruncatedConnectionEmitsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"llama3.1","response":"partial","done":false}`+"\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	ch, err := c.Stream(context.Background(), "llama3.1", "hi", 0)
	require.NoError(t, err)

	var sawError bool
	for item := range ch {
		if item.Kind == KindError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestStreamRespectsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(blocked)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Stream(ctx, "llama3.1", "hi", 0)
	assert.Error(t, err)
}
