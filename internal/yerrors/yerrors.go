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

// Package yerrors implements the error taxonomy of spec §7. Only the
// Conductor Core turns a Classified error into a user-visible Notify or
// StreamError protocol message; every other layer prefers local recovery
// (decode-and-drop, retry, fallback model) and only escalates a Classified
// error when local recovery is not possible.
package yerrors

import "fmt"

// Kind classifies an error for propagation-policy purposes. It is not a
// replacement for Go's error values; Classified wraps an underlying error.
type Kind int

const (
	// Input covers user message validation failures (length, rate).
	Input Kind = iota
	// Protocol covers transport decode, framing, and handshake failures.
	Protocol
	// Backend covers LLM unreachability, 5xx, and mid-stream truncation.
	Backend
	// Task covers specialist creation failure, timeout, and task error.
	Task
	// Resource covers backpressure conditions: full channels, slow surfaces,
	// cache overflow.
	Resource
	// Integrity covers checksum/signature verification failures.
	Integrity
	// Fatal covers unrecoverable runtime failure.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Protocol:
		return "protocol"
	case Backend:
		return "backend"
	case Task:
		return "task"
	case Resource:
		return "resource"
	case Integrity:
		return "integrity"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classified pairs an error with its taxonomy Kind.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

func classify(kind Kind, format string, args ...any) *Classified {
	return &Classified{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// InputErr builds an Input-kind error.
func InputErr(format string, args ...any) *Classified { return classify(Input, format, args...) }

// ProtocolErr builds a Protocol-kind error.
func ProtocolErr(format string, args ...any) *Classified { return classify(Protocol, format, args...) }

// BackendErr builds a Backend-kind error.
func BackendErr(format string, args ...any) *Classified { return classify(Backend, format, args...) }

// TaskErr builds a Task-kind error.
func TaskErr(format string, args ...any) *Classified { return classify(Task, format, args...) }

// ResourceErr builds a Resource-kind error.
func ResourceErr(format string, args ...any) *Classified { return classify(Resource, format, args...) }

// IntegrityErr builds an Integrity-kind error.
func IntegrityErr(format string, args ...any) *Classified {
	return classify(Integrity, format, args...)
}

// FatalErr builds a Fatal-kind error.
func FatalErr(format string, args ...any) *Classified { return classify(Fatal, format, args...) }

// As reports whether err itself is a *Classified and returns it; err's
// wrap chain is not searched.
func As(err error) (*Classified, bool) {
	c, ok := err.(*Classified)
	return c, ok
}
