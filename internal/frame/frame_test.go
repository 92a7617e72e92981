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
package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"binary", bytes.Repeat([]byte{0xAB, 0x00, 0xFF}, 1024)},
	}

	c := New(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, c.Encode(&buf, tc.payload))

			got, err := c.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.payload, got)
		})
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	c := New(0)
	_, err := c.Decode(bytes.NewReader([]byte{0x00, 0x01}))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	c := New(0)
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, []byte("hello world")))
	truncated := buf.Bytes()[:len(buf.Bytes())-4]
	_, err := c.Decode(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeTruncatedHeaderWrapsEOF(t *testing.T) {
	c := New(0)
	_, err := c.Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.True(t, errors.Is(err, io.EOF), "a clean EOF on the header read must still satisfy errors.Is(err, io.EOF) through the ErrTruncated wrap")
}

func TestDecodeTruncatedPayloadWrapsUnexpectedEOF(t *testing.T) {
	c := New(0)
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, []byte("hello world")))
	truncated := buf.Bytes()[:len(buf.Bytes())-4]
	_, err := c.Decode(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestDecodeChecksumMismatch(t *testing.T) {
	c := New(0)
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, []byte("hello world")))
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err := c.Decode(bytes.NewReader(corrupted))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestEncodeTooLargeRejected(t *testing.T) {
	c := New(4)
	var buf bytes.Buffer
	err := c.Encode(&buf, []byte("hello"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeTooLargeDoesNotReadPayload(t *testing.T) {
	c := New(4)
	full := New(0)
	var buf bytes.Buffer
	require.NoError(t, full.Encode(&buf, []byte("hello world")))

	_, err := c.Decode(&buf)
	assert.ErrorIs(t, err, ErrTooLarge)
}
